package conversation

import "errors"

var (
	ErrNoteLocked   = errors.New("note is locked until its 24h window elapses")
	ErrEmptyNote    = errors.New("note text is empty")
	ErrUnknownTheme = errors.New("unknown theme")
)
