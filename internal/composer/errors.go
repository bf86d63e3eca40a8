package composer

import (
	"errors"
	"fmt"
)

var (
	ErrBlocked            = errors.New("conversation is blocked")
	ErrAttachmentTooLarge = errors.New("attachment exceeds size limit")
	ErrAlreadyRecording   = errors.New("a recording is already in progress")
	ErrNotRecording       = errors.New("no recording in progress")
)

// AttachmentError aborts a single send when an attachment cannot be read
type AttachmentError struct {
	Name string
	Err  error
}

func (e *AttachmentError) Error() string {
	return fmt.Sprintf("attachment %q: %v", e.Name, e.Err)
}

func (e *AttachmentError) Unwrap() error {
	return e.Err
}
