// Package reaction is the static registry of message reaction kinds and
// their display metadata.
package reaction

import (
	"errors"
	"fmt"
)

// Kind identifies a reaction. The zero value means no reaction.
type Kind string

const (
	None  Kind = ""
	Like  Kind = "like"
	Love  Kind = "love"
	Care  Kind = "care"
	Haha  Kind = "haha"
	Wow   Kind = "wow"
	Sad   Kind = "sad"
	Angry Kind = "angry"
)

var ErrUnknownKind = errors.New("unknown reaction kind")

// Info is the display metadata for a reaction kind.
type Info struct {
	Kind  Kind   `json:"kind"`
	Label string `json:"label"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
	Emoji string `json:"emoji"`
}

var registry = []Info{
	{Kind: Like, Label: "Like", Icon: "fa-thumbs-up", Color: "text-blue-500", Emoji: "👍"},
	{Kind: Love, Label: "Love", Icon: "fa-heart", Color: "text-pink-600", Emoji: "❤️"},
	{Kind: Care, Label: "Care", Icon: "fa-face-grin-hearts", Color: "text-yellow-500", Emoji: "🥰"},
	{Kind: Haha, Label: "Haha", Icon: "fa-face-laugh", Color: "text-yellow-500", Emoji: "😆"},
	{Kind: Wow, Label: "Wow", Icon: "fa-face-surprise", Color: "text-yellow-500", Emoji: "😮"},
	{Kind: Sad, Label: "Sad", Icon: "fa-face-sad-tear", Color: "text-yellow-600", Emoji: "😢"},
	{Kind: Angry, Label: "Angry", Icon: "fa-face-angry", Color: "text-orange-600", Emoji: "😡"},
}

var byKind = func() map[Kind]Info {
	m := make(map[Kind]Info, len(registry))
	for _, info := range registry {
		m[info.Kind] = info
	}
	return m
}()

// All returns every reaction in picker order.
func All() []Info {
	out := make([]Info, len(registry))
	copy(out, registry)
	return out
}

// Lookup returns the metadata for k.
func Lookup(k Kind) (Info, bool) {
	info, ok := byKind[k]
	return info, ok
}

// Valid reports whether k is a registered kind. None is not valid.
func (k Kind) Valid() bool {
	_, ok := byKind[k]
	return ok
}

// Emoji returns the emoji for k, or "" for None and unknown kinds.
func (k Kind) Emoji() string {
	return byKind[k].Emoji
}

// Parse converts s into a Kind. The empty string parses as None.
func Parse(s string) (Kind, error) {
	k := Kind(s)
	if k == None || k.Valid() {
		return k, nil
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}
