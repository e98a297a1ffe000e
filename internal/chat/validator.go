package chat

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

const (
	MaxMessageBytes = 4096 // 4KB max frame payload
	MaxTextChars    = 2000 // max character count
)

// ErrInvalidMessage is wrapped by every ValidateMessage failure.
var ErrInvalidMessage = errors.New("chat: invalid message")

// ValidateMessage checks that a chat message is non-empty, valid UTF-8 and
// within the size limits.
func ValidateMessage(text string) error {
	switch {
	case len(text) == 0:
		return fmt.Errorf("%w: text is empty", ErrInvalidMessage)
	case len(text) > MaxMessageBytes:
		return fmt.Errorf("%w: exceeds %d byte limit", ErrInvalidMessage, MaxMessageBytes)
	case !utf8.ValidString(text):
		return fmt.Errorf("%w: contains invalid UTF-8", ErrInvalidMessage)
	case utf8.RuneCountInString(text) > MaxTextChars:
		return fmt.Errorf("%w: exceeds %d character limit", ErrInvalidMessage, MaxTextChars)
	}
	return nil
}
