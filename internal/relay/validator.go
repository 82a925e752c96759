package relay

import (
	"fmt"
	"unicode/utf8"
)

const (
	MaxMessageBytes = 4096 // max payload size
	MaxTextChars    = 2000 // max character count
	MaxSenderChars  = 64   // max display name length
)

// ValidateMessage checks that a chat message meets content requirements.
func ValidateMessage(text string) error {
	if len(text) == 0 {
		return fmt.Errorf("message text is empty")
	}
	if len(text) > MaxMessageBytes {
		return fmt.Errorf("message exceeds %d byte limit", MaxMessageBytes)
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return fmt.Errorf("message exceeds %d character limit", MaxTextChars)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("message contains invalid UTF-8")
	}
	return nil
}

// ValidateSender checks a sender identifier or display name.
func ValidateSender(sender string) error {
	if len(sender) == 0 {
		return fmt.Errorf("sender is empty")
	}
	if utf8.RuneCountInString(sender) > MaxSenderChars {
		return fmt.Errorf("sender exceeds %d character limit", MaxSenderChars)
	}
	if !utf8.ValidString(sender) {
		return fmt.Errorf("sender contains invalid UTF-8")
	}
	return nil
}
