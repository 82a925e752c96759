package relay

import (
	"strings"
	"testing"
)

func TestValidateMessage(t *testing.T) {
	if err := ValidateMessage("hello"); err != nil {
		t.Errorf("valid message rejected: %v", err)
	}
	if err := ValidateMessage(""); err == nil {
		t.Error("empty message accepted")
	}
	if err := ValidateMessage(strings.Repeat("a", MaxMessageBytes+1)); err == nil {
		t.Error("oversized message accepted")
	}
	if err := ValidateMessage(strings.Repeat("é", MaxTextChars+1)); err == nil {
		t.Error("message over character limit accepted")
	}
	if err := ValidateMessage(string([]byte{0xff, 0xfe})); err == nil {
		t.Error("invalid UTF-8 accepted")
	}
}

func TestValidateSender(t *testing.T) {
	if err := ValidateSender("alice"); err != nil {
		t.Errorf("valid sender rejected: %v", err)
	}
	if err := ValidateSender(""); err == nil {
		t.Error("empty sender accepted")
	}
	if err := ValidateSender(strings.Repeat("a", MaxSenderChars+1)); err == nil {
		t.Error("oversized sender accepted")
	}
}
