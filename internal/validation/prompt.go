package validation

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const MaxPromptLength = 4000

var (
	ErrPromptRequired = errors.New("prompt is required")
	ErrPromptTooLong  = errors.New("prompt is too long")
)

// ValidatePrompt checks a generation prompt after trimming.
func ValidatePrompt(prompt string) error {
	trimmed := strings.TrimSpace(prompt)

	if trimmed == "" {
		return ErrPromptRequired
	}

	if utf8.RuneCountInString(trimmed) > MaxPromptLength {
		return ErrPromptTooLong
	}

	return nil
}
