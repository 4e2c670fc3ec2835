package content

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MinOptions is the smallest option list a question may have.
const MinOptions = 2

// RenderOption returns the text an option displays as: NFC-normalised, trimmed
// and with internal whitespace runs collapsed to one space.
func RenderOption(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// ValidateQuestion checks the option list and answer index of q. The checks
// run in a fixed order and stop at the first failure. It has no side effects.
func ValidateQuestion(q Question) error {
	if len(q.Options) < MinOptions {
		return schemaViolation(KindQuestion, q.ID, ViolationInsufficientOptions,
			fmt.Sprintf("question needs at least %d options, got %d", MinOptions, len(q.Options)))
	}

	seen := make(map[string]int, len(q.Options))
	for i, opt := range q.Options {
		r := RenderOption(opt)
		if j, dup := seen[r]; dup {
			return schemaViolation(KindQuestion, q.ID, ViolationDuplicateOption,
				fmt.Sprintf("options %d and %d render the same text", j, i))
		}
		seen[r] = i
	}

	for i, opt := range q.Options {
		if RenderOption(opt) == "" {
			return schemaViolation(KindQuestion, q.ID, ViolationEmptyOptionText,
				fmt.Sprintf("option %d has no text", i))
		}
	}

	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return schemaViolation(KindQuestion, q.ID, ViolationAnswerIndexOutOfRange,
			fmt.Sprintf("correct index %d outside [0, %d)", q.CorrectIndex, len(q.Options)))
	}

	switch q.Difficulty {
	case "", DifficultyEasy, DifficultyMedium, DifficultyHard:
	default:
		return schemaViolation(KindQuestion, q.ID, ViolationInvalidDifficulty,
			fmt.Sprintf("difficulty %q is not one of easy, medium, hard", q.Difficulty))
	}

	return nil
}

func validateIdentifier(kind Kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return schemaViolation(kind, id, ViolationEmptyIdentifier, "identifier is required")
	}
	return nil
}

func validateName(kind Kind, id, name string) error {
	if strings.TrimSpace(name) == "" {
		return schemaViolation(kind, id, ViolationEmptyName, "name is required")
	}
	return nil
}
