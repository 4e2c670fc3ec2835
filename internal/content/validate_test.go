package content_test

import (
	"errors"
	"testing"

	"github.com/p-n-ai/medq/internal/content"
)

func TestValidateQuestion(t *testing.T) {
	tests := []struct {
		name      string
		q         content.Question
		violation string // "" means valid
	}{
		{
			name: "valid",
			q:    content.Question{Options: []string{"Aorta", "Vena cava"}, CorrectIndex: 1, Difficulty: "hard"},
		},
		{
			name: "empty difficulty allowed",
			q:    content.Question{Options: []string{"A", "B"}},
		},
		{
			name:      "one option",
			q:         content.Question{Options: []string{"A"}},
			violation: content.ViolationInsufficientOptions,
		},
		{
			name:      "no options",
			q:         content.Question{},
			violation: content.ViolationInsufficientOptions,
		},
		{
			name:      "exact duplicate",
			q:         content.Question{Options: []string{"Heart", "Heart"}},
			violation: content.ViolationDuplicateOption,
		},
		{
			name:      "duplicate after whitespace collapse",
			q:         content.Question{Options: []string{" Left  atrium", "Left atrium "}},
			violation: content.ViolationDuplicateOption,
		},
		{
			name:      "duplicate after unicode normalisation",
			q:         content.Question{Options: []string{"caf\u00e9", "cafe\u0301"}},
			violation: content.ViolationDuplicateOption,
		},
		{
			name:      "case differs is not a duplicate",
			q:         content.Question{Options: []string{"ATP", "atp"}},
			violation: "",
		},
		{
			name:      "blank option",
			q:         content.Question{Options: []string{"A", "   "}},
			violation: content.ViolationEmptyOptionText,
		},
		{
			name:      "two blanks report duplicate first",
			q:         content.Question{Options: []string{"", " ", "A"}},
			violation: content.ViolationDuplicateOption,
		},
		{
			name:      "index negative",
			q:         content.Question{Options: []string{"A", "B"}, CorrectIndex: -1},
			violation: content.ViolationAnswerIndexOutOfRange,
		},
		{
			name:      "index equal to length",
			q:         content.Question{Options: []string{"A", "B"}, CorrectIndex: 2},
			violation: content.ViolationAnswerIndexOutOfRange,
		},
		{
			name:      "unknown difficulty",
			q:         content.Question{Options: []string{"A", "B"}, Difficulty: "extreme"},
			violation: content.ViolationInvalidDifficulty,
		},
		{
			name:      "count checked before index",
			q:         content.Question{Options: []string{"A"}, CorrectIndex: 5},
			violation: content.ViolationInsufficientOptions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := content.ValidateQuestion(tt.q)
			if tt.violation == "" {
				if err != nil {
					t.Fatalf("ValidateQuestion() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, content.ErrSchemaViolation) {
				t.Fatalf("ValidateQuestion() error = %v, want schema violation", err)
			}
			ce, _ := content.AsError(err)
			if ce.Violation != tt.violation {
				t.Errorf("Violation = %q, want %q", ce.Violation, tt.violation)
			}
			if ce.Kind != content.KindQuestion {
				t.Errorf("Kind = %q, want question", ce.Kind)
			}
		})
	}
}

func TestRenderOption(t *testing.T) {
	if got := content.RenderOption("  a \t b\n"); got != "a b" {
		t.Errorf("RenderOption() = %q, want %q", got, "a b")
	}
	if content.RenderOption("caf\u00e9") != content.RenderOption("cafe\u0301") {
		t.Error("RenderOption() should normalise combining characters")
	}
}

func TestValidateQuestionJSON(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"valid", `{"text":"Q","options":["a","b"],"correct_index":0}`, false},
		{"extra fields ignored", `{"text":"Q","options":["a","b"],"correct_index":0,"is_correct":true}`, false},
		{"missing options", `{"text":"Q","correct_index":0}`, true},
		{"index as string", `{"text":"Q","options":["a","b"],"correct_index":"0"}`, true},
		{"option not a string", `{"text":"Q","options":["a",2],"correct_index":0}`, true},
		{"empty text", `{"text":"","options":["a","b"],"correct_index":0}`, true},
		{"not json", `{`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := content.ValidateQuestionJSON([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateQuestionJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, content.ErrSchemaViolation) {
				t.Errorf("error = %v, want schema violation", err)
			}
		})
	}
}

func TestError_IsAndRetryable(t *testing.T) {
	store := content.NewMemoryStore()
	svc := content.NewService(content.ServiceConfig{Store: store})

	_, err := svc.Delete(t.Context(), content.KindYear, "missing")
	if !errors.Is(err, content.ErrNotFound) {
		t.Fatalf("Delete() error = %v, want not found", err)
	}
	if errors.Is(err, content.ErrReferenceViolation) {
		t.Error("not found error should not match reference violation")
	}
	if content.IsRetryable(err) {
		t.Error("not found should not be retryable")
	}
}
