package quiz_test

import (
	"context"
	"errors"
	"testing"

	"github.com/p-n-ai/medq/internal/content"
	"github.com/p-n-ai/medq/internal/quiz"
)

func lectureQuestions() []content.Question {
	return []content.Question{
		{ID: "q1", LectureID: "l1", Options: []string{"A", "B"}, CorrectIndex: 0, Order: 1, Explanation: "A is right."},
		{ID: "q2", LectureID: "l1", Options: []string{"C", "D", "E"}, CorrectIndex: 2, Order: 2},
	}
}

func TestGrade_HalfCorrect(t *testing.T) {
	g, err := quiz.Grade(lectureQuestions(), []quiz.Answer{{Selected: 0}, {Selected: 1}})
	if err != nil {
		t.Fatalf("Grade() error = %v", err)
	}
	if g.Score != 1 || g.Total != 2 {
		t.Errorf("score = %d/%d, want 1/2", g.Score, g.Total)
	}
	if g.Percent != 50 {
		t.Errorf("Percent = %v, want 50", g.Percent)
	}
	if !g.Results[0].Correct || g.Results[1].Correct {
		t.Errorf("results = %+v, want [correct, wrong]", g.Results)
	}
	if g.Results[0].Explanation != "A is right." {
		t.Errorf("Explanation = %q, want it released after grading", g.Results[0].Explanation)
	}
}

func TestGrade(t *testing.T) {
	tests := []struct {
		name      string
		answers   []quiz.Answer
		wantScore int
		wantErr   bool
	}{
		{"by id, reordered", []quiz.Answer{{QuestionID: "q2", Selected: 2}, {QuestionID: "q1", Selected: 0}}, 2, false},
		{"unanswered counts wrong", []quiz.Answer{{QuestionID: "q2", Selected: 2}}, 1, false},
		{"no answers", nil, 0, false},
		{"out of range selection is wrong", []quiz.Answer{{Selected: 9}, {Selected: -1}}, 0, false},
		{"unknown question", []quiz.Answer{{QuestionID: "q9", Selected: 0}}, 0, true},
		{"answered twice", []quiz.Answer{{QuestionID: "q1", Selected: 0}, {QuestionID: "q1", Selected: 1}}, 0, true},
		{"too many positional answers", []quiz.Answer{{Selected: 0}, {Selected: 2}, {Selected: 1}}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := quiz.Grade(lectureQuestions(), tt.answers)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Grade() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, quiz.ErrInvalidSubmission) {
					t.Errorf("error = %v, want ErrInvalidSubmission", err)
				}
				return
			}
			if g.Score != tt.wantScore {
				t.Errorf("Score = %d, want %d", g.Score, tt.wantScore)
			}
		})
	}
}

func newContent(t *testing.T) *content.Service {
	t.Helper()
	ctx := t.Context()
	svc := content.NewService(content.ServiceConfig{})
	if _, err := svc.CreateLecture(ctx, content.Lecture{ID: "l1", Name: "Lecture 1"}); err != nil {
		t.Fatalf("CreateLecture() error = %v", err)
	}
	if _, err := svc.CreateLecture(ctx, content.Lecture{ID: "empty", Name: "No questions"}); err != nil {
		t.Fatalf("CreateLecture() error = %v", err)
	}
	for _, q := range lectureQuestions() {
		q.Text = "Question " + q.ID
		if _, err := svc.CreateQuestion(ctx, q); err != nil {
			t.Fatalf("CreateQuestion() error = %v", err)
		}
	}
	return svc
}

func TestService_Submit(t *testing.T) {
	store := quiz.NewMemoryStore()
	svc := quiz.NewService(quiz.Config{Source: newContent(t), Store: store})
	ctx := t.Context()

	g, err := svc.Submit(ctx, "student-1", quiz.Submission{
		LectureID: "l1",
		Answers:   []quiz.Answer{{Selected: 0}, {Selected: 1}},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if g.Score != 1 || g.Total != 2 || g.ResponseID == "" {
		t.Errorf("Submit() = %+v, want 1/2 with a response id", g)
	}

	history, err := svc.Responses(ctx, "student-1", 0)
	if err != nil {
		t.Fatalf("Responses() error = %v", err)
	}
	if len(history) != 1 || history[0].ID != g.ResponseID {
		t.Fatalf("Responses() = %+v, want the graded response", history)
	}
	if other, _ := svc.Responses(ctx, "student-2", 10); len(other) != 0 {
		t.Errorf("student-2 history = %d, want 0", len(other))
	}
}

func TestService_SubmitErrors(t *testing.T) {
	svc := quiz.NewService(quiz.Config{Source: newContent(t)})
	ctx := t.Context()

	if _, err := svc.Submit(ctx, " ", quiz.Submission{LectureID: "l1"}); !errors.Is(err, quiz.ErrNoStudent) {
		t.Errorf("Submit(no student) error = %v, want ErrNoStudent", err)
	}
	if _, err := svc.Submit(ctx, "s", quiz.Submission{}); !errors.Is(err, quiz.ErrInvalidSubmission) {
		t.Errorf("Submit(no lecture) error = %v, want ErrInvalidSubmission", err)
	}
	if _, err := svc.Submit(ctx, "s", quiz.Submission{LectureID: "missing"}); !errors.Is(err, content.ErrNotFound) {
		t.Errorf("Submit(missing lecture) error = %v, want not found", err)
	}
	if _, err := svc.Submit(ctx, "s", quiz.Submission{LectureID: "empty"}); !errors.Is(err, quiz.ErrInvalidSubmission) {
		t.Errorf("Submit(empty lecture) error = %v, want ErrInvalidSubmission", err)
	}
}

func TestService_DailyLimit(t *testing.T) {
	svc := quiz.NewService(quiz.Config{Source: newContent(t), Limiter: quiz.NewMemoryLimiter(2)})
	ctx := t.Context()
	sub := quiz.Submission{LectureID: "l1", Answers: []quiz.Answer{{Selected: 0}}}

	for i := range 2 {
		if _, err := svc.Submit(ctx, "student-1", sub); err != nil {
			t.Fatalf("Submit() #%d error = %v", i+1, err)
		}
	}
	if _, err := svc.Submit(ctx, "student-1", sub); !errors.Is(err, quiz.ErrLimitExceeded) {
		t.Fatalf("Submit() #3 error = %v, want ErrLimitExceeded", err)
	}
	if _, err := svc.Submit(ctx, "student-2", sub); err != nil {
		t.Errorf("other student Submit() error = %v", err)
	}
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("cache down")
}

func TestService_LimiterFailureAllows(t *testing.T) {
	svc := quiz.NewService(quiz.Config{Source: newContent(t), Limiter: brokenLimiter{}})
	if _, err := svc.Submit(t.Context(), "s", quiz.Submission{LectureID: "l1"}); err != nil {
		t.Errorf("Submit() error = %v, want grading to continue without the limiter", err)
	}
}

func TestMemoryStore_NewestFirst(t *testing.T) {
	store := quiz.NewMemoryStore()
	ctx := t.Context()
	for _, id := range []string{"r1", "r2", "r3"} {
		if err := store.SaveResponse(ctx, quiz.Response{ID: id, StudentID: "s"}); err != nil {
			t.Fatalf("SaveResponse() error = %v", err)
		}
	}
	got, err := store.ListResponses(ctx, "s", 2)
	if err != nil {
		t.Fatalf("ListResponses() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "r3" || got[1].ID != "r2" {
		t.Errorf("ListResponses() = %+v, want r3, r2", got)
	}
}

func TestNewPostgresStore_NilPool(t *testing.T) {
	if _, err := quiz.NewPostgresStore(nil); err == nil {
		t.Fatal("expected error for nil pool")
	}
}
