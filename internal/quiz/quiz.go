// Package quiz grades student submissions against the stored answer key and
// keeps a history of graded responses.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/medq/internal/content"
)

var (
	// ErrNoStudent is returned when a submission carries no student identity.
	ErrNoStudent = errors.New("student identity is required")
	// ErrInvalidSubmission wraps every malformed-submission failure.
	ErrInvalidSubmission = errors.New("invalid submission")
	// ErrLimitExceeded is returned once a student used up the daily limit.
	ErrLimitExceeded = errors.New("daily submission limit reached")
)

// Answer is one selected option. When QuestionID is empty the answer applies
// to the question at the same position in lecture order.
type Answer struct {
	QuestionID string `json:"question_id,omitempty"`
	Selected   int    `json:"selected"`
}

// Submission is what a student sends. It has no field for correctness; the
// server decides that.
type Submission struct {
	LectureID string   `json:"lecture_id"`
	Answers   []Answer `json:"answers"`
}

// Result is the graded outcome of one question.
type Result struct {
	QuestionID  string `json:"question_id"`
	Selected    *int   `json:"selected"`
	Correct     bool   `json:"correct"`
	Explanation string `json:"explanation,omitempty"`
}

// Graded is the response to a submission.
type Graded struct {
	ResponseID string   `json:"response_id"`
	LectureID  string   `json:"lecture_id"`
	Score      int      `json:"score"`
	Total      int      `json:"total"`
	Percent    float64  `json:"percent"`
	Results    []Result `json:"results"`
}

// QuestionSource gives the grader the full questions of a lecture.
type QuestionSource interface {
	LectureQuestions(ctx context.Context, id string) (content.Lecture, []content.Question, error)
}

// Grade scores answers against questions. Unanswered questions count as
// wrong; an answer that names no question of the lecture, or names one twice,
// rejects the whole submission.
func Grade(questions []content.Question, answers []Answer) (Graded, error) {
	byID := make(map[string]int, len(questions))
	for i, q := range questions {
		byID[q.ID] = i
	}

	selected := make([]*int, len(questions))
	for pos, a := range answers {
		idx := pos
		if a.QuestionID != "" {
			i, ok := byID[a.QuestionID]
			if !ok {
				return Graded{}, fmt.Errorf("%w: question %q is not part of this lecture", ErrInvalidSubmission, a.QuestionID)
			}
			idx = i
		} else if pos >= len(questions) {
			return Graded{}, fmt.Errorf("%w: %d answers for %d questions", ErrInvalidSubmission, len(answers), len(questions))
		}
		if selected[idx] != nil {
			return Graded{}, fmt.Errorf("%w: question %q answered twice", ErrInvalidSubmission, questions[idx].ID)
		}
		sel := a.Selected
		selected[idx] = &sel
	}

	g := Graded{Total: len(questions), Results: make([]Result, 0, len(questions))}
	for i, q := range questions {
		r := Result{QuestionID: q.ID, Selected: selected[i], Explanation: q.Explanation}
		if selected[i] != nil && *selected[i] == q.CorrectIndex {
			r.Correct = true
			g.Score++
		}
		g.Results = append(g.Results, r)
	}
	if g.Total > 0 {
		g.Percent = math.Round(float64(g.Score)*10000/float64(g.Total)) / 100
	}
	return g, nil
}

// Config holds dependencies for the quiz service.
type Config struct {
	Source  QuestionSource
	Store   Store
	Limiter Limiter
	Now     func() time.Time
}

// Service grades submissions and records them.
type Service struct {
	source  QuestionSource
	store   Store
	limiter Limiter
	now     func() time.Time
}

// NewService creates a quiz service.
func NewService(cfg Config) *Service {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NopLimiter{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{source: cfg.Source, store: store, limiter: limiter, now: now}
}

// Submit grades sub for studentID and stores the response. A submission that
// fails to save is still graded; the error is logged.
func (s *Service) Submit(ctx context.Context, studentID string, sub Submission) (Graded, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return Graded{}, ErrNoStudent
	}
	if strings.TrimSpace(sub.LectureID) == "" {
		return Graded{}, fmt.Errorf("%w: lecture_id is required", ErrInvalidSubmission)
	}

	ok, err := s.limiter.Allow(ctx, studentID)
	if err != nil {
		slog.Warn("submission limiter unavailable", "student_id", studentID, "error", err)
	} else if !ok {
		submissionsTotal.WithLabelValues("limited").Inc()
		return Graded{}, ErrLimitExceeded
	}

	lecture, questions, err := s.source.LectureQuestions(ctx, sub.LectureID)
	if err != nil {
		return Graded{}, err
	}
	if len(questions) == 0 {
		return Graded{}, fmt.Errorf("%w: lecture %q has no questions", ErrInvalidSubmission, lecture.ID)
	}

	g, err := Grade(questions, sub.Answers)
	if err != nil {
		submissionsTotal.WithLabelValues("rejected").Inc()
		return Graded{}, err
	}
	g.LectureID = lecture.ID
	g.ResponseID = uuid.NewString()

	resp := Response{
		ID:          g.ResponseID,
		StudentID:   studentID,
		LectureID:   lecture.ID,
		Score:       g.Score,
		Total:       g.Total,
		Results:     g.Results,
		SubmittedAt: s.now(),
	}
	if err := s.store.SaveResponse(ctx, resp); err != nil {
		slog.Error("failed to save quiz response",
			"student_id", studentID,
			"lecture_id", lecture.ID,
			"error", err,
		)
	}

	submissionsTotal.WithLabelValues("graded").Inc()
	scorePercent.Observe(g.Percent)
	slog.Info("quiz graded",
		"student_id", studentID,
		"lecture_id", lecture.ID,
		"score", g.Score,
		"total", g.Total,
	)
	return g, nil
}

// Responses returns the most recent responses of studentID, newest first.
func (s *Service) Responses(ctx context.Context, studentID string, limit int) ([]Response, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, ErrNoStudent
	}
	if limit <= 0 || limit > maxHistory {
		limit = maxHistory
	}
	return s.store.ListResponses(ctx, studentID, limit)
}
