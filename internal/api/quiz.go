package api

import (
	"net/http"
	"strconv"

	"github.com/p-n-ai/medq/internal/quiz"
)

// StudentHeader carries the student identity set by the auth gateway in
// front of the service.
const StudentHeader = "X-Student-ID"

func (s *server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	student := r.Header.Get(StudentHeader)
	if student == "" {
		writeError(w, r, quiz.ErrNoStudent)
		return
	}
	var sub quiz.Submission
	if err := decodeRequest(w, r, &sub); err != nil {
		writeError(w, r, err)
		return
	}
	graded, err := s.quiz.Submit(r.Context(), student, sub)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, graded)
}

func (s *server) handleResponses(w http.ResponseWriter, r *http.Request) {
	student := r.Header.Get(StudentHeader)
	if student == "" {
		writeError(w, r, quiz.ErrNoStudent)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	responses, err := s.quiz.Responses(r.Context(), student, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"responses": responses})
}
