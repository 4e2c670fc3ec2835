// Package api exposes the content service and quiz grading over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/p-n-ai/medq/internal/content"
	"github.com/p-n-ai/medq/internal/quiz"
)

const maxBodyBytes = 1 << 20

// Checker is a dependency /readyz pings.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Config holds the dependencies of the HTTP surface.
type Config struct {
	Content *content.Service
	Quiz    *quiz.Service
	// Events serves the change stream; nil disables /api/events.
	Events http.Handler
	// Admin guards every /api/admin route.
	Admin Middleware
	// Checks are pinged by /readyz, keyed by name.
	Checks map[string]Checker
}

type server struct {
	content *content.Service
	quiz    *quiz.Service
	checks  map[string]Checker
}

// NewMux builds the router.
func NewMux(cfg Config) *http.ServeMux {
	s := &server{content: cfg.Content, quiz: cfg.Quiz, checks: cfg.Checks}
	guard := cfg.Admin
	if guard == nil {
		guard = RequireToken("")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/tree", s.handleTree)
	mux.HandleFunc("GET /api/lectures/{id}", s.handleLecture)
	mux.HandleFunc("GET /api/lectures", s.handleLectures)
	mux.HandleFunc("POST /api/quiz/submissions", s.handleSubmit)
	mux.HandleFunc("GET /api/quiz/responses", s.handleResponses)
	if cfg.Events != nil {
		mux.Handle("GET /api/events", cfg.Events)
	}

	admin := http.NewServeMux()
	admin.HandleFunc("GET /api/admin/tree", s.handleAdminTree)
	admin.HandleFunc("POST /api/admin/{kind}", s.handleCreate)
	admin.HandleFunc("PUT /api/admin/{kind}/{id}", s.handleUpdate)
	admin.HandleFunc("DELETE /api/admin/{kind}/{id}", s.handleDelete)
	admin.HandleFunc("POST /api/admin/{kind}/{id}/rename", s.handleRename)
	admin.HandleFunc("POST /api/admin/lectures/{id}/questions", s.handleAddQuestion)
	mux.Handle("/api/admin/", guard(noStore(admin)))

	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	failed := make(map[string]string)
	for name, c := range s.checks {
		if err := c.HealthCheck(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
