package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/p-n-ai/medq/internal/content"
)

var errBadRequest = errors.New("bad request")

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return body, nil
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
	}
	return nil
}

func decodeRequest(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	return decode(body, v)
}

func kindParam(r *http.Request) (content.Kind, error) {
	kind, err := content.ParseKind(r.PathValue("kind"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return kind, nil
}

// writeDocument serves doc with a strong ETag over its exact bytes.
func writeDocument(w http.ResponseWriter, r *http.Request, doc any) {
	body, fingerprint, err := content.Encode(doc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	etag := `"` + fingerprint + `"`
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && etagMatches(match, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}

func (s *server) handleTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.content.Tree(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if tree.Empty() {
		writeErrorBody(w, http.StatusNotFound, errorBody{Code: string(content.CodeNotFound), Message: "no content has been published"})
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	writeDocument(w, r, tree)
}

func (s *server) handleLecture(w http.ResponseWriter, r *http.Request) {
	d, err := s.content.Lecture(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleLectures accepts ?ids=a,b,c and repeated ?ids= parameters.
func (s *server) handleLectures(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, v := range r.URL.Query()["ids"] {
		ids = append(ids, strings.Split(v, ",")...)
	}
	lectures, err := s.content.Lectures(r.Context(), ids)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lectures": lectures})
}

func (s *server) handleAdminTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.content.AdminTree(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeDocument(w, r, tree)
}

func (s *server) handleCreate(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var created any
	ctx := r.Context()
	switch kind {
	case content.KindYear:
		var y content.Year
		if err = decode(body, &y); err == nil {
			created, err = s.content.CreateYear(ctx, y)
		}
	case content.KindModule:
		var m content.Module
		if err = decode(body, &m); err == nil {
			created, err = s.content.CreateModule(ctx, m)
		}
	case content.KindSubject:
		var sub content.Subject
		if err = decode(body, &sub); err == nil {
			created, err = s.content.CreateSubject(ctx, sub)
		}
	case content.KindLecture:
		var l content.Lecture
		if err = decode(body, &l); err == nil {
			created, err = s.content.CreateLecture(ctx, l)
		}
	case content.KindQuestion:
		var q content.Question
		if q, err = decodeQuestion(body); err == nil {
			created, err = s.content.CreateQuestion(ctx, q)
		}
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func decodeQuestion(body []byte) (content.Question, error) {
	if err := content.ValidateQuestionJSON(body); err != nil {
		return content.Question{}, err
	}
	var q content.Question
	if err := decode(body, &q); err != nil {
		return content.Question{}, err
	}
	return q, nil
}

func (s *server) handleAddQuestion(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := decodeQuestion(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.content.AddQuestion(r.Context(), r.PathValue("id"), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	id := r.PathValue("id")
	ctx := r.Context()
	var updated any
	switch kind {
	case content.KindYear:
		var y content.Year
		if err = decode(body, &y); err == nil {
			updated, err = s.content.UpdateYear(ctx, id, y)
		}
	case content.KindModule:
		var m content.Module
		if err = decode(body, &m); err == nil {
			updated, err = s.content.UpdateModule(ctx, id, m)
		}
	case content.KindSubject:
		var sub content.Subject
		if err = decode(body, &sub); err == nil {
			updated, err = s.content.UpdateSubject(ctx, id, sub)
		}
	case content.KindLecture:
		var l content.Lecture
		if err = decode(body, &l); err == nil {
			updated, err = s.content.UpdateLecture(ctx, id, l)
		}
	case content.KindQuestion:
		var q content.Question
		if q, err = decodeQuestion(body); err == nil {
			updated, err = s.content.UpdateQuestion(ctx, id, q)
		}
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type renameRequest struct {
	NewID string `json:"new_id"`
}

func (s *server) handleRename(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req renameRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.content.Rename(r.Context(), kind, r.PathValue("id"), req.NewID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := s.content.Delete(r.Context(), kind, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
