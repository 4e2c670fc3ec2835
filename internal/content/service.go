package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultMaxBatch = 50

// Change describes one committed write, for subscribers that keep derived
// state (admin dashboards, offline PWA caches) fresh.
type Change struct {
	Op    string    `json:"op"`
	Kind  Kind      `json:"kind,omitempty"`
	ID    string    `json:"id,omitempty"`
	OldID string    `json:"old_id,omitempty"`
	At    time.Time `json:"at"`
}

// Change operations.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpRename = "rename"
	OpDelete = "delete"
	OpImport = "import"
)

// Notifier receives a Change after its transaction commits.
type Notifier interface {
	Notify(ctx context.Context, c Change) error
}

// NopNotifier drops every change.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Change) error { return nil }

// ServiceConfig holds dependencies for the content service.
type ServiceConfig struct {
	Store    Store
	Notifier Notifier
	MaxBatch int // lectures per batch read (default 50)
}

// Service is the single entry point for reading and changing content. Every
// write is checked by the resolver and runs in one store transaction.
type Service struct {
	store    Store
	resolver Resolver
	renamer  *RenamePropagator
	cascade  *CascadeEngine
	tree     *Materializer
	notifier Notifier
	maxBatch int
}

// NewService creates a content service.
func NewService(cfg ServiceConfig) *Service {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = defaultMaxBatch
	}
	return &Service{
		store:    store,
		renamer:  NewRenamePropagator(store),
		cascade:  NewCascadeEngine(store),
		tree:     NewMaterializer(store),
		notifier: notifier,
		maxBatch: maxBatch,
	}
}

// MaxBatch is the largest number of lectures Lectures accepts.
func (s *Service) MaxBatch() int { return s.maxBatch }

// HealthCheck verifies the backing store is reachable.
func (s *Service) HealthCheck(ctx context.Context) error {
	return s.store.HealthCheck(ctx)
}

func (s *Service) write(ctx context.Context, kind Kind, id string, fn func(ctx context.Context, tx Tx) error) error {
	if err := s.store.InTx(ctx, fn); err != nil {
		err = writeFailure(kind, id, err)
		recordWriteError(err)
		return err
	}
	return nil
}

func (s *Service) notify(ctx context.Context, c Change) {
	c.At = time.Now()
	if err := s.notifier.Notify(ctx, c); err != nil {
		slog.Warn("change notification failed", "op", c.Op, "kind", c.Kind, "id", c.ID, "error", err)
	}
}

// CreateYear inserts a new root year.
func (s *Service) CreateYear(ctx context.Context, y Year) (Year, error) {
	y.ID, y.Name, y.Icon = strings.TrimSpace(y.ID), strings.TrimSpace(y.Name), strings.TrimSpace(y.Icon)
	if err := validateName(KindYear, y.ID, y.Name); err != nil {
		return Year{}, err
	}
	err := s.write(ctx, KindYear, y.ID, func(ctx context.Context, tx Tx) error {
		if err := s.resolver.AssertUnique(ctx, tx, KindYear, y.ID); err != nil {
			return err
		}
		return tx.InsertYear(ctx, y)
	})
	if err != nil {
		return Year{}, err
	}
	s.notify(ctx, Change{Op: OpCreate, Kind: KindYear, ID: y.ID})
	return y, nil
}

// CreateModule inserts a module under an existing year.
func (s *Service) CreateModule(ctx context.Context, m Module) (Module, error) {
	m.ID, m.Name = strings.TrimSpace(m.ID), strings.TrimSpace(m.Name)
	if err := validateName(KindModule, m.ID, m.Name); err != nil {
		return Module{}, err
	}
	err := s.write(ctx, KindModule, m.ID, func(ctx context.Context, tx Tx) error {
		if err := s.resolver.AssertUnique(ctx, tx, KindModule, m.ID); err != nil {
			return err
		}
		parent, err := s.resolver.AssertParentExists(ctx, tx, KindModule, m.YearID)
		if err != nil {
			return err
		}
		m.YearID = parent
		return tx.InsertModule(ctx, m)
	})
	if err != nil {
		return Module{}, err
	}
	s.notify(ctx, Change{Op: OpCreate, Kind: KindModule, ID: m.ID})
	return m, nil
}

// CreateSubject inserts a subject under an existing module.
func (s *Service) CreateSubject(ctx context.Context, sub Subject) (Subject, error) {
	sub.ID, sub.Name = strings.TrimSpace(sub.ID), strings.TrimSpace(sub.Name)
	if err := validateName(KindSubject, sub.ID, sub.Name); err != nil {
		return Subject{}, err
	}
	err := s.write(ctx, KindSubject, sub.ID, func(ctx context.Context, tx Tx) error {
		if err := s.resolver.AssertUnique(ctx, tx, KindSubject, sub.ID); err != nil {
			return err
		}
		parent, err := s.resolver.AssertParentExists(ctx, tx, KindSubject, sub.ModuleID)
		if err != nil {
			return err
		}
		sub.ModuleID = parent
		return tx.InsertSubject(ctx, sub)
	})
	if err != nil {
		return Subject{}, err
	}
	s.notify(ctx, Change{Op: OpCreate, Kind: KindSubject, ID: sub.ID})
	return sub, nil
}

// CreateLecture inserts a lecture, attached to a subject or unattached.
func (s *Service) CreateLecture(ctx context.Context, l Lecture) (Lecture, error) {
	l.ID, l.Name = strings.TrimSpace(l.ID), strings.TrimSpace(l.Name)
	if err := validateName(KindLecture, l.ID, l.Name); err != nil {
		return Lecture{}, err
	}
	err := s.write(ctx, KindLecture, l.ID, func(ctx context.Context, tx Tx) error {
		if err := s.resolver.AssertUnique(ctx, tx, KindLecture, l.ID); err != nil {
			return err
		}
		parent, err := s.resolver.AssertParentExists(ctx, tx, KindLecture, l.Subject())
		if err != nil {
			return err
		}
		l.SubjectID = optional(parent)
		return tx.InsertLecture(ctx, l)
	})
	if err != nil {
		return Lecture{}, err
	}
	s.notify(ctx, Change{Op: OpCreate, Kind: KindLecture, ID: l.ID})
	return l, nil
}

// AddQuestion validates q and adds it to an existing lecture. An empty
// question ID is assigned a generated one.
func (s *Service) AddQuestion(ctx context.Context, lectureID string, q Question) (Question, error) {
	q.LectureID = lectureID
	return s.CreateQuestion(ctx, q)
}

// CreateQuestion validates q and inserts it under q.LectureID.
func (s *Service) CreateQuestion(ctx context.Context, q Question) (Question, error) {
	q = normalizeQuestion(q)
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if err := ValidateQuestion(q); err != nil {
		recordWriteError(err)
		return Question{}, err
	}
	err := s.write(ctx, KindQuestion, q.ID, func(ctx context.Context, tx Tx) error {
		if err := s.resolver.AssertUnique(ctx, tx, KindQuestion, q.ID); err != nil {
			return err
		}
		parent, err := s.resolver.AssertParentExists(ctx, tx, KindQuestion, q.LectureID)
		if err != nil {
			return err
		}
		q.LectureID = parent
		return tx.InsertQuestion(ctx, q)
	})
	if err != nil {
		return Question{}, err
	}
	s.notify(ctx, Change{Op: OpCreate, Kind: KindQuestion, ID: q.ID})
	return q, nil
}

func normalizeQuestion(q Question) Question {
	q.ID = strings.TrimSpace(q.ID)
	q.LectureID = strings.TrimSpace(q.LectureID)
	q.Text = strings.TrimSpace(q.Text)
	q.Explanation = strings.TrimSpace(q.Explanation)
	if q.Difficulty == "" {
		q.Difficulty = DifficultyMedium
	}
	return q
}

// update resolves id (legacy keys accepted) and runs apply with the
// canonical identifier.
func (s *Service) update(ctx context.Context, kind Kind, id string, apply func(ctx context.Context, tx Tx, canonical string) error) (string, error) {
	var canonical string
	err := s.write(ctx, kind, id, func(ctx context.Context, tx Tx) error {
		h, err := s.resolver.Resolve(ctx, tx, kind, id)
		if err != nil {
			return err
		}
		canonical = h.ID
		if err := apply(ctx, tx, canonical); err != nil {
			if errors.Is(err, ErrNoRecord) {
				return notFound(kind, canonical)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	s.notify(ctx, Change{Op: OpUpdate, Kind: kind, ID: canonical})
	return canonical, nil
}

// UpdateYear replaces the name and icon of year id.
func (s *Service) UpdateYear(ctx context.Context, id string, y Year) (Year, error) {
	y.Name, y.Icon = strings.TrimSpace(y.Name), strings.TrimSpace(y.Icon)
	if err := validateName(KindYear, id, y.Name); err != nil {
		return Year{}, err
	}
	canonical, err := s.update(ctx, KindYear, id, func(ctx context.Context, tx Tx, canonical string) error {
		y.ID = canonical
		return tx.UpdateYear(ctx, y)
	})
	if err != nil {
		return Year{}, err
	}
	y.ID = canonical
	return y, nil
}

// UpdateModule replaces the name and year of module id.
func (s *Service) UpdateModule(ctx context.Context, id string, m Module) (Module, error) {
	m.Name = strings.TrimSpace(m.Name)
	if err := validateName(KindModule, id, m.Name); err != nil {
		return Module{}, err
	}
	canonical, err := s.update(ctx, KindModule, id, func(ctx context.Context, tx Tx, canonical string) error {
		parent, err := s.resolver.AssertParentExists(ctx, tx, KindModule, m.YearID)
		if err != nil {
			return err
		}
		m.ID, m.YearID = canonical, parent
		return tx.UpdateModule(ctx, m)
	})
	if err != nil {
		return Module{}, err
	}
	m.ID = canonical
	return m, nil
}

// UpdateSubject replaces the name and module of subject id.
func (s *Service) UpdateSubject(ctx context.Context, id string, sub Subject) (Subject, error) {
	sub.Name = strings.TrimSpace(sub.Name)
	if err := validateName(KindSubject, id, sub.Name); err != nil {
		return Subject{}, err
	}
	canonical, err := s.update(ctx, KindSubject, id, func(ctx context.Context, tx Tx, canonical string) error {
		parent, err := s.resolver.AssertParentExists(ctx, tx, KindSubject, sub.ModuleID)
		if err != nil {
			return err
		}
		sub.ID, sub.ModuleID = canonical, parent
		return tx.UpdateSubject(ctx, sub)
	})
	if err != nil {
		return Subject{}, err
	}
	sub.ID = canonical
	return sub, nil
}

// UpdateLecture replaces the name, order and subject of lecture id. A nil
// subject detaches the lecture.
func (s *Service) UpdateLecture(ctx context.Context, id string, l Lecture) (Lecture, error) {
	l.Name = strings.TrimSpace(l.Name)
	if err := validateName(KindLecture, id, l.Name); err != nil {
		return Lecture{}, err
	}
	canonical, err := s.update(ctx, KindLecture, id, func(ctx context.Context, tx Tx, canonical string) error {
		parent, err := s.resolver.AssertParentExists(ctx, tx, KindLecture, l.Subject())
		if err != nil {
			return err
		}
		l.ID, l.SubjectID = canonical, optional(parent)
		return tx.UpdateLecture(ctx, l)
	})
	if err != nil {
		return Lecture{}, err
	}
	l.ID = canonical
	return l, nil
}

// UpdateQuestion replaces the content of question id after validating it.
func (s *Service) UpdateQuestion(ctx context.Context, id string, q Question) (Question, error) {
	q = normalizeQuestion(q)
	q.ID = strings.TrimSpace(id)
	if err := ValidateQuestion(q); err != nil {
		recordWriteError(err)
		return Question{}, err
	}
	canonical, err := s.update(ctx, KindQuestion, id, func(ctx context.Context, tx Tx, canonical string) error {
		parent, err := s.resolver.AssertParentExists(ctx, tx, KindQuestion, q.LectureID)
		if err != nil {
			return err
		}
		q.ID, q.LectureID = canonical, parent
		return tx.UpdateQuestion(ctx, q)
	})
	if err != nil {
		return Question{}, err
	}
	q.ID = canonical
	return q, nil
}

// Rename changes the external identifier of kind oldID and re-points its
// children.
func (s *Service) Rename(ctx context.Context, kind Kind, oldID, newID string) (RenameResult, error) {
	res, err := s.renamer.Rename(ctx, kind, oldID, newID)
	if err != nil {
		recordWriteError(err)
		return RenameResult{}, err
	}
	if res.OldID != res.NewID {
		s.notify(ctx, Change{Op: OpRename, Kind: kind, ID: res.NewID, OldID: res.OldID})
	}
	return res, nil
}

// Delete removes kind id together with its whole subtree.
func (s *Service) Delete(ctx context.Context, kind Kind, id string) (CascadeSummary, error) {
	summary, err := s.cascade.DeleteSubtree(ctx, kind, id)
	if err != nil {
		recordWriteError(err)
		return summary, err
	}
	s.notify(ctx, Change{Op: OpDelete, Kind: kind, ID: summary.ID})
	return summary, nil
}

// Tree returns the student tree.
func (s *Service) Tree(ctx context.Context) (Tree, error) {
	return s.tree.LoadTree(ctx)
}

// AdminTree returns the tree with questions and correct answers.
func (s *Service) AdminTree(ctx context.Context) (AdminTree, error) {
	return s.tree.LoadAdminTree(ctx)
}

// LectureQuestions returns a lecture and its full questions, correct indexes
// included. It is meant for server-side grading and admin use only.
func (s *Service) LectureQuestions(ctx context.Context, id string) (Lecture, []Question, error) {
	h, err := s.resolver.Resolve(ctx, s.store, KindLecture, id)
	if err != nil {
		return Lecture{}, nil, err
	}
	lectures, err := s.store.GetLectures(ctx, []string{h.ID})
	if err != nil {
		return Lecture{}, nil, fmt.Errorf("get lecture: %w", err)
	}
	if len(lectures) == 0 {
		return Lecture{}, nil, notFound(KindLecture, h.ID)
	}
	questions, err := s.store.ListQuestions(ctx, []string{h.ID})
	if err != nil {
		return Lecture{}, nil, fmt.Errorf("list questions: %w", err)
	}
	sortQuestions(questions)
	return lectures[0], questions, nil
}

// Lecture returns the student view of one lecture.
func (s *Service) Lecture(ctx context.Context, id string) (LectureDetail, error) {
	l, questions, err := s.LectureQuestions(ctx, id)
	if err != nil {
		return LectureDetail{}, err
	}
	return lectureDetail(l, questions), nil
}

// Lectures returns the student view of up to MaxBatch lectures. The cap
// counts every requested identifier, repeats included. Unknown identifiers
// are skipped; the result keeps the order of ids.
func (s *Service) Lectures(ctx context.Context, ids []string) ([]LectureDetail, error) {
	clean := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	requested := 0
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		requested++
		if seen[id] {
			continue
		}
		seen[id] = true
		clean = append(clean, id)
	}
	if requested == 0 {
		return nil, schemaViolation(KindLecture, "", "BatchEmpty", "at least one lecture identifier is required")
	}
	if requested > s.maxBatch {
		return nil, schemaViolation(KindLecture, "", "BatchTooLarge",
			fmt.Sprintf("at most %d lectures per request, got %d", s.maxBatch, requested))
	}

	canonical := make([]string, 0, len(clean))
	for _, id := range clean {
		h, err := s.resolver.Resolve(ctx, s.store, KindLecture, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		canonical = append(canonical, h.ID)
	}
	if len(canonical) == 0 {
		return []LectureDetail{}, nil
	}

	lectures, err := s.store.GetLectures(ctx, canonical)
	if err != nil {
		return nil, fmt.Errorf("get lectures: %w", err)
	}
	questions, err := s.store.ListQuestions(ctx, canonical)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	byLecture := make(map[string][]Question, len(lectures))
	for _, q := range questions {
		byLecture[q.LectureID] = append(byLecture[q.LectureID], q)
	}
	byID := make(map[string]Lecture, len(lectures))
	for _, l := range lectures {
		byID[l.ID] = l
	}

	out := make([]LectureDetail, 0, len(lectures))
	for _, id := range canonical {
		l, ok := byID[id]
		if !ok {
			continue
		}
		qs := byLecture[id]
		sortQuestions(qs)
		out = append(out, lectureDetail(l, qs))
	}
	return out, nil
}

func lectureDetail(l Lecture, questions []Question) LectureDetail {
	d := LectureDetail{
		ID:        l.ID,
		Name:      l.Name,
		SubjectID: l.SubjectID,
		Order:     l.Order,
		Questions: make([]PublicQuestion, 0, len(questions)),
	}
	for _, q := range questions {
		d.Questions = append(d.Questions, q.Public())
	}
	return d
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
