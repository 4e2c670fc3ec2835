package content

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// FaultHook is consulted before every write primitive of a MemoryStore
// transaction. A non-nil error aborts that primitive.
type FaultHook func(op string, kind Kind) error

type memoryState struct {
	years     map[string]Year
	modules   map[string]Module
	subjects  map[string]Subject
	lectures  map[string]Lecture
	questions map[string]Question
	legacy    map[Kind]map[string]string
}

func newMemoryState() memoryState {
	legacy := make(map[Kind]map[string]string, len(Kinds))
	for _, k := range Kinds {
		legacy[k] = make(map[string]string)
	}
	return memoryState{
		years:     make(map[string]Year),
		modules:   make(map[string]Module),
		subjects:  make(map[string]Subject),
		lectures:  make(map[string]Lecture),
		questions: make(map[string]Question),
		legacy:    legacy,
	}
}

func (s memoryState) clone() memoryState {
	c := newMemoryState()
	for k, v := range s.years {
		c.years[k] = v
	}
	for k, v := range s.modules {
		c.modules[k] = v
	}
	for k, v := range s.subjects {
		c.subjects[k] = v
	}
	for k, v := range s.lectures {
		c.lectures[k] = cloneLecture(v)
	}
	for k, v := range s.questions {
		c.questions[k] = cloneQuestion(v)
	}
	for kind, m := range s.legacy {
		for k, v := range m {
			c.legacy[kind][k] = v
		}
	}
	return c
}

func cloneLecture(l Lecture) Lecture {
	if l.SubjectID != nil {
		sid := *l.SubjectID
		l.SubjectID = &sid
	}
	return l
}

func cloneQuestion(q Question) Question {
	q.Options = slices.Clone(q.Options)
	return q
}

// MemoryStore is an in-memory Store. Transactions are serialised and work on
// a copy of the state that replaces the live state only when fn succeeds.
type MemoryStore struct {
	mu    sync.RWMutex
	state memoryState
	fault FaultHook
	nowFn func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: newMemoryState(),
		nowFn: time.Now,
	}
}

// SetFaultHook installs a hook used by tests to fail writes mid-transaction.
func (s *MemoryStore) SetFaultHook(h FaultHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = h
}

// Count returns the number of live records of kind.
func (s *MemoryStore) Count(kind Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch kind {
	case KindYear:
		return len(s.state.years)
	case KindModule:
		return len(s.state.modules)
	case KindSubject:
		return len(s.state.subjects)
	case KindLecture:
		return len(s.state.lectures)
	case KindQuestion:
		return len(s.state.questions)
	}
	return 0
}

func (s *MemoryStore) HealthCheck(context.Context) error { return nil }

func (s *MemoryStore) Exists(_ context.Context, kind Kind, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.has(kind, id), nil
}

func (s *MemoryStore) LookupLegacy(_ context.Context, kind Kind, legacyKey string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.state.legacy[kind][legacyKey]
	return id, ok, nil
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{state: s.state.clone(), fault: s.fault, now: s.nowFn()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	// Mirrors the deferred foreign keys of the Postgres schema.
	if err := tx.state.checkReferences(); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (s *MemoryStore) ListYears(context.Context) ([]Year, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Year, 0, len(s.state.years))
	for _, y := range s.state.years {
		out = append(out, y)
	}
	return out, nil
}

func (s *MemoryStore) ListModules(context.Context) ([]Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Module, 0, len(s.state.modules))
	for _, m := range s.state.modules {
		out = append(out, m)
	}
	return out, nil
}

func (s *MemoryStore) ListSubjects(context.Context) ([]Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Subject, 0, len(s.state.subjects))
	for _, sub := range s.state.subjects {
		out = append(out, sub)
	}
	return out, nil
}

func (s *MemoryStore) ListLectures(context.Context) ([]Lecture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Lecture, 0, len(s.state.lectures))
	for _, l := range s.state.lectures {
		out = append(out, cloneLecture(l))
	}
	return out, nil
}

func (s *MemoryStore) ListQuestions(_ context.Context, lectureIDs []string) ([]Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Question, 0)
	for _, q := range s.state.questions {
		if lectureIDs == nil || slices.Contains(lectureIDs, q.LectureID) {
			out = append(out, cloneQuestion(q))
		}
	}
	return out, nil
}

func (s *MemoryStore) GetLectures(_ context.Context, ids []string) ([]Lecture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Lecture, 0, len(ids))
	for _, id := range ids {
		if l, ok := s.state.lectures[id]; ok {
			out = append(out, cloneLecture(l))
		}
	}
	return out, nil
}

func (s memoryState) has(kind Kind, id string) bool {
	var ok bool
	switch kind {
	case KindYear:
		_, ok = s.years[id]
	case KindModule:
		_, ok = s.modules[id]
	case KindSubject:
		_, ok = s.subjects[id]
	case KindLecture:
		_, ok = s.lectures[id]
	case KindQuestion:
		_, ok = s.questions[id]
	}
	return ok
}

func (s memoryState) checkReferences() error {
	for _, m := range s.modules {
		if !s.has(KindYear, m.YearID) {
			return referenceViolation(KindYear, m.YearID, KindModule)
		}
	}
	for _, sub := range s.subjects {
		if !s.has(KindModule, sub.ModuleID) {
			return referenceViolation(KindModule, sub.ModuleID, KindSubject)
		}
	}
	for _, l := range s.lectures {
		if l.SubjectID != nil && !s.has(KindSubject, *l.SubjectID) {
			return referenceViolation(KindSubject, *l.SubjectID, KindLecture)
		}
	}
	for _, q := range s.questions {
		if !s.has(KindLecture, q.LectureID) {
			return referenceViolation(KindLecture, q.LectureID, KindQuestion)
		}
	}
	return nil
}

type memoryTx struct {
	state memoryState
	fault FaultHook
	now   time.Time
}

func (tx *memoryTx) check(op string, kind Kind) error {
	if tx.fault == nil {
		return nil
	}
	if err := tx.fault(op, kind); err != nil {
		return fmt.Errorf("%s %s: %w", op, kind, err)
	}
	return nil
}

func (tx *memoryTx) Exists(_ context.Context, kind Kind, id string) (bool, error) {
	return tx.state.has(kind, id), nil
}

func (tx *memoryTx) LookupLegacy(_ context.Context, kind Kind, legacyKey string) (string, bool, error) {
	id, ok := tx.state.legacy[kind][legacyKey]
	return id, ok, nil
}

func (tx *memoryTx) insertCheck(kind Kind, id, legacyKey string) error {
	if err := tx.check("insert", kind); err != nil {
		return err
	}
	if tx.state.has(kind, id) {
		return duplicateIdentifier(kind, id)
	}
	if legacyKey != "" {
		if _, taken := tx.state.legacy[kind][legacyKey]; taken {
			return duplicateIdentifier(kind, legacyKey)
		}
		tx.state.legacy[kind][legacyKey] = id
	}
	return nil
}

func (tx *memoryTx) InsertYear(_ context.Context, y Year) error {
	if err := tx.insertCheck(KindYear, y.ID, y.LegacyKey); err != nil {
		return err
	}
	y.CreatedAt, y.UpdatedAt = tx.now, tx.now
	tx.state.years[y.ID] = y
	return nil
}

func (tx *memoryTx) InsertModule(_ context.Context, m Module) error {
	if err := tx.insertCheck(KindModule, m.ID, m.LegacyKey); err != nil {
		return err
	}
	m.CreatedAt, m.UpdatedAt = tx.now, tx.now
	tx.state.modules[m.ID] = m
	return nil
}

func (tx *memoryTx) InsertSubject(_ context.Context, s Subject) error {
	if err := tx.insertCheck(KindSubject, s.ID, s.LegacyKey); err != nil {
		return err
	}
	s.CreatedAt, s.UpdatedAt = tx.now, tx.now
	tx.state.subjects[s.ID] = s
	return nil
}

func (tx *memoryTx) InsertLecture(_ context.Context, l Lecture) error {
	if err := tx.insertCheck(KindLecture, l.ID, l.LegacyKey); err != nil {
		return err
	}
	l = cloneLecture(l)
	l.CreatedAt, l.UpdatedAt = tx.now, tx.now
	tx.state.lectures[l.ID] = l
	return nil
}

func (tx *memoryTx) InsertQuestion(_ context.Context, q Question) error {
	if err := tx.insertCheck(KindQuestion, q.ID, q.LegacyKey); err != nil {
		return err
	}
	q = cloneQuestion(q)
	q.CreatedAt, q.UpdatedAt = tx.now, tx.now
	tx.state.questions[q.ID] = q
	return nil
}

func (tx *memoryTx) UpdateYear(_ context.Context, y Year) error {
	if err := tx.check("update", KindYear); err != nil {
		return err
	}
	cur, ok := tx.state.years[y.ID]
	if !ok {
		return ErrNoRecord
	}
	cur.Name, cur.Icon, cur.UpdatedAt = y.Name, y.Icon, tx.now
	tx.state.years[y.ID] = cur
	return nil
}

func (tx *memoryTx) UpdateModule(_ context.Context, m Module) error {
	if err := tx.check("update", KindModule); err != nil {
		return err
	}
	cur, ok := tx.state.modules[m.ID]
	if !ok {
		return ErrNoRecord
	}
	cur.Name, cur.YearID, cur.UpdatedAt = m.Name, m.YearID, tx.now
	tx.state.modules[m.ID] = cur
	return nil
}

func (tx *memoryTx) UpdateSubject(_ context.Context, s Subject) error {
	if err := tx.check("update", KindSubject); err != nil {
		return err
	}
	cur, ok := tx.state.subjects[s.ID]
	if !ok {
		return ErrNoRecord
	}
	cur.Name, cur.ModuleID, cur.UpdatedAt = s.Name, s.ModuleID, tx.now
	tx.state.subjects[s.ID] = cur
	return nil
}

func (tx *memoryTx) UpdateLecture(_ context.Context, l Lecture) error {
	if err := tx.check("update", KindLecture); err != nil {
		return err
	}
	cur, ok := tx.state.lectures[l.ID]
	if !ok {
		return ErrNoRecord
	}
	l = cloneLecture(l)
	cur.Name, cur.SubjectID, cur.Order, cur.UpdatedAt = l.Name, l.SubjectID, l.Order, tx.now
	tx.state.lectures[l.ID] = cur
	return nil
}

func (tx *memoryTx) UpdateQuestion(_ context.Context, q Question) error {
	if err := tx.check("update", KindQuestion); err != nil {
		return err
	}
	cur, ok := tx.state.questions[q.ID]
	if !ok {
		return ErrNoRecord
	}
	q = cloneQuestion(q)
	q.LegacyKey, q.CreatedAt, q.UpdatedAt = cur.LegacyKey, cur.CreatedAt, tx.now
	tx.state.questions[q.ID] = q
	return nil
}

func (tx *memoryTx) RenameID(_ context.Context, kind Kind, oldID, newID string) error {
	if err := tx.check("rename", kind); err != nil {
		return err
	}
	if !tx.state.has(kind, oldID) {
		return ErrNoRecord
	}
	if tx.state.has(kind, newID) {
		return duplicateIdentifier(kind, newID)
	}

	var legacyKey string
	switch kind {
	case KindYear:
		r := tx.state.years[oldID]
		delete(tx.state.years, oldID)
		r.ID, r.UpdatedAt, legacyKey = newID, tx.now, r.LegacyKey
		tx.state.years[newID] = r
	case KindModule:
		r := tx.state.modules[oldID]
		delete(tx.state.modules, oldID)
		r.ID, r.UpdatedAt, legacyKey = newID, tx.now, r.LegacyKey
		tx.state.modules[newID] = r
	case KindSubject:
		r := tx.state.subjects[oldID]
		delete(tx.state.subjects, oldID)
		r.ID, r.UpdatedAt, legacyKey = newID, tx.now, r.LegacyKey
		tx.state.subjects[newID] = r
	case KindLecture:
		r := tx.state.lectures[oldID]
		delete(tx.state.lectures, oldID)
		r.ID, r.UpdatedAt, legacyKey = newID, tx.now, r.LegacyKey
		tx.state.lectures[newID] = r
	case KindQuestion:
		r := tx.state.questions[oldID]
		delete(tx.state.questions, oldID)
		r.ID, r.UpdatedAt, legacyKey = newID, tx.now, r.LegacyKey
		tx.state.questions[newID] = r
	}
	if legacyKey != "" {
		tx.state.legacy[kind][legacyKey] = newID
	}
	return nil
}

func (tx *memoryTx) Reparent(_ context.Context, childKind Kind, oldParent, newParent string) (int64, error) {
	if err := tx.check("reparent", childKind); err != nil {
		return 0, err
	}
	var n int64
	switch childKind {
	case KindModule:
		for id, m := range tx.state.modules {
			if m.YearID == oldParent {
				m.YearID, m.UpdatedAt = newParent, tx.now
				tx.state.modules[id] = m
				n++
			}
		}
	case KindSubject:
		for id, s := range tx.state.subjects {
			if s.ModuleID == oldParent {
				s.ModuleID, s.UpdatedAt = newParent, tx.now
				tx.state.subjects[id] = s
				n++
			}
		}
	case KindLecture:
		for id, l := range tx.state.lectures {
			if l.SubjectID != nil && *l.SubjectID == oldParent {
				np := newParent
				l.SubjectID, l.UpdatedAt = &np, tx.now
				tx.state.lectures[id] = l
				n++
			}
		}
	case KindQuestion:
		for id, q := range tx.state.questions {
			if q.LectureID == oldParent {
				q.LectureID, q.UpdatedAt = newParent, tx.now
				tx.state.questions[id] = q
				n++
			}
		}
	default:
		return 0, fmt.Errorf("reparent: %s has no parent", childKind)
	}
	return n, nil
}

func (tx *memoryTx) parentOf(kind Kind, id string) (string, bool) {
	switch kind {
	case KindModule:
		return tx.state.modules[id].YearID, true
	case KindSubject:
		return tx.state.subjects[id].ModuleID, true
	case KindLecture:
		l := tx.state.lectures[id]
		return l.Subject(), l.SubjectID != nil
	case KindQuestion:
		return tx.state.questions[id].LectureID, true
	}
	return "", false
}

func (tx *memoryTx) idsOf(kind Kind) []string {
	var ids []string
	switch kind {
	case KindYear:
		for id := range tx.state.years {
			ids = append(ids, id)
		}
	case KindModule:
		for id := range tx.state.modules {
			ids = append(ids, id)
		}
	case KindSubject:
		for id := range tx.state.subjects {
			ids = append(ids, id)
		}
	case KindLecture:
		for id := range tx.state.lectures {
			ids = append(ids, id)
		}
	case KindQuestion:
		for id := range tx.state.questions {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (tx *memoryTx) ChildIDs(_ context.Context, childKind Kind, parentIDs []string) ([]string, error) {
	if childKind.Parent() == "" {
		return nil, fmt.Errorf("child ids: %s has no parent", childKind)
	}
	var out []string
	for _, id := range tx.idsOf(childKind) {
		if p, ok := tx.parentOf(childKind, id); ok && slices.Contains(parentIDs, p) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (tx *memoryTx) DeleteByParent(ctx context.Context, kind Kind, parentIDs []string) (int64, error) {
	ids, err := tx.ChildIDs(ctx, kind, parentIDs)
	if err != nil {
		return 0, err
	}
	return tx.Delete(ctx, kind, ids)
}

func (tx *memoryTx) Delete(_ context.Context, kind Kind, ids []string) (int64, error) {
	if err := tx.check("delete", kind); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		if !tx.state.has(kind, id) {
			continue
		}
		var legacyKey string
		switch kind {
		case KindYear:
			legacyKey = tx.state.years[id].LegacyKey
			delete(tx.state.years, id)
		case KindModule:
			legacyKey = tx.state.modules[id].LegacyKey
			delete(tx.state.modules, id)
		case KindSubject:
			legacyKey = tx.state.subjects[id].LegacyKey
			delete(tx.state.subjects, id)
		case KindLecture:
			legacyKey = tx.state.lectures[id].LegacyKey
			delete(tx.state.lectures, id)
		case KindQuestion:
			legacyKey = tx.state.questions[id].LegacyKey
			delete(tx.state.questions, id)
		}
		if legacyKey != "" {
			delete(tx.state.legacy[kind], legacyKey)
		}
		n++
	}
	return n, nil
}
