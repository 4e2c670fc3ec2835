package content_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/p-n-ai/medq/internal/content"
	"github.com/p-n-ai/medq/internal/events"
)

func strPtr(s string) *string { return &s }

// seedHierarchy builds y1 → m1 → s1 → {l1, l2} plus unattached l3, with two
// questions on l1.
func seedHierarchy(t *testing.T, svc *content.Service) {
	t.Helper()
	ctx := t.Context()

	if _, err := svc.CreateYear(ctx, content.Year{ID: "y1", Name: "Year 1"}); err != nil {
		t.Fatalf("CreateYear() error = %v", err)
	}
	if _, err := svc.CreateModule(ctx, content.Module{ID: "m1", Name: "Cardiovascular", YearID: "y1"}); err != nil {
		t.Fatalf("CreateModule() error = %v", err)
	}
	if _, err := svc.CreateSubject(ctx, content.Subject{ID: "s1", Name: "Physiology", ModuleID: "m1"}); err != nil {
		t.Fatalf("CreateSubject() error = %v", err)
	}
	for _, l := range []content.Lecture{
		{ID: "l1", Name: "Cardiac cycle", SubjectID: strPtr("s1"), Order: 1},
		{ID: "l2", Name: "Blood pressure", SubjectID: strPtr("s1"), Order: 2},
		{ID: "l3", Name: "Drafts"},
	} {
		if _, err := svc.CreateLecture(ctx, l); err != nil {
			t.Fatalf("CreateLecture(%s) error = %v", l.ID, err)
		}
	}
	for _, q := range []content.Question{
		{ID: "q1", Text: "First heart sound?", Options: []string{"AV valves close", "Semilunar valves close"}, CorrectIndex: 0, Order: 1, Explanation: "S1 is AV closure."},
		{ID: "q2", Text: "Second heart sound?", Options: []string{"AV valves close", "Semilunar valves close"}, CorrectIndex: 1, Order: 2},
	} {
		if _, err := svc.AddQuestion(ctx, "l1", q); err != nil {
			t.Fatalf("AddQuestion(%s) error = %v", q.ID, err)
		}
	}
}

func newService(t *testing.T) (*content.Service, *content.MemoryStore) {
	t.Helper()
	store := content.NewMemoryStore()
	return content.NewService(content.ServiceConfig{Store: store}), store
}

func TestService_CreateHierarchy(t *testing.T) {
	svc, store := newService(t)
	seedHierarchy(t, svc)

	want := map[content.Kind]int{
		content.KindYear:     1,
		content.KindModule:   1,
		content.KindSubject:  1,
		content.KindLecture:  3,
		content.KindQuestion: 2,
	}
	for kind, n := range want {
		if got := store.Count(kind); got != n {
			t.Errorf("Count(%s) = %d, want %d", kind, got, n)
		}
	}
}

func TestService_CreateWithMissingParent(t *testing.T) {
	svc, store := newService(t)
	ctx := t.Context()

	_, err := svc.CreateModule(ctx, content.Module{ID: "m1", Name: "Renal", YearID: "nope"})
	if !errors.Is(err, content.ErrReferenceViolation) {
		t.Fatalf("CreateModule() error = %v, want reference violation", err)
	}
	ce, _ := content.AsError(err)
	if ce.Kind != content.KindYear || ce.Identifier != "nope" {
		t.Errorf("error names %s %q, want year \"nope\"", ce.Kind, ce.Identifier)
	}
	if store.Count(content.KindModule) != 0 {
		t.Error("module should not have been stored")
	}

	_, err = svc.CreateModule(ctx, content.Module{ID: "m1", Name: "Renal"})
	if !errors.Is(err, content.ErrReferenceViolation) {
		t.Errorf("CreateModule() without year error = %v, want reference violation", err)
	}
}

func TestService_CreateDuplicate(t *testing.T) {
	svc, store := newService(t)
	seedHierarchy(t, svc)

	_, err := svc.CreateYear(t.Context(), content.Year{ID: "y1", Name: "Again"})
	if !errors.Is(err, content.ErrDuplicateIdentifier) {
		t.Fatalf("CreateYear() error = %v, want duplicate", err)
	}
	if got := store.Count(content.KindYear); got != 1 {
		t.Errorf("Count(year) = %d, want 1 after a rejected duplicate", got)
	}
	_, err = svc.AddQuestion(t.Context(), "l1", content.Question{ID: "q1", Text: "Again?", Options: []string{"a", "b"}})
	if !errors.Is(err, content.ErrDuplicateIdentifier) {
		t.Fatalf("AddQuestion() error = %v, want duplicate", err)
	}
	if got := store.Count(content.KindQuestion); got != 2 {
		t.Errorf("Count(question) = %d, want 2 after a rejected duplicate", got)
	}

	// Identifiers are unique per kind only.
	if _, err := svc.CreateModule(t.Context(), content.Module{ID: "y1", Name: "Odd but legal", YearID: "y1"}); err != nil {
		t.Errorf("CreateModule() with a year's id error = %v", err)
	}
}

func TestService_CreateRejectsLegacyKey(t *testing.T) {
	svc, store := newService(t)
	ctx := t.Context()
	legacy := "65a1b2c3d4e5f60718293a4b"

	_, err := svc.Import(ctx, content.Bundle{
		Years: []content.Year{{ID: "y1", Name: "Year 1", LegacyKey: legacy}},
	}, false)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	_, err = svc.CreateYear(ctx, content.Year{ID: legacy, Name: "Shadow"})
	if !errors.Is(err, content.ErrDuplicateIdentifier) {
		t.Fatalf("CreateYear() error = %v, want duplicate", err)
	}
	if got := store.Count(content.KindYear); got != 1 {
		t.Errorf("Count(year) = %d, want 1", got)
	}

	res, err := svc.Import(ctx, content.Bundle{
		Years: []content.Year{{ID: legacy, Name: "Shadow"}},
	}, true)
	if err != nil {
		t.Fatalf("Import(skip) error = %v", err)
	}
	if res.Skipped[content.KindYear] != 1 {
		t.Errorf("skipped = %v, want the shadowing year skipped", res.Skipped)
	}
}

func TestService_CreateEmptyName(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.CreateYear(t.Context(), content.Year{ID: "y1", Name: "  "})
	if !errors.Is(err, content.ErrSchemaViolation) {
		t.Fatalf("CreateYear() error = %v, want schema violation", err)
	}
}

func TestService_AddQuestion(t *testing.T) {
	svc, store := newService(t)
	seedHierarchy(t, svc)
	ctx := t.Context()

	q, err := svc.AddQuestion(ctx, "l2", content.Question{Text: "Normal MAP?", Options: []string{"70-100", "120-140"}})
	if err != nil {
		t.Fatalf("AddQuestion() error = %v", err)
	}
	if q.ID == "" {
		t.Error("AddQuestion() should generate an ID")
	}
	if q.Difficulty != content.DifficultyMedium {
		t.Errorf("Difficulty = %q, want medium", q.Difficulty)
	}

	_, err = svc.AddQuestion(ctx, "l2", content.Question{Text: "Bad", Options: []string{"X", "X "}})
	if !errors.Is(err, content.ErrSchemaViolation) {
		t.Fatalf("AddQuestion() error = %v, want schema violation", err)
	}

	_, err = svc.AddQuestion(ctx, "ghost", content.Question{Text: "Orphan", Options: []string{"A", "B"}})
	if !errors.Is(err, content.ErrReferenceViolation) {
		t.Fatalf("AddQuestion() error = %v, want reference violation", err)
	}
	if got := store.Count(content.KindQuestion); got != 3 {
		t.Errorf("Count(question) = %d, want 3", got)
	}
}

func TestService_UpdateLectureDetach(t *testing.T) {
	svc, _ := newService(t)
	seedHierarchy(t, svc)
	ctx := t.Context()

	if _, err := svc.UpdateLecture(ctx, "l2", content.Lecture{Name: "BP", Order: 5}); err != nil {
		t.Fatalf("UpdateLecture() error = %v", err)
	}
	tree, err := svc.Tree(ctx)
	if err != nil {
		t.Fatalf("Tree() error = %v", err)
	}
	if len(tree.Unattached) != 2 {
		t.Fatalf("len(Unattached) = %d, want 2", len(tree.Unattached))
	}

	_, err = svc.UpdateLecture(ctx, "l2", content.Lecture{Name: "BP", SubjectID: strPtr("missing")})
	if !errors.Is(err, content.ErrReferenceViolation) {
		t.Errorf("UpdateLecture() error = %v, want reference violation", err)
	}
	_, err = svc.UpdateLecture(ctx, "l9", content.Lecture{Name: "Nothing"})
	if !errors.Is(err, content.ErrNotFound) {
		t.Errorf("UpdateLecture() error = %v, want not found", err)
	}
}

func TestService_UpdateQuestion(t *testing.T) {
	svc, _ := newService(t)
	seedHierarchy(t, svc)
	ctx := t.Context()

	_, err := svc.UpdateQuestion(ctx, "q1", content.Question{
		LectureID:    "l1",
		Text:         "S1 is caused by?",
		Options:      []string{"AV closure", "SL closure", "Atrial kick"},
		CorrectIndex: 0,
	})
	if err != nil {
		t.Fatalf("UpdateQuestion() error = %v", err)
	}
	_, qs, err := svc.LectureQuestions(ctx, "l1")
	if err != nil {
		t.Fatalf("LectureQuestions() error = %v", err)
	}
	if len(qs[0].Options) != 3 {
		t.Errorf("len(Options) = %d, want 3", len(qs[0].Options))
	}

	_, err = svc.UpdateQuestion(ctx, "q1", content.Question{LectureID: "l1", Text: "x", Options: []string{"a", "b"}, CorrectIndex: 7})
	if !errors.Is(err, content.ErrSchemaViolation) {
		t.Errorf("UpdateQuestion() error = %v, want schema violation", err)
	}
}

func TestService_LectureHidesAnswers(t *testing.T) {
	svc, _ := newService(t)
	seedHierarchy(t, svc)

	d, err := svc.Lecture(t.Context(), "l1")
	if err != nil {
		t.Fatalf("Lecture() error = %v", err)
	}
	if len(d.Questions) != 2 {
		t.Fatalf("len(Questions) = %d, want 2", len(d.Questions))
	}
	if d.Questions[0].ID != "q1" || d.Questions[1].ID != "q2" {
		t.Errorf("questions out of order: %s, %s", d.Questions[0].ID, d.Questions[1].ID)
	}

	_, err = svc.Lecture(t.Context(), "missing")
	if !errors.Is(err, content.ErrNotFound) {
		t.Errorf("Lecture() error = %v, want not found", err)
	}
}

func TestService_Lectures(t *testing.T) {
	svc := content.NewService(content.ServiceConfig{Store: content.NewMemoryStore(), MaxBatch: 4})
	seedHierarchy(t, svc)
	ctx := t.Context()

	got, err := svc.Lectures(ctx, []string{"l2", "missing", "l1", "l2"})
	if err != nil {
		t.Fatalf("Lectures() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "l2" || got[1].ID != "l1" {
		t.Fatalf("Lectures() = %+v, want l2 then l1", got)
	}
	if len(got[1].Questions) != 2 {
		t.Errorf("l1 questions = %d, want 2", len(got[1].Questions))
	}

	if _, err := svc.Lectures(ctx, nil); !errors.Is(err, content.ErrSchemaViolation) {
		t.Errorf("Lectures(nil) error = %v, want schema violation", err)
	}
	if _, err := svc.Lectures(ctx, []string{"a", "b", "c", "d", "e"}); !errors.Is(err, content.ErrSchemaViolation) {
		t.Errorf("Lectures(5 ids) error = %v, want schema violation", err)
	}
	if _, err := svc.Lectures(ctx, []string{"l1", "l1", "l1", "l1", "l1"}); !errors.Is(err, content.ErrSchemaViolation) {
		t.Errorf("Lectures(5 repeats) error = %v, want schema violation", err)
	}
}

func TestService_NotifiesAfterCommit(t *testing.T) {
	n := events.NewRecorder()
	svc := content.NewService(content.ServiceConfig{Store: content.NewMemoryStore(), Notifier: n})
	seedHierarchy(t, svc)
	ctx := t.Context()

	_, _ = svc.CreateYear(ctx, content.Year{ID: "y1", Name: "dup"})
	before := len(n.Changes())

	if _, err := svc.Rename(ctx, content.KindYear, "y1", "year-1"); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if _, err := svc.Delete(ctx, content.KindLecture, "l3"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	changes := n.Changes()
	if before != 8 {
		t.Errorf("changes after seed = %d, want 8 (failed create must not notify)", before)
	}
	if len(changes) != before+2 {
		t.Fatalf("len(changes) = %d, want %d", len(changes), before+2)
	}
	rename := changes[before]
	if rename.Op != content.OpRename || rename.OldID != "y1" || rename.ID != "year-1" {
		t.Errorf("rename change = %+v", rename)
	}
	if changes[before+1].Op != content.OpDelete {
		t.Errorf("last change op = %q, want delete", changes[before+1].Op)
	}
}

func TestService_ImportExport(t *testing.T) {
	src, _ := newService(t)
	seedHierarchy(t, src)
	ctx := t.Context()

	bundle, err := src.Export(ctx)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if bundle.Len() != 8 {
		t.Fatalf("bundle.Len() = %d, want 8", bundle.Len())
	}

	dst, store := newService(t)
	res, err := dst.Import(ctx, bundle, false)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if res.Inserted[content.KindLecture] != 3 {
		t.Errorf("Inserted[lecture] = %d, want 3", res.Inserted[content.KindLecture])
	}

	// Second import conflicts unless existing records are skipped.
	if _, err := dst.Import(ctx, bundle, false); !errors.Is(err, content.ErrDuplicateIdentifier) {
		t.Errorf("Import() again error = %v, want duplicate", err)
	}
	res, err = dst.Import(ctx, bundle, true)
	if err != nil {
		t.Fatalf("Import(skip) error = %v", err)
	}
	if res.Skipped[content.KindQuestion] != 2 {
		t.Errorf("Skipped[question] = %d, want 2", res.Skipped[content.KindQuestion])
	}
	if store.Count(content.KindQuestion) != 2 {
		t.Errorf("Count(question) = %d, want 2", store.Count(content.KindQuestion))
	}

	a, _ := src.Tree(ctx)
	b, _ := dst.Tree(ctx)
	_, fa, _ := content.Encode(a)
	_, fb, _ := content.Encode(b)
	if fa != fb {
		t.Error("imported tree should fingerprint the same as the source")
	}
}

func TestService_ImportRollsBackOnBadParent(t *testing.T) {
	svc, store := newService(t)
	bundle := content.Bundle{
		Years:   []content.Year{{ID: "y1", Name: "Year 1"}},
		Modules: []content.Module{{ID: "m1", Name: "M", YearID: "y2"}},
	}
	_, err := svc.Import(t.Context(), bundle, false)
	if !errors.Is(err, content.ErrReferenceViolation) {
		t.Fatalf("Import() error = %v, want reference violation", err)
	}
	if store.Count(content.KindYear) != 0 {
		t.Error("year from failed import should not be stored")
	}
	if !strings.Contains(err.Error(), "y2") {
		t.Errorf("error %q should name the missing parent", err)
	}
}
