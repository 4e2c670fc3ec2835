package content

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Bundle is a flat copy of the whole hierarchy, used to seed, import and
// export content.
type Bundle struct {
	Years     []Year
	Modules   []Module
	Subjects  []Subject
	Lectures  []Lecture
	Questions []Question
}

// Len returns the number of records in b.
func (b Bundle) Len() int {
	return len(b.Years) + len(b.Modules) + len(b.Subjects) + len(b.Lectures) + len(b.Questions)
}

// ImportResult counts the records an import inserted and skipped.
type ImportResult struct {
	Inserted map[Kind]int `json:"inserted"`
	Skipped  map[Kind]int `json:"skipped"`
}

// Import inserts every record of b in one transaction, parents before
// children. With skipExisting, records whose identifier is already taken are
// left untouched; otherwise the first one aborts the whole import.
func (s *Service) Import(ctx context.Context, b Bundle, skipExisting bool) (ImportResult, error) {
	for i := range b.Questions {
		q := normalizeQuestion(b.Questions[i])
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if err := ValidateQuestion(q); err != nil {
			return ImportResult{}, err
		}
		b.Questions[i] = q
	}

	res := ImportResult{Inserted: make(map[Kind]int), Skipped: make(map[Kind]int)}
	insert := func(ctx context.Context, tx Tx, kind Kind, id string, parent string, fn func(parent string) error) error {
		id = strings.TrimSpace(id)
		if err := validateIdentifier(kind, id); err != nil {
			return err
		}
		taken, err := s.resolver.taken(ctx, tx, kind, id)
		if err != nil {
			return err
		}
		if taken {
			if skipExisting {
				res.Skipped[kind]++
				return nil
			}
			return duplicateIdentifier(kind, id)
		}
		canonical, err := s.resolver.AssertParentExists(ctx, tx, kind, parent)
		if err != nil {
			return err
		}
		if err := fn(canonical); err != nil {
			return err
		}
		res.Inserted[kind]++
		return nil
	}

	err := s.write(ctx, "", "", func(ctx context.Context, tx Tx) error {
		clear(res.Inserted)
		clear(res.Skipped)
		for _, y := range b.Years {
			if err := validateName(KindYear, y.ID, y.Name); err != nil {
				return err
			}
			if err := insert(ctx, tx, KindYear, y.ID, "", func(string) error {
				y.ID = strings.TrimSpace(y.ID)
				return tx.InsertYear(ctx, y)
			}); err != nil {
				return err
			}
		}
		for _, m := range b.Modules {
			if err := validateName(KindModule, m.ID, m.Name); err != nil {
				return err
			}
			if err := insert(ctx, tx, KindModule, m.ID, m.YearID, func(parent string) error {
				m.ID, m.YearID = strings.TrimSpace(m.ID), parent
				return tx.InsertModule(ctx, m)
			}); err != nil {
				return err
			}
		}
		for _, sub := range b.Subjects {
			if err := validateName(KindSubject, sub.ID, sub.Name); err != nil {
				return err
			}
			if err := insert(ctx, tx, KindSubject, sub.ID, sub.ModuleID, func(parent string) error {
				sub.ID, sub.ModuleID = strings.TrimSpace(sub.ID), parent
				return tx.InsertSubject(ctx, sub)
			}); err != nil {
				return err
			}
		}
		for _, l := range b.Lectures {
			if err := validateName(KindLecture, l.ID, l.Name); err != nil {
				return err
			}
			if err := insert(ctx, tx, KindLecture, l.ID, l.Subject(), func(parent string) error {
				l.ID, l.SubjectID = strings.TrimSpace(l.ID), optional(parent)
				return tx.InsertLecture(ctx, l)
			}); err != nil {
				return err
			}
		}
		for _, q := range b.Questions {
			if err := insert(ctx, tx, KindQuestion, q.ID, q.LectureID, func(parent string) error {
				q.LectureID = parent
				return tx.InsertQuestion(ctx, q)
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}

	slog.Info("content imported", "records", b.Len(), "inserted", res.Inserted, "skipped", res.Skipped)
	s.notify(ctx, Change{Op: OpImport})
	return res, nil
}

// Export returns every live record, each kind sorted the way the tree
// orders it.
func (s *Service) Export(ctx context.Context) (Bundle, error) {
	var b Bundle
	var err error
	if b.Years, err = s.store.ListYears(ctx); err != nil {
		return Bundle{}, fmt.Errorf("export years: %w", err)
	}
	if b.Modules, err = s.store.ListModules(ctx); err != nil {
		return Bundle{}, fmt.Errorf("export modules: %w", err)
	}
	if b.Subjects, err = s.store.ListSubjects(ctx); err != nil {
		return Bundle{}, fmt.Errorf("export subjects: %w", err)
	}
	if b.Lectures, err = s.store.ListLectures(ctx); err != nil {
		return Bundle{}, fmt.Errorf("export lectures: %w", err)
	}
	if b.Questions, err = s.store.ListQuestions(ctx, nil); err != nil {
		return Bundle{}, fmt.Errorf("export questions: %w", err)
	}

	slices.SortFunc(b.Years, func(a, c Year) int { return byNameThenID(a.Name, a.ID, c.Name, c.ID) })
	slices.SortFunc(b.Modules, func(a, c Module) int { return byNameThenID(a.Name, a.ID, c.Name, c.ID) })
	slices.SortFunc(b.Subjects, func(a, c Subject) int { return byNameThenID(a.Name, a.ID, c.Name, c.ID) })
	sortLectures(b.Lectures)
	slices.SortFunc(b.Questions, func(a, c Question) int {
		if a.LectureID != c.LectureID {
			return strings.Compare(a.LectureID, c.LectureID)
		}
		return questionOrder(a, c)
	})
	return b, nil
}
