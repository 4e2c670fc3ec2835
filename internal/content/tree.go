package content

import (
	"cmp"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"
)

// Document is the nested Year → Module → Subject → Lecture tree. L is the
// lecture node type, which decides whether questions are included.
type Document[L any] struct {
	Years []YearNode[L] `json:"years"`
	// Unattached holds lectures that currently have no subject.
	Unattached []L `json:"unattached"`
}

type YearNode[L any] struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Icon    string          `json:"icon,omitempty"`
	Modules []ModuleNode[L] `json:"modules"`
}

type ModuleNode[L any] struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Subjects []SubjectNode[L] `json:"subjects"`
}

type SubjectNode[L any] struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Lectures []L    `json:"lectures"`
}

// LectureNode is a lecture in the student tree. It carries no questions.
type LectureNode struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// AdminLectureNode is a lecture in the admin tree, with full questions.
type AdminLectureNode struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Order     int        `json:"order"`
	Questions []Question `json:"questions"`
}

// Tree is the student-facing document.
type Tree = Document[LectureNode]

// AdminTree includes every question with its correct index.
type AdminTree = Document[AdminLectureNode]

// Empty reports whether the tree holds no years.
func (d Document[L]) Empty() bool { return len(d.Years) == 0 }

// Materializer builds tree documents from four bulk reads joined in memory.
// It keeps nothing between calls.
type Materializer struct {
	reader Reader
}

// NewMaterializer creates a materializer over reader.
func NewMaterializer(reader Reader) *Materializer {
	return &Materializer{reader: reader}
}

type snapshot struct {
	years     []Year
	modules   []Module
	subjects  []Subject
	lectures  []Lecture
	questions []Question
}

func (m *Materializer) load(ctx context.Context, withQuestions bool) (snapshot, error) {
	var s snapshot
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		s.years, err = m.reader.ListYears(ctx)
		return err
	})
	g.Go(func() (err error) {
		s.modules, err = m.reader.ListModules(ctx)
		return err
	})
	g.Go(func() (err error) {
		s.subjects, err = m.reader.ListSubjects(ctx)
		return err
	})
	g.Go(func() (err error) {
		s.lectures, err = m.reader.ListLectures(ctx)
		return err
	})
	if withQuestions {
		g.Go(func() (err error) {
			s.questions, err = m.reader.ListQuestions(ctx, nil)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return snapshot{}, fmt.Errorf("load tree: %w", err)
	}
	return s, nil
}

// LoadTree returns the student tree.
func (m *Materializer) LoadTree(ctx context.Context) (Tree, error) {
	start := time.Now()
	defer func() { treeBuildDuration.WithLabelValues("public").Observe(time.Since(start).Seconds()) }()

	s, err := m.load(ctx, false)
	if err != nil {
		return Tree{}, err
	}
	return join(s, func(l Lecture) LectureNode {
		return LectureNode{ID: l.ID, Name: l.Name, Order: l.Order}
	}), nil
}

// LoadAdminTree returns the tree with every lecture's questions attached.
func (m *Materializer) LoadAdminTree(ctx context.Context) (AdminTree, error) {
	start := time.Now()
	defer func() { treeBuildDuration.WithLabelValues("admin").Observe(time.Since(start).Seconds()) }()

	s, err := m.load(ctx, true)
	if err != nil {
		return AdminTree{}, err
	}

	byLecture := make(map[string][]Question, len(s.lectures))
	for _, q := range s.questions {
		byLecture[q.LectureID] = append(byLecture[q.LectureID], q)
	}
	for _, qs := range byLecture {
		sortQuestions(qs)
	}

	return join(s, func(l Lecture) AdminLectureNode {
		qs := byLecture[l.ID]
		if qs == nil {
			qs = []Question{}
		}
		return AdminLectureNode{ID: l.ID, Name: l.Name, Order: l.Order, Questions: qs}
	}), nil
}

func join[L any](s snapshot, lecture func(Lecture) L) Document[L] {
	modulesByYear := make(map[string][]Module)
	for _, m := range s.modules {
		modulesByYear[m.YearID] = append(modulesByYear[m.YearID], m)
	}
	subjectsByModule := make(map[string][]Subject)
	for _, sub := range s.subjects {
		subjectsByModule[sub.ModuleID] = append(subjectsByModule[sub.ModuleID], sub)
	}
	lecturesBySubject := make(map[string][]Lecture)
	var unattached []Lecture
	for _, l := range s.lectures {
		if l.SubjectID == nil {
			unattached = append(unattached, l)
			continue
		}
		lecturesBySubject[*l.SubjectID] = append(lecturesBySubject[*l.SubjectID], l)
	}

	lectureNodes := func(ls []Lecture) []L {
		sortLectures(ls)
		out := make([]L, 0, len(ls))
		for _, l := range ls {
			out = append(out, lecture(l))
		}
		return out
	}

	years := slices.Clone(s.years)
	slices.SortFunc(years, func(a, b Year) int { return byNameThenID(a.Name, a.ID, b.Name, b.ID) })

	doc := Document[L]{
		Years:      make([]YearNode[L], 0, len(years)),
		Unattached: lectureNodes(unattached),
	}
	for _, y := range years {
		mods := modulesByYear[y.ID]
		slices.SortFunc(mods, func(a, b Module) int { return byNameThenID(a.Name, a.ID, b.Name, b.ID) })

		yn := YearNode[L]{ID: y.ID, Name: y.Name, Icon: y.Icon, Modules: make([]ModuleNode[L], 0, len(mods))}
		for _, m := range mods {
			subs := subjectsByModule[m.ID]
			slices.SortFunc(subs, func(a, b Subject) int { return byNameThenID(a.Name, a.ID, b.Name, b.ID) })

			mn := ModuleNode[L]{ID: m.ID, Name: m.Name, Subjects: make([]SubjectNode[L], 0, len(subs))}
			for _, sub := range subs {
				mn.Subjects = append(mn.Subjects, SubjectNode[L]{
					ID:       sub.ID,
					Name:     sub.Name,
					Lectures: lectureNodes(lecturesBySubject[sub.ID]),
				})
			}
			yn.Modules = append(yn.Modules, mn)
		}
		doc.Years = append(doc.Years, yn)
	}
	return doc
}

func byNameThenID(aName, aID, bName, bID string) int {
	return cmp.Or(cmp.Compare(aName, bName), cmp.Compare(aID, bID))
}

func sortLectures(ls []Lecture) {
	slices.SortFunc(ls, func(a, b Lecture) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), cmp.Compare(a.ID, b.ID))
	})
}

func questionOrder(a, b Question) int {
	return cmp.Or(cmp.Compare(a.Order, b.Order), cmp.Compare(a.ID, b.ID))
}

func sortQuestions(qs []Question) {
	slices.SortFunc(qs, questionOrder)
}

// Encode serialises doc and returns the body with its fingerprint, a hex
// BLAKE2b-256 digest of exactly those bytes. Equal trees give equal
// fingerprints because the join sorts every level.
func Encode(doc any) ([]byte, string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, "", fmt.Errorf("encode document: %w", err)
	}
	return body, Fingerprint(body), nil
}

// Fingerprint returns the hex BLAKE2b-256 digest of body.
func Fingerprint(body []byte) string {
	sum := blake2b.Sum256(body)
	return hex.EncodeToString(sum[:])
}
