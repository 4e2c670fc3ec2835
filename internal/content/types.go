package content

import (
	"fmt"
	"time"
)

// Kind names one of the five record kinds of the content hierarchy.
type Kind string

const (
	KindYear     Kind = "year"
	KindModule   Kind = "module"
	KindSubject  Kind = "subject"
	KindLecture  Kind = "lecture"
	KindQuestion Kind = "question"
)

// Kinds lists every kind from root to leaf.
var Kinds = []Kind{KindYear, KindModule, KindSubject, KindLecture, KindQuestion}

// ParseKind accepts the singular or plural form ("year", "years").
func ParseKind(s string) (Kind, error) {
	switch s {
	case "year", "years":
		return KindYear, nil
	case "module", "modules":
		return KindModule, nil
	case "subject", "subjects":
		return KindSubject, nil
	case "lecture", "lectures":
		return KindLecture, nil
	case "question", "questions":
		return KindQuestion, nil
	}
	return "", fmt.Errorf("unknown kind: %q", s)
}

// Parent returns the kind a record of k points at, or "" for years.
func (k Kind) Parent() Kind {
	switch k {
	case KindModule:
		return KindYear
	case KindSubject:
		return KindModule
	case KindLecture:
		return KindSubject
	case KindQuestion:
		return KindLecture
	}
	return ""
}

// Child returns the kind whose records point at k, or "" for questions.
func (k Kind) Child() Kind {
	switch k {
	case KindYear:
		return KindModule
	case KindModule:
		return KindSubject
	case KindSubject:
		return KindLecture
	case KindLecture:
		return KindQuestion
	}
	return ""
}

// Valid reports whether k is one of the five known kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Difficulty tiers for questions.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Year is the root of the hierarchy (e.g. "Year 3").
type Year struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon,omitempty"`
	LegacyKey string    `json:"-"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Module groups subjects within a year (e.g. "Cardiovascular").
type Module struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	YearID    string    `json:"year_id"`
	LegacyKey string    `json:"-"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Subject groups lectures within a module (e.g. "Physiology").
type Subject struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ModuleID  string    `json:"module_id"`
	LegacyKey string    `json:"-"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Lecture holds questions. SubjectID is nil while the lecture is unattached.
type Lecture struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	SubjectID *string   `json:"subject_id"`
	Order     int       `json:"order"`
	LegacyKey string    `json:"-"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Subject returns the parent subject identifier or "" when unattached.
func (l Lecture) Subject() string {
	if l.SubjectID == nil {
		return ""
	}
	return *l.SubjectID
}

// Question is a multiple-choice leaf record. CorrectIndex never leaves the
// server except through admin reads.
type Question struct {
	ID           string    `json:"id"`
	LectureID    string    `json:"lecture_id"`
	Text         string    `json:"text"`
	Options      []string  `json:"options"`
	CorrectIndex int       `json:"correct_index"`
	Explanation  string    `json:"explanation,omitempty"`
	Difficulty   string    `json:"difficulty"`
	Order        int       `json:"order"`
	LegacyKey    string    `json:"-"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}

// PublicQuestion is the student view of a question. It has no field that
// could carry the correct answer; explanations are only released with a
// graded submission.
type PublicQuestion struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	Options    []string `json:"options"`
	Difficulty string   `json:"difficulty"`
	Order      int      `json:"order"`
}

// Public strips the question down to what a student may see.
func (q Question) Public() PublicQuestion {
	return PublicQuestion{
		ID:         q.ID,
		Text:       q.Text,
		Options:    append([]string(nil), q.Options...),
		Difficulty: q.Difficulty,
		Order:      q.Order,
	}
}

// LectureDetail is a lecture with its questions as served to students.
type LectureDetail struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	SubjectID *string          `json:"subject_id"`
	Order     int              `json:"order"`
	Questions []PublicQuestion `json:"questions"`
}

// Handle is the canonical address of a live record.
type Handle struct {
	Kind      Kind
	ID        string
	LegacyKey string
}
