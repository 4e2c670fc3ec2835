package content

import (
	"context"
	"errors"
)

// ErrNoRecord is returned by Tx primitives that address a single record
// which does not exist.
var ErrNoRecord = errors.New("no such record")

// Lookup answers identity questions. Both Store (outside a transaction) and
// Tx (inside one) implement it.
type Lookup interface {
	Exists(ctx context.Context, kind Kind, id string) (bool, error)
	// LookupLegacy maps a legacy key to the canonical identifier.
	LookupLegacy(ctx context.Context, kind Kind, legacyKey string) (string, bool, error)
}

// Reader serves bulk reads outside a transaction.
type Reader interface {
	Lookup
	ListYears(ctx context.Context) ([]Year, error)
	ListModules(ctx context.Context) ([]Module, error)
	ListSubjects(ctx context.Context) ([]Subject, error)
	ListLectures(ctx context.Context) ([]Lecture, error)
	// ListQuestions returns the questions of the given lectures, or every
	// question when lectureIDs is nil.
	ListQuestions(ctx context.Context, lectureIDs []string) ([]Question, error)
	// GetLectures returns the lectures among ids that exist, in no order.
	GetLectures(ctx context.Context, ids []string) ([]Lecture, error)
}

// Store is the record store behind the content service. Every mutation goes
// through InTx.
type Store interface {
	Reader
	// InTx runs fn in one transaction. When fn returns an error every write
	// it made is rolled back.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	HealthCheck(ctx context.Context) error
}

// Tx is the set of primitives the resolver, rename propagator and cascade
// engine compose inside a transaction.
type Tx interface {
	Lookup

	InsertYear(ctx context.Context, y Year) error
	InsertModule(ctx context.Context, m Module) error
	InsertSubject(ctx context.Context, s Subject) error
	InsertLecture(ctx context.Context, l Lecture) error
	InsertQuestion(ctx context.Context, q Question) error

	// Update* replace the non-identifier attributes of the record with the
	// same ID and return ErrNoRecord if there is none.
	UpdateYear(ctx context.Context, y Year) error
	UpdateModule(ctx context.Context, m Module) error
	UpdateSubject(ctx context.Context, s Subject) error
	UpdateLecture(ctx context.Context, l Lecture) error
	UpdateQuestion(ctx context.Context, q Question) error

	// RenameID changes a record's own external identifier.
	RenameID(ctx context.Context, kind Kind, oldID, newID string) error
	// Reparent points every childKind record referencing oldParent at
	// newParent and returns how many moved.
	Reparent(ctx context.Context, childKind Kind, oldParent, newParent string) (int64, error)
	// ChildIDs returns the identifiers of childKind records whose parent is
	// one of parentIDs.
	ChildIDs(ctx context.Context, childKind Kind, parentIDs []string) ([]string, error)
	// DeleteByParent removes every kind record whose parent is in parentIDs.
	DeleteByParent(ctx context.Context, kind Kind, parentIDs []string) (int64, error)
	// Delete removes the kind records with the given identifiers.
	Delete(ctx context.Context, kind Kind, ids []string) (int64, error)
}
