package content

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Outcome is the terminal state of one cascade invocation.
type Outcome string

const (
	OutcomeCommitted  Outcome = "committed"
	OutcomeRolledBack Outcome = "rolled_back"
	OutcomeNotFound   Outcome = "not_found"
	OutcomeRejected   Outcome = "rejected"
)

// CascadeSummary reports what one DeleteSubtree call did. Deleted is only
// populated for committed cascades.
type CascadeSummary struct {
	Kind    Kind           `json:"kind"`
	ID      string         `json:"id"`
	Outcome Outcome        `json:"outcome"`
	Deleted map[Kind]int64 `json:"deleted"`
}

// Total returns the number of records removed across all kinds.
func (s CascadeSummary) Total() int64 {
	var n int64
	for _, c := range s.Deleted {
		n += c
	}
	return n
}

// CascadeEngine deletes a record and every descendant in one transaction.
type CascadeEngine struct {
	store    Store
	resolver Resolver
}

// NewCascadeEngine creates an engine over store.
func NewCascadeEngine(store Store) *CascadeEngine {
	return &CascadeEngine{store: store}
}

// DeleteSubtree removes kind identifier and its descendants. The descendant
// set is discovered top-down first; records are then deleted leaf-most level
// first: questions, lectures, subjects, modules, the target itself.
func (e *CascadeEngine) DeleteSubtree(ctx context.Context, kind Kind, identifier string) (CascadeSummary, error) {
	if !kind.Valid() {
		return CascadeSummary{}, fmt.Errorf("delete: unknown kind %q", kind)
	}
	summary := CascadeSummary{Kind: kind, ID: identifier}

	h, err := e.resolver.Resolve(ctx, e.store, kind, identifier)
	if err != nil {
		ce, ok := AsError(err)
		switch {
		case !ok:
			summary.Outcome = OutcomeRolledBack
			err = transactionAborted(kind, identifier, err)
		case ce.Code == CodeNotFound:
			summary.Outcome = OutcomeNotFound
		default:
			summary.Outcome = OutcomeRejected
		}
		cascadeTotal.WithLabelValues(string(kind), string(summary.Outcome)).Inc()
		return summary, err
	}
	summary.ID = h.ID

	start := time.Now()
	var deleted map[Kind]int64
	err = e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		// The target may have gone between the pre-check and this transaction.
		if _, err := e.resolver.Resolve(ctx, tx, kind, h.ID); err != nil {
			return err
		}
		plan, err := discover(ctx, tx, kind, h.ID)
		if err != nil {
			return err
		}
		deleted, err = plan.apply(ctx, tx)
		return err
	})
	cascadeDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		err = writeFailure(kind, h.ID, err)
		if ce, ok := AsError(err); ok && ce.Code == CodeNotFound {
			summary.Outcome = OutcomeNotFound
		} else {
			summary.Outcome = OutcomeRolledBack
			slog.Warn("cascade rolled back", "kind", kind, "id", h.ID, "error", err)
		}
		cascadeTotal.WithLabelValues(string(kind), string(summary.Outcome)).Inc()
		return summary, err
	}

	summary.Outcome = OutcomeCommitted
	summary.Deleted = deleted
	cascadeTotal.WithLabelValues(string(kind), string(OutcomeCommitted)).Inc()
	for k, n := range deleted {
		cascadeDeletedRecords.WithLabelValues(string(k)).Add(float64(n))
	}
	slog.Info("cascade committed",
		"kind", kind,
		"id", h.ID,
		"deleted", summary.Total(),
	)
	return summary, nil
}

// cascadePlan holds the discovered descendant identifiers per level.
// Questions are not listed: they go with their lectures.
type cascadePlan struct {
	target   Kind
	targetID string
	modules  []string
	subjects []string
	lectures []string
}

func discover(ctx context.Context, tx Tx, kind Kind, id string) (cascadePlan, error) {
	plan := cascadePlan{target: kind, targetID: id}
	var err error

	parents := []string{id}
	for child := kind.Child(); child != "" && child != KindQuestion; child = child.Child() {
		parents, err = tx.ChildIDs(ctx, child, parents)
		if err != nil {
			return cascadePlan{}, fmt.Errorf("discover %s: %w", child, err)
		}
		switch child {
		case KindModule:
			plan.modules = parents
		case KindSubject:
			plan.subjects = parents
		case KindLecture:
			plan.lectures = parents
		}
	}
	return plan, nil
}

func (p cascadePlan) apply(ctx context.Context, tx Tx) (map[Kind]int64, error) {
	deleted := make(map[Kind]int64, len(Kinds))

	lectures := p.lectures
	if p.target == KindLecture {
		lectures = []string{p.targetID}
	}

	steps := []struct {
		kind Kind
		run  func() (int64, error)
	}{
		{KindQuestion, func() (int64, error) {
			if p.target == KindQuestion {
				return 0, nil
			}
			return tx.DeleteByParent(ctx, KindQuestion, lectures)
		}},
		{KindLecture, func() (int64, error) { return tx.Delete(ctx, KindLecture, p.lectures) }},
		{KindSubject, func() (int64, error) { return tx.Delete(ctx, KindSubject, p.subjects) }},
		{KindModule, func() (int64, error) { return tx.Delete(ctx, KindModule, p.modules) }},
	}
	for _, step := range steps {
		n, err := step.run()
		if err != nil {
			return nil, fmt.Errorf("delete %s: %w", step.kind, err)
		}
		deleted[step.kind] += n
	}

	n, err := tx.Delete(ctx, p.target, []string{p.targetID})
	if err != nil {
		return nil, fmt.Errorf("delete %s: %w", p.target, err)
	}
	if n == 0 {
		return nil, notFound(p.target, p.targetID)
	}
	deleted[p.target] += n
	return deleted, nil
}
