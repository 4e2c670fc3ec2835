package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// RenameResult reports a committed rename.
type RenameResult struct {
	Kind     Kind   `json:"kind"`
	OldID    string `json:"old_id"`
	NewID    string `json:"new_id"`
	Children int64  `json:"children"`
}

// RenamePropagator changes a record's external identifier and re-points its
// direct children in the same transaction.
type RenamePropagator struct {
	store    Store
	resolver Resolver
}

// NewRenamePropagator creates a propagator over store.
func NewRenamePropagator(store Store) *RenamePropagator {
	return &RenamePropagator{store: store}
}

// Rename moves kind oldID to newID. oldID may be a legacy key. Either the
// record and all its direct children move, or nothing does.
func (p *RenamePropagator) Rename(ctx context.Context, kind Kind, oldID, newID string) (RenameResult, error) {
	if !kind.Valid() {
		return RenameResult{}, fmt.Errorf("rename: unknown kind %q", kind)
	}
	newID = strings.TrimSpace(newID)
	if err := validateIdentifier(kind, newID); err != nil {
		renameTotal.WithLabelValues(string(kind), "rejected").Inc()
		return RenameResult{}, err
	}

	var res RenameResult
	err := p.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		h, err := p.resolver.Resolve(ctx, tx, kind, oldID)
		if err != nil {
			return err
		}
		res = RenameResult{Kind: kind, OldID: h.ID, NewID: newID}
		if h.ID == newID {
			return nil
		}

		if err := p.resolver.AssertUnique(ctx, tx, kind, newID); err != nil {
			return err
		}
		if err := tx.RenameID(ctx, kind, h.ID, newID); err != nil {
			if errors.Is(err, ErrNoRecord) {
				return notFound(kind, h.ID)
			}
			return err
		}

		if child := kind.Child(); child != "" {
			n, err := tx.Reparent(ctx, child, h.ID, newID)
			if err != nil {
				return err
			}
			res.Children = n
		}
		return nil
	})
	if err != nil {
		err = writeFailure(kind, oldID, err)
		result := "rejected"
		if IsRetryable(err) {
			result = "aborted"
			slog.Warn("rename rolled back", "kind", kind, "old_id", oldID, "new_id", newID, "error", err)
		}
		renameTotal.WithLabelValues(string(kind), result).Inc()
		return RenameResult{}, err
	}

	renameTotal.WithLabelValues(string(kind), "committed").Inc()
	slog.Info("rename committed",
		"kind", kind,
		"old_id", res.OldID,
		"new_id", res.NewID,
		"children", res.Children,
	)
	return res, nil
}

// writeFailure turns whatever a transaction returned into a typed error.
// Anything not already typed happened inside the store and means the
// transaction was rolled back.
func writeFailure(kind Kind, id string, err error) error {
	if _, ok := AsError(err); ok {
		return err
	}
	if errors.Is(err, ErrNoRecord) {
		return notFound(kind, id)
	}
	return transactionAborted(kind, id, err)
}
