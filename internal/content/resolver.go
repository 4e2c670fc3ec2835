package content

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Resolver maps external identifiers (and legacy document-store keys) to
// live records and guards parent references and uniqueness before a write.
// It only reads, through whichever Lookup it is handed.
type Resolver struct{}

// IsLegacyKey reports whether s has the shape of a key issued by the old
// document store (a 24-character hex ObjectID).
func IsLegacyKey(s string) bool {
	return primitive.IsValidObjectID(s)
}

// Resolve returns the canonical handle for identifier. A legacy key is
// accepted when no record holds it as an external identifier.
func (Resolver) Resolve(ctx context.Context, lk Lookup, kind Kind, identifier string) (Handle, error) {
	id := strings.TrimSpace(identifier)
	if err := validateIdentifier(kind, id); err != nil {
		return Handle{}, err
	}

	ok, err := lk.Exists(ctx, kind, id)
	if err != nil {
		return Handle{}, fmt.Errorf("resolve %s: %w", kind, err)
	}
	if ok {
		return Handle{Kind: kind, ID: id}, nil
	}

	if IsLegacyKey(id) {
		canonical, found, err := lk.LookupLegacy(ctx, kind, id)
		if err != nil {
			return Handle{}, fmt.Errorf("resolve %s: %w", kind, err)
		}
		if found {
			return Handle{Kind: kind, ID: canonical, LegacyKey: id}, nil
		}
	}

	return Handle{}, notFound(kind, id)
}

// AssertParentExists fails with a ReferenceViolation naming parentID when no
// parent of the right kind holds it. An empty parent is only accepted for
// lectures, whose subject is optional. It returns the canonical parent id.
func (r Resolver) AssertParentExists(ctx context.Context, lk Lookup, kind Kind, parentID string) (string, error) {
	parent := kind.Parent()
	if parent == "" {
		return "", nil
	}
	if strings.TrimSpace(parentID) == "" {
		if kind == KindLecture {
			return "", nil
		}
		return "", referenceViolation(parent, parentID, kind)
	}

	h, err := r.Resolve(ctx, lk, parent, parentID)
	if err != nil {
		if ce, ok := AsError(err); ok && ce.Code == CodeNotFound {
			return "", referenceViolation(parent, strings.TrimSpace(parentID), kind)
		}
		return "", err
	}
	return h.ID, nil
}

// AssertUnique fails with DuplicateIdentifier when a live record of kind
// already holds id, either as its identifier or as its legacy key.
func (r Resolver) AssertUnique(ctx context.Context, lk Lookup, kind Kind, id string) error {
	if err := validateIdentifier(kind, id); err != nil {
		return err
	}
	taken, err := r.taken(ctx, lk, kind, id)
	if err != nil {
		return fmt.Errorf("check %s unique: %w", kind, err)
	}
	if taken {
		return duplicateIdentifier(kind, id)
	}
	return nil
}

// taken reports whether id would shadow or collide with a live record.
// Resolve tries identifiers before legacy keys, so an identifier equal to
// another record's legacy key would steal it.
func (Resolver) taken(ctx context.Context, lk Lookup, kind Kind, id string) (bool, error) {
	ok, err := lk.Exists(ctx, kind, id)
	if err != nil || ok {
		return ok, err
	}
	if !IsLegacyKey(id) {
		return false, nil
	}
	_, found, err := lk.LookupLegacy(ctx, kind, id)
	return found, err
}
