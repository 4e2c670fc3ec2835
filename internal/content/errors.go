package content

import (
	"errors"
	"fmt"
)

// Code classifies a content error.
type Code string

const (
	CodeReferenceViolation  Code = "reference_violation"
	CodeDuplicateIdentifier Code = "duplicate_identifier"
	CodeNotFound            Code = "not_found"
	CodeSchemaViolation     Code = "schema_violation"
	CodeTransactionAborted  Code = "transaction_aborted"
)

// Sentinels for errors.Is. A *Error matches the sentinel of its Code.
var (
	ErrReferenceViolation  = &Error{Code: CodeReferenceViolation}
	ErrDuplicateIdentifier = &Error{Code: CodeDuplicateIdentifier}
	ErrNotFound            = &Error{Code: CodeNotFound}
	ErrSchemaViolation     = &Error{Code: CodeSchemaViolation}
	ErrTransactionAborted  = &Error{Code: CodeTransactionAborted}
)

// Schema violations reported by the validation engine and the resolver.
const (
	ViolationInsufficientOptions   = "InsufficientOptions"
	ViolationDuplicateOption       = "DuplicateOption"
	ViolationEmptyOptionText       = "EmptyOptionText"
	ViolationAnswerIndexOutOfRange = "AnswerIndexOutOfRange"
	ViolationInvalidDifficulty     = "InvalidDifficulty"
	ViolationEmptyIdentifier       = "EmptyIdentifier"
	ViolationEmptyName             = "EmptyName"
	ViolationInvalidPayload        = "InvalidPayload"
)

// Error is the typed failure every content operation returns. Kind and
// Identifier name the record at fault so an admin UI can highlight it.
type Error struct {
	Code       Code
	Kind       Kind
	Identifier string
	Violation  string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Kind != "" || e.Identifier != "" {
		msg = fmt.Sprintf("%s: %s %q", msg, e.Kind, e.Identifier)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so callers can write errors.Is(err, content.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Retryable reports whether the caller may resend the same request.
// Only aborted transactions are transient.
func (e *Error) Retryable() bool {
	return e.Code == CodeTransactionAborted
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsRetryable reports whether err is a retryable content error.
func IsRetryable(err error) bool {
	ce, ok := AsError(err)
	return ok && ce.Retryable()
}

func notFound(kind Kind, id string) *Error {
	return &Error{
		Code:       CodeNotFound,
		Kind:       kind,
		Identifier: id,
		Message:    fmt.Sprintf("%s does not exist", kind),
	}
}

func referenceViolation(parent Kind, parentID string, child Kind) *Error {
	return &Error{
		Code:       CodeReferenceViolation,
		Kind:       parent,
		Identifier: parentID,
		Violation:  fmt.Sprintf("%s.parent", child),
		Message:    fmt.Sprintf("%s must reference an existing %s", child, parent),
	}
}

func duplicateIdentifier(kind Kind, id string) *Error {
	return &Error{
		Code:       CodeDuplicateIdentifier,
		Kind:       kind,
		Identifier: id,
		Violation:  "identifier.unique",
		Message:    fmt.Sprintf("%s identifier already in use", kind),
	}
}

func schemaViolation(kind Kind, id, violation, message string) *Error {
	return &Error{
		Code:       CodeSchemaViolation,
		Kind:       kind,
		Identifier: id,
		Violation:  violation,
		Message:    message,
	}
}

func transactionAborted(kind Kind, id string, err error) *Error {
	return &Error{
		Code:       CodeTransactionAborted,
		Kind:       kind,
		Identifier: id,
		Message:    "transaction aborted, no changes were applied",
		Err:        err,
	}
}
