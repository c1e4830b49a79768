package services

import (
	"errors"
	"fmt"

	"github.com/Satyam8589/SaveServe-sub000/internal/monitoring"
)

// ErrorKind is the stable, machine-readable class of a rejected operation.
type ErrorKind string

const (
	KindValidation           ErrorKind = "VALIDATION"
	KindNotVisible           ErrorKind = "NOT_VISIBLE"
	KindListingExpired       ErrorKind = "LISTING_EXPIRED"
	KindInsufficientQuantity ErrorKind = "INSUFFICIENT_QUANTITY"
	KindDuplicateActiveClaim ErrorKind = "DUPLICATE_ACTIVE_CLAIM"
	KindInvalidTransition    ErrorKind = "INVALID_TRANSITION"
	KindCredentialExpired    ErrorKind = "CREDENTIAL_EXPIRED"
	KindAlreadyCollected     ErrorKind = "ALREADY_COLLECTED"
	KindNotAuthorized        ErrorKind = "NOT_AUTHORIZED"
	KindNotFound             ErrorKind = "NOT_FOUND"
)

// Rejection is an expected business outcome: the operation was refused and
// nothing was changed. Anything that is not a *Rejection is an unexpected failure.
type Rejection struct {
	Kind   ErrorKind
	Reason string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Kind, r.Reason)
}

// Is matches any Rejection of the same kind, so errors.Is(err, ErrNotFound)
// works regardless of the reason text.
func (r *Rejection) Is(target error) bool {
	var other *Rejection
	if errors.As(target, &other) {
		return other.Kind == r.Kind
	}
	return false
}

func reject(kind ErrorKind, format string, args ...interface{}) *Rejection {
	return &Rejection{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation           = &Rejection{Kind: KindValidation, Reason: "invalid input"}
	ErrNotVisible           = &Rejection{Kind: KindNotVisible, Reason: "listing not visible"}
	ErrListingExpired       = &Rejection{Kind: KindListingExpired, Reason: "listing expired"}
	ErrInsufficientQuantity = &Rejection{Kind: KindInsufficientQuantity, Reason: "insufficient quantity"}
	ErrDuplicateActiveClaim = &Rejection{Kind: KindDuplicateActiveClaim, Reason: "active claim already exists"}
	ErrInvalidTransition    = &Rejection{Kind: KindInvalidTransition, Reason: "invalid transition"}
	ErrCredentialExpired    = &Rejection{Kind: KindCredentialExpired, Reason: "credential expired"}
	ErrAlreadyCollected     = &Rejection{Kind: KindAlreadyCollected, Reason: "already collected"}
	ErrNotAuthorized        = &Rejection{Kind: KindNotAuthorized, Reason: "not authorized"}
	ErrNotFound             = &Rejection{Kind: KindNotFound, Reason: "not found"}
)

// AsRejection extracts the Rejection from err, if there is one.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// outcomeOf labels err for metrics.
func outcomeOf(err error) string {
	if err == nil {
		return monitoring.OutcomeOK
	}
	if r, ok := AsRejection(err); ok {
		return string(r.Kind)
	}
	return "ERROR"
}
