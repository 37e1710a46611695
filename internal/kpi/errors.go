package kpi

import (
	"context"
	"regexp"

	"github.com/cockroachdb/errors"
)

// Error classes. Callers test with errors.Is; the HTTP layer maps them to
// status codes.
var (
	ErrValidation = errors.New("invalid request")
	ErrRetrieval  = errors.New("retrieval failed")
	ErrTimeout    = errors.New("store timeout")

	errNoTrendStore = errors.New("trend store not configured")
)

var entityRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateEntityID checks a line/site identifier. name is the parameter name
// used in the error message.
func ValidateEntityID(name, id string) error {
	if !entityRe.MatchString(id) {
		return validationf("invalid %s", name)
	}
	return nil
}

func validationf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

// retrievalError classifies a store failure. The store text stays in the
// chain for logs; PublicMessage never returns it.
func retrievalError(err error, op string) error {
	if err == nil {
		return nil
	}
	wrapped := errors.Mark(errors.Wrapf(err, "%s", op), ErrRetrieval)
	if errors.Is(err, context.DeadlineExceeded) {
		wrapped = errors.Mark(wrapped, ErrTimeout)
	}
	return wrapped
}

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

func IsRetrieval(err error) bool { return errors.Is(err, ErrRetrieval) }

func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// PublicMessage is the caller-facing text for err.
func PublicMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case IsValidation(err):
		return err.Error()
	case IsTimeout(err):
		return "data store query timed out"
	case IsRetrieval(err):
		return "data retrieval failed"
	default:
		return "internal error"
	}
}
