// Package apperr defines the typed error kinds surfaced by orchestrator
// entry points, in the style of the provider errors used throughout the
// guard and provider layers.
package apperr

import "fmt"

// Kind classifies an error so callers can branch on it without string
// matching.
type Kind int

const (
	Internal Kind = iota
	NotFound
	Inactive
	RateLimited
	UpstreamPostSourceError
	UpstreamOracleError
	StoreError
	InvalidInput
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Inactive:
		return "inactive"
	case RateLimited:
		return "rate_limited"
	case UpstreamPostSourceError:
		return "upstream_post_source_error"
	case UpstreamOracleError:
		return "upstream_oracle_error"
	case StoreError:
		return "store_error"
	case InvalidInput:
		return "invalid_input"
	default:
		return "internal"
	}
}

// Error is the typed error carried across component boundaries. Op names
// the failing operation (e.g. "ingest.ingest_for_market") so a single log
// line is enough to locate the failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func new(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func NewNotFound(op string, err error) *Error                { return new(NotFound, op, err) }
func NewInactive(op string, err error) *Error                { return new(Inactive, op, err) }
func NewRateLimited(op string, err error) *Error             { return new(RateLimited, op, err) }
func NewUpstreamPostSource(op string, err error) *Error      { return new(UpstreamPostSourceError, op, err) }
func NewUpstreamOracle(op string, err error) *Error          { return new(UpstreamOracleError, op, err) }
func NewStoreError(op string, err error) *Error              { return new(StoreError, op, err) }
func NewInvalidInput(op string, err error) *Error            { return new(InvalidInput, op, err) }
func NewInternal(op string, err error) *Error                { return new(Internal, op, err) }

// KindOf extracts the Kind from err, defaulting to Internal when err is
// not an *Error (or is nil, in which case the zero Kind is meaningless
// and callers should not call KindOf on a nil error).
func KindOf(err error) Kind {
	var e *Error
	if as(err, &e) {
		return e.Kind
	}
	return Internal
}

// as walks err's single-error Unwrap chain and stores the first *Error it
// finds in target; it does the job of errors.As for *Error without calling
// it, and does not descend into Unwrap() []error.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
