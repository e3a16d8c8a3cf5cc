// Package ledgererr defines the typed failures the ledger core surfaces to
// its callers, per the error table in the design spec. The core never wraps
// a data-plane failure in a bare error value: every return path that isn't
// "success" constructs one of these so a caller can branch on Kind without
// string matching.
package ledgererr

import (
	"errors"
	"fmt"
)

// Kind classifies a ledger failure. The zero value is never returned.
type Kind int

const (
	// InvalidArgument marks a caller bug: a bad kind/payer/payee pairing,
	// a non-positive amount, or an unknown field name. Never recoverable
	// by retrying the same call.
	InvalidArgument Kind = iota + 1

	// NotFound marks a missing wallet, transaction, credit, or charge row.
	NotFound

	// ChecksumMismatch marks a wallet whose stored HMAC tag does not match
	// its stored state. This should trip an alarm; it means the row was
	// mutated outside the application.
	ChecksumMismatch

	// CreditsRequired marks a user payer with credits == 0 attempting a
	// kind other than Spend.
	CreditsRequired

	// InsufficientBalance marks a payer whose relevant bucket (or overall
	// balance, depending on kind) can't cover the requested amount.
	InsufficientBalance

	// StatusConflict marks a state-machine CAS that lost the race and
	// whose current status forbids the requested transition.
	StatusConflict

	// PrepareFailed marks a transaction insert, or the payer's balance
	// CAS, losing the race during prepare. The caller may retry with a
	// fresh id.
	PrepareFailed

	// CancelStuck marks a cancel that flipped status to Cancelling but
	// exhausted its rollback CAS retries. An external reconciliation job
	// owns rows in this state.
	CancelStuck

	// CommitPartial marks a commit that flipped status to Committing but
	// left one or more sub-wallet CAS loops unresolved. An external
	// reconciliation job owns rows in this state.
	CommitPartial

	// StoreUnavailable marks an underlying store error or timeout. The
	// caller may retry; no write is guaranteed to have reached the
	// cluster.
	StoreUnavailable
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case NotFound:
		return "not_found"
	case ChecksumMismatch:
		return "checksum_mismatch"
	case CreditsRequired:
		return "credits_required"
	case InsufficientBalance:
		return "insufficient_balance"
	case StatusConflict:
		return "status_conflict"
	case PrepareFailed:
		return "prepare_failed"
	case CancelStuck:
		return "cancel_stuck"
	case CommitPartial:
		return "commit_partial"
	case StoreUnavailable:
		return "store_unavailable"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by the ledger core.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// WalletIDs carries the offending wallet id(s) for CommitPartial and
	// CancelStuck, so the reconciliation job doesn't have to re-derive
	// them from the message string.
	WalletIDs []string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, ledgererr.New(Kind, "")) to match on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an *Error with the given kind and message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error that carries cause as its wrapped error.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithWallets attaches offending wallet ids for CommitPartial/CancelStuck
// reporting and returns the same error for chaining at the call site.
func (e *Error) WithWallets(ids ...string) *Error {
	e.WalletIDs = ids
	return e
}

// Of reports the Kind of err if it is (or wraps) a *Error, else zero.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
