// Package store abstracts the distributed key-value cluster the ledger
// persists to. The concrete cluster (its wire protocol, its driver, its
// cluster topology) is explicitly out of scope for the ledger core: the
// core only ever calls through this interface, and only ever relies on the
// guarantees documented on each method.
package store

import (
	"context"
	"time"
)

// Row is a generic column map: one persisted record, keyed by column name.
// Domain packages (wallet, transaction, credit, charge) are responsible for
// marshaling their typed structs to and from Row.
type Row map[string]interface{}

// Clone returns a shallow copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Predicate is the single-column guard behind every conditional write this
// system performs: "IF <Column> = <Equals>". The store never needs richer
// predicates than this — every CAS in the ledger core guards on either a
// sequence number or a status byte.
type Predicate struct {
	Column string
	Equals interface{}
}

// DefaultTimeout is a deadline callers without a more specific one can put
// on a store call (typically 3s for range queries). No Store implementation
// or domain package in this module applies it on its own.
const DefaultTimeout = 3 * time.Second

// Store is the conditional-write, point-read, bounded-scan contract the
// ledger core consumes. Every operation is idempotent on the wire: a
// caller that times out and retries the exact same call never double
// applies.
//
// Store never batches writes across partitions — every Insert/UpdateIf call
// commits atomically on exactly one logical row, or reports applied=false.
// On a transport/cluster error the caller must not assume the write reached
// the cluster; it should surface ledgererr.StoreUnavailable and let its own
// caller decide whether to retry.
type Store interface {
	// InsertIfAbsent writes row to table only if no row exists for its
	// primary key. Returns applied=false (not an error) if a row is
	// already there — callers treat that as benign or as a collision,
	// depending on context.
	InsertIfAbsent(ctx context.Context, table string, row Row) (applied bool, err error)

	// UpdateIf writes the set columns over the row identified by key,
	// only if the row's current value at pred.Column equals pred.Equals.
	// Returns applied=false (not an error) if the predicate didn't hold;
	// the caller is expected to re-read and decide what to do next.
	UpdateIf(ctx context.Context, table string, key Row, set Row, pred Predicate) (applied bool, err error)

	// Get reads fields of the row identified by key. Returns
	// ledgererr.NotFound if absent. fields == nil means "all known
	// columns".
	Get(ctx context.Context, table string, key Row, fields []string) (Row, error)

	// DeleteIf removes the row identified by key, only if the row's current
	// value at pred.Column equals pred.Equals. Returns applied=false (not
	// an error) if the row is already gone or the predicate didn't hold.
	// The only caller in this system is Transaction.Prepare unwinding a
	// transaction row it inserted but could not finish committing to the
	// payer wallet — deletion is otherwise never used, since every other
	// entity in this system is immutable-once-committed or append-only.
	DeleteIf(ctx context.Context, table string, key Row, pred Predicate) (applied bool, err error)

	// Range performs a bounded, partition-scoped scan ordered by a
	// sort column that — for every table in this system — is a
	// lexicographically sortable id.ID (see id.ID), so it also happens to
	// be an approximately time-descending scan order when walked with a
	// shrinking start bound.
	//
	// The scan is: WHERE <partition columns> AND <sortColumn> < startExclusive,
	// optionally filtered client-side by secondary (the design spec's
	// "optional_secondary_predicate" — used for the kind/status narrowing
	// that a single-column partial index can't express, e.g. filtering to
	// rows of one Kind), and only then cut to LIMIT limit, so rows the
	// secondary filter rejects do not count against limit.
	Range(ctx context.Context, table string, partition Row, sortColumn string,
		startExclusive interface{}, limit int, secondary func(Row) bool) ([]Row, error)
}
