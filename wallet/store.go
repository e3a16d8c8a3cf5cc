package wallet

import (
	"context"

	"github.com/walletbase/ledgercore/checksum"
	"github.com/walletbase/ledgercore/id"
	"github.com/walletbase/ledgercore/ledgererr"
	"github.com/walletbase/ledgercore/store"
)

// DefaultRetries is the bound on how many times a CAS-guarded mutation
// re-reads and retries before giving up loudly, per the design spec's
// "typically 5" retry budget.
const DefaultRetries = 5

// Store persists Wallet rows through a store.Store, computing and verifying
// checksum tags along the way.
type Store struct {
	db    store.Store
	chain *checksum.Chain
}

// New returns a Store bound to db and chain.
func New(db store.Store, chain *checksum.Chain) *Store {
	return &Store{db: db, chain: chain}
}

func toRow(w *Wallet) store.Row {
	return store.Row{
		"uid":      w.UID,
		"sequence": w.Sequence,
		"award":    w.Award,
		"topup":    w.Topup,
		"income":   w.Income,
		"credits":  w.Credits,
		"txn":      w.Txn,
		"checksum": w.Checksum,
	}
}

func fromRow(r store.Row) *Wallet {
	w := &Wallet{}
	if v, ok := r["uid"].(id.ID); ok {
		w.UID = v
	}
	if v, ok := r["sequence"].(int64); ok {
		w.Sequence = v
	}
	if v, ok := r["award"].(int64); ok {
		w.Award = v
	}
	if v, ok := r["topup"].(int64); ok {
		w.Topup = v
	}
	if v, ok := r["income"].(int64); ok {
		w.Income = v
	}
	if v, ok := r["credits"].(int64); ok {
		w.Credits = v
	}
	if v, ok := r["txn"].(id.ID); ok {
		w.Txn = v
	}
	if v, ok := r["checksum"].(checksum.Tag); ok {
		w.Checksum = v
	}
	return w
}

// Get loads every column of the wallet keyed by uid. Returns
// ledgererr.NotFound if absent.
func (s *Store) Get(ctx context.Context, uid id.ID) (*Wallet, error) {
	row, err := s.db.Get(ctx, Table, store.Row{"uid": uid}, nil)
	if err != nil {
		return nil, err
	}
	return fromRow(row), nil
}

// Create conditionally inserts a fresh wallet row for uid (sequence=0,
// empty checksum). applied=false means a row for uid already exists, which
// callers treat as benign — not an error.
func (s *Store) Create(ctx context.Context, uid id.ID) (applied bool, err error) {
	w := New(uid)
	return s.db.InsertIfAbsent(ctx, Table, toRow(w))
}

// GetOrCreate loads uid's wallet, creating it first if absent. Used on the
// payee side of a commit, where the payee wallet may not exist yet.
func (s *Store) GetOrCreate(ctx context.Context, uid id.ID) (*Wallet, error) {
	w, err := s.Get(ctx, uid)
	if err == nil {
		return w, nil
	}
	if ledgererr.Of(err) != ledgererr.NotFound {
		return nil, err
	}
	if _, err := s.Create(ctx, uid); err != nil {
		return nil, err
	}
	return s.Get(ctx, uid)
}

// updateBalance CAS-writes w's mutable columns, guarded by the sequence
// value one less than w.Sequence (the pre-mutation sequence) — callers must
// call advance() before this, which already bumped w.Sequence.
func (s *Store) updateBalance(ctx context.Context, w *Wallet) (bool, error) {
	set := store.Row{
		"sequence": w.Sequence,
		"award":    w.Award,
		"topup":    w.Topup,
		"income":   w.Income,
		"txn":      w.Txn,
		"checksum": w.Checksum,
	}
	pred := store.Predicate{Column: "sequence", Equals: w.Sequence - 1}
	return s.db.UpdateIf(ctx, Table, store.Row{"uid": w.UID}, set, pred)
}

// Verify reports whether w's stored checksum matches this store's chain.
// Exposed for callers (Transaction.Prepare) that need to read and verify a
// wallet without going through Mutate's retry loop.
func (s *Store) Verify(w *Wallet) bool {
	return w.Verify(s.chain)
}

// Advance bumps w's sequence, stamps txn as the responsible transaction, and
// recomputes its checksum, without writing anything. Exposed for callers
// that drive their own single-attempt CAS sequencing (Transaction.Prepare),
// where the wallet read, the balance mutation, and the eventual CAS must all
// act on the very same in-memory snapshot rather than Mutate's own re-read.
func (s *Store) Advance(w *Wallet, txn id.ID) {
	w.advance(s.chain, txn)
}

// CAS attempts the conditional write of w's current in-memory state, guarded
// by the sequence value one less than w.Sequence. Exposed alongside Verify
// and Advance for single-attempt callers; Mutate composes the same sequence
// into a retrying loop.
func (s *Store) CAS(ctx context.Context, w *Wallet) (bool, error) {
	return s.updateBalance(ctx, w)
}

// Mutate implements the read-verify-mutate-CAS loop shared by every
// retrying checksum-chain-guarded wallet write in this system: the rollback
// in Transaction.Cancel and each sub-wallet credit in Transaction.Commit
// (Transaction.Prepare's payer deduction instead makes a single attempt
// through Verify, Advance and CAS). It retries up to DefaultRetries
// times, re-reading the wallet and re-invoking apply on every attempt, so a
// losing CAS from a concurrent mutation is transparently retried against
// fresh state.
//
// apply receives a wallet that has already had its prior checksum
// verified; it must mutate the balance buckets in place and return nil, or
// return a terminal (non-retryable) error to abort the loop immediately.
func (s *Store) Mutate(ctx context.Context, uid id.ID, txn id.ID, apply func(w *Wallet) error) (*Wallet, error) {
	var last error
	for attempt := 0; attempt < DefaultRetries; attempt++ {
		w, err := s.Get(ctx, uid)
		if err != nil {
			return nil, err
		}
		if !w.Verify(s.chain) {
			return nil, ledgererr.New(ledgererr.ChecksumMismatch, "wallet %s checksum mismatch", w.UID)
		}

		if err := apply(w); err != nil {
			return nil, err
		}

		w.advance(s.chain, txn)
		ok, err := s.updateBalance(ctx, w)
		if err != nil {
			return nil, err
		}
		if ok {
			return w, nil
		}
		last = ledgererr.New(ledgererr.StatusConflict, "wallet %s CAS lost the race on attempt %d", uid, attempt)
	}
	log.Warnf("wallet %s: mutate exhausted %d retries", uid, DefaultRetries)
	return nil, last
}

// MutateOrCreate is Mutate, but creates the wallet first if it doesn't yet
// exist. Transaction.Commit's payee/sub-payee tasks use the idempotent
// variant below rather than this one.
func (s *Store) MutateOrCreate(ctx context.Context, uid id.ID, txn id.ID, apply func(w *Wallet) error) (*Wallet, error) {
	if _, err := s.GetOrCreate(ctx, uid); err != nil {
		return nil, err
	}
	return s.Mutate(ctx, uid, txn, apply)
}

// MutateIdempotentOrCreate is MutateOrCreate, except that if the freshly
// read wallet's Txn column already equals txn, the wallet already reflects
// this mutation (a prior attempt committed the CAS write but the caller
// never saw success, and has now been retried with the same txn id) and the
// read-modify-CAS cycle is skipped entirely rather than re-applying apply's
// delta a second time. Used by Transaction.Commit's three sub-wallet tasks,
// which may be re-invoked against a transaction already sitting at the
// committing status.
func (s *Store) MutateIdempotentOrCreate(ctx context.Context, uid id.ID, txn id.ID, apply func(w *Wallet) error) (*Wallet, error) {
	w, err := s.GetOrCreate(ctx, uid)
	if err != nil {
		return nil, err
	}
	if w.Txn == txn {
		return w, nil
	}
	return s.Mutate(ctx, uid, txn, apply)
}

// BumpCredits increments w.Credits by amount using a CAS guarded by the
// prior value, independent of the checksum chain (the credits counter is
// not part of the HMAC-covered state). Retries up to DefaultRetries times
// on conflict.
func (s *Store) BumpCredits(ctx context.Context, uid id.ID, amount int64) error {
	for attempt := 0; attempt < DefaultRetries; attempt++ {
		w, err := s.Get(ctx, uid)
		if err != nil {
			return err
		}
		set := store.Row{"credits": w.Credits + amount}
		pred := store.Predicate{Column: "credits", Equals: w.Credits}
		ok, err := s.db.UpdateIf(ctx, Table, store.Row{"uid": uid}, set, pred)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ledgererr.New(ledgererr.StoreUnavailable, "wallet %s credits CAS exhausted retries", uid)
}
