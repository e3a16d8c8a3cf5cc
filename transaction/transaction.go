package transaction

import (
	"context"
	"sync"

	"github.com/decred/slog"
	"github.com/walletbase/ledgercore/id"
	"github.com/walletbase/ledgercore/ledgererr"
	"github.com/walletbase/ledgercore/store"
	"github.com/walletbase/ledgercore/wallet"
	"golang.org/x/sync/errgroup"
)

// Table is the logical table name transaction rows are persisted under,
// keyed by (uid, id).
const Table = "transaction"

// TableByPayee and TableBySubPayee are shadow tables keyed by (payee, id)
// and (sub_payee, id) respectively, maintained alongside Table so a payee
// or sub-payee can list the transactions addressed to them without scanning
// every payer's partition.
const (
	TableByPayee    = "transaction_by_payee"
	TableBySubPayee = "transaction_by_sub_payee"
)

// DefaultRetries bounds the cancel and commit CAS-retry loops, per the
// design spec's "up to 5" budget.
const DefaultRetries = wallet.DefaultRetries

// Status is a transaction's position in its prepare/commit/cancel state
// machine.
type Status int8

const (
	StatusDraft      Status = 0  // never observed outside a failed prepare
	StatusPrepared   Status = 1
	StatusCommitting Status = 2
	StatusCommitted  Status = 3
	StatusCancelling Status = -1
	StatusCancelled  Status = -2
)

// Transaction is one ledger movement, keyed by (uid, id) where uid is the
// payer.
type Transaction struct {
	UID         id.ID
	ID          id.ID
	Sequence    int64 // payer wallet's sequence at prepare time
	Payee       id.ID
	SubPayee    *id.ID
	Status      Status
	Kind        Kind
	Amount      int64
	SysFee      int64
	SubShares   int64
	Description string
	Payload     []byte

	// RollbackApplied marks that Cancel's payer-wallet rollback has already
	// landed. The payer wallet's own txn marker can't serve this purpose —
	// Prepare already stamps it with this same transaction id, so it can't
	// distinguish "deducted" from "deducted and rolled back." This bit is
	// what lets a Cancel resumed after the rollback CAS succeeded but
	// before the final status CAS avoid crediting the payer back twice.
	RollbackApplied bool
}

func toRow(t *Transaction) store.Row {
	subPayee := id.Sys
	if t.SubPayee != nil {
		subPayee = *t.SubPayee
	}
	var rollbackApplied int8
	if t.RollbackApplied {
		rollbackApplied = 1
	}
	return store.Row{
		"uid":              t.UID,
		"id":               t.ID,
		"sequence":         t.Sequence,
		"payee":            t.Payee,
		"sub_payee":        subPayee,
		"status":           int8(t.Status),
		"kind":             string(t.Kind),
		"amount":           t.Amount,
		"sys_fee":          t.SysFee,
		"sub_shares":       t.SubShares,
		"description":      t.Description,
		"payload":          t.Payload,
		"rollback_applied": rollbackApplied,
	}
}

func fromRow(r store.Row) *Transaction {
	t := &Transaction{}
	if v, ok := r["uid"].(id.ID); ok {
		t.UID = v
	}
	if v, ok := r["id"].(id.ID); ok {
		t.ID = v
	}
	if v, ok := r["sequence"].(int64); ok {
		t.Sequence = v
	}
	if v, ok := r["payee"].(id.ID); ok {
		t.Payee = v
	}
	if v, ok := r["sub_payee"].(id.ID); ok && !id.IsSys(v) {
		cp := v
		t.SubPayee = &cp
	}
	if v, ok := r["status"].(int8); ok {
		t.Status = Status(v)
	}
	if v, ok := r["kind"].(string); ok {
		t.Kind = Kind(v)
	}
	if v, ok := r["amount"].(int64); ok {
		t.Amount = v
	}
	if v, ok := r["sys_fee"].(int64); ok {
		t.SysFee = v
	}
	if v, ok := r["sub_shares"].(int64); ok {
		t.SubShares = v
	}
	if v, ok := r["description"].(string); ok {
		t.Description = v
	}
	if v, ok := r["payload"].([]byte); ok {
		t.Payload = v
	}
	if v, ok := r["rollback_applied"].(int8); ok {
		t.RollbackApplied = v != 0
	}
	return t
}

// Store drives the prepare/cancel/commit state machine and persists
// Transaction rows, coordinating wallet mutations through a wallet.Store.
type Store struct {
	db      store.Store
	wallets *wallet.Store
}

// New returns a Store bound to db and wallets.
func New(db store.Store, wallets *wallet.Store) *Store {
	return &Store{db: db, wallets: wallets}
}

func (s *Store) key(uid, txnID id.ID) store.Row {
	return store.Row{"uid": uid, "id": txnID}
}

func (s *Store) setStatus(ctx context.Context, uid, txnID id.ID, from, to Status) (bool, error) {
	return s.db.UpdateIf(ctx, Table, s.key(uid, txnID),
		store.Row{"status": int8(to)},
		store.Predicate{Column: "status", Equals: int8(from)})
}

func (s *Store) insertShadows(ctx context.Context, t *Transaction) {
	if _, err := s.db.InsertIfAbsent(ctx, TableByPayee, toRow(t)); err != nil {
		log.Warnf("transaction %s: payee shadow index insert failed: %v", t.ID, err)
	}
	if t.SubPayee != nil {
		if _, err := s.db.InsertIfAbsent(ctx, TableBySubPayee, toRow(t)); err != nil {
			log.Warnf("transaction %s: sub-payee shadow index insert failed: %v", t.ID, err)
		}
	}
}

// Prepare validates and stages a transaction, deducting the payer's side of
// the movement in the same CAS write that stamps the payer wallet with this
// transaction's id. Unlike Cancel and Commit, prepare makes a single
// attempt at the payer wallet CAS: on loss it unwinds the inserted row and
// reports PrepareFailed, leaving the caller to retry with a fresh id rather
// than silently reusing a sequence number that may already be stale.
func (s *Store) Prepare(ctx context.Context, uid, payee id.ID, subPayee *id.ID, kind Kind,
	amount int64, description string, payload []byte) (*Transaction, error) {

	if amount <= 0 {
		return nil, ledgererr.New(ledgererr.InvalidArgument, "amount must be positive, got %d", amount)
	}
	if err := kind.CheckPayer(uid); err != nil {
		return nil, err
	}
	if err := kind.CheckPayee(payee); err != nil {
		return nil, err
	}
	if err := kind.CheckSubPayee(subPayee, uid, payee); err != nil {
		return nil, err
	}

	w, err := s.wallets.GetOrCreate(ctx, uid)
	if err != nil {
		return nil, err
	}
	if !s.wallets.Verify(w) {
		return nil, ledgererr.New(ledgererr.ChecksumMismatch, "wallet %s checksum mismatch", uid)
	}

	sysFee, subShares := FeeAndShares(kind, amount, w.Credits, subPayee != nil)

	if kind.systemPayer() {
		if err := deductSystemPayer(w, kind, amount); err != nil {
			return nil, err
		}
	} else {
		if err := deductUserPayer(w, kind, amount); err != nil {
			return nil, err
		}
	}

	txnID := id.New()
	t := &Transaction{
		UID:         uid,
		ID:          txnID,
		Sequence:    w.Sequence,
		Payee:       payee,
		SubPayee:    subPayee,
		Status:      StatusDraft,
		Kind:        kind,
		Amount:      amount,
		SysFee:      sysFee,
		SubShares:   subShares,
		Description: description,
		Payload:     payload,
	}

	applied, err := s.db.InsertIfAbsent(ctx, Table, toRow(t))
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ledgererr.New(ledgererr.PrepareFailed, "transaction %s already exists", txnID)
	}

	s.wallets.Advance(w, txnID)
	ok, err := s.wallets.CAS(ctx, w)
	if err != nil || !ok {
		if _, delErr := s.db.DeleteIf(ctx, Table, s.key(uid, txnID), store.Predicate{Column: "status", Equals: int8(StatusDraft)}); delErr != nil {
			log.Errorf("transaction %s: failed to unwind after lost payer CAS: %v", txnID, delErr)
		}
		if err != nil {
			return nil, err
		}
		return nil, ledgererr.New(ledgererr.PrepareFailed, "payer wallet %s CAS lost the race", uid)
	}

	if _, err := s.setStatus(ctx, uid, txnID, StatusDraft, StatusPrepared); err != nil {
		return nil, err
	}
	t.Status = StatusPrepared

	s.insertShadows(ctx, t)
	return t, nil
}

// Cancel rolls back a Prepared transaction's payer-side deduction and
// terminates it at Cancelled. A row already at Cancelling (a prior attempt
// flipped the status but didn't finish the rollback or the final CAS) is
// resumed from there rather than treated as already done; only Cancelled
// itself is idempotent.
func (s *Store) Cancel(ctx context.Context, uid, txnID id.ID) error {
	t, err := s.Get(ctx, uid, txnID)
	if err != nil {
		return err
	}
	if t.Status != StatusPrepared && t.Status != StatusCancelling {
		if t.Status == StatusCancelled {
			return nil // already cancelled: idempotent
		}
		return ledgererr.New(ledgererr.StatusConflict, "transaction %s is not prepared (status=%d)", txnID, t.Status)
	}
	if t.Amount <= 0 {
		return ledgererr.New(ledgererr.InvalidArgument, "transaction %s has non-positive amount", txnID)
	}

	if t.Status != StatusCancelling {
		ok, err := s.setStatus(ctx, uid, txnID, StatusPrepared, StatusCancelling)
		if err != nil {
			return err
		}
		if !ok {
			t2, err := s.Get(ctx, uid, txnID)
			if err != nil {
				return err
			}
			if t2.Status == StatusCancelled {
				return nil
			}
			if t2.Status != StatusCancelling {
				return ledgererr.New(ledgererr.StatusConflict, "transaction %s prepared->cancelling CAS lost the race", txnID)
			}
			t = t2
		}
	}

	// The payer wallet's own txn marker already reads as txnID the moment
	// Prepare's deduction CAS lands, so it can't tell "deducted" apart from
	// "deducted, then rolled back" — unlike Commit's sub-wallet tasks, this
	// rollback can't be gated on wallet.MutateIdempotentOrCreate. Instead the
	// transaction row's own rollback_applied column tracks it.
	if !t.RollbackApplied {
		_, err = s.wallets.Mutate(ctx, uid, txnID, func(w *wallet.Wallet) error {
			return rollbackPayer(w, t.Kind, t.Amount)
		})
		if err != nil {
			return ledgererr.Wrap(ledgererr.CancelStuck, err,
				"transaction %s rollback exhausted retries; payer %s left at status -1", txnID, uid).WithWallets(uid.String())
		}

		if _, err := s.db.UpdateIf(ctx, Table, s.key(uid, txnID),
			store.Row{"rollback_applied": int8(1)},
			store.Predicate{Column: "rollback_applied", Equals: int8(0)}); err != nil {
			return err
		}
	}

	if _, err := s.setStatus(ctx, uid, txnID, StatusCancelling, StatusCancelled); err != nil {
		return err
	}
	return nil
}

// Commit moves a Prepared transaction's funds into the payee, the system
// wallet's fee, and the optional sub-payee, in parallel. A partial failure
// leaves the row at Committing for external reconciliation; re-invoking
// Commit on such a row re-runs only the sub-tasks that have not yet
// observed this transaction's id on their wallet.
func (s *Store) Commit(ctx context.Context, uid, txnID id.ID) error {
	t, err := s.Get(ctx, uid, txnID)
	if err != nil {
		return err
	}
	if err := t.Kind.CheckPayee(t.Payee); err != nil {
		return err
	}
	if t.SubShares > 0 && t.SubPayee == nil {
		panic("transaction: sub_shares > 0 with no sub_payee")
	}

	if t.Status != StatusCommitting {
		ok, err := s.setStatus(ctx, uid, txnID, StatusPrepared, StatusCommitting)
		if err != nil {
			return err
		}
		if !ok {
			t2, err := s.Get(ctx, uid, txnID)
			if err != nil {
				return err
			}
			if t2.Status == StatusCommitted {
				return nil // idempotent
			}
			if t2.Status != StatusCommitting {
				return ledgererr.New(ledgererr.StatusConflict, "transaction %s prepared->committing CAS lost the race", txnID)
			}
		}
	}

	net := t.Amount - t.SysFee - t.SubShares

	g, gctx := errgroup.WithContext(ctx)
	var failedMu sync.Mutex
	var failed []string
	record := func(walletID string) {
		failedMu.Lock()
		failed = append(failed, walletID)
		failedMu.Unlock()
	}

	g.Go(func() error {
		_, err := s.wallets.MutateIdempotentOrCreate(gctx, t.Payee, txnID, func(w *wallet.Wallet) error {
			return creditPayee(w, t.Kind, net, t.SysFee)
		})
		if err != nil {
			record(t.Payee.String())
		}
		return nil
	})

	if t.SysFee > 0 && !id.IsSys(t.Payee) {
		g.Go(func() error {
			_, err := s.wallets.MutateIdempotentOrCreate(gctx, id.Sys, txnID, func(w *wallet.Wallet) error {
				w.Income += t.SysFee
				return nil
			})
			if err != nil {
				record(id.Sys.String())
			}
			return nil
		})
	}

	if t.SubShares > 0 {
		sub := *t.SubPayee
		g.Go(func() error {
			_, err := s.wallets.MutateIdempotentOrCreate(gctx, sub, txnID, func(w *wallet.Wallet) error {
				w.Income += t.SubShares
				return nil
			})
			if err != nil {
				record(sub.String())
			}
			return nil
		})
	}

	_ = g.Wait() // sub-tasks record their own failures; errgroup's own error is unused by design

	if len(failed) > 0 {
		return ledgererr.New(ledgererr.CommitPartial,
			"transaction %s: %d wallet(s) failed to advance, left at status=2", txnID, len(failed)).WithWallets(failed...)
	}

	if _, err := s.setStatus(ctx, uid, txnID, StatusCommitting, StatusCommitted); err != nil {
		return err
	}
	return nil
}

// Get reads the transaction keyed by (uid, txnID).
func (s *Store) Get(ctx context.Context, uid, txnID id.ID) (*Transaction, error) {
	row, err := s.db.Get(ctx, Table, s.key(uid, txnID), nil)
	if err != nil {
		return nil, err
	}
	return fromRow(row), nil
}

// List returns up to pageSize transactions paid by uid, newest first.
func (s *Store) List(ctx context.Context, uid id.ID, pageSize int, token id.ID) ([]*Transaction, error) {
	rows, err := s.db.Range(ctx, Table, store.Row{"uid": uid}, "id", token, pageSize, nil)
	if err != nil {
		return nil, err
	}
	return toTransactions(rows), nil
}

// ListByPayee returns up to pageSize transactions addressed to payee,
// newest first, via the payee shadow index. Best-effort: the shadow index
// is written after the payer-side CAS succeeds, so a transaction may be
// briefly absent from this view even though it is already Prepared.
func (s *Store) ListByPayee(ctx context.Context, payee id.ID, pageSize int, token id.ID) ([]*Transaction, error) {
	rows, err := s.db.Range(ctx, TableByPayee, store.Row{"payee": payee}, "id", token, pageSize, nil)
	if err != nil {
		return nil, err
	}
	return toTransactions(rows), nil
}

// ListBySubPayee returns up to pageSize transactions naming subPayee as
// their secondary beneficiary, newest first. Same best-effort guarantee as
// ListByPayee.
func (s *Store) ListBySubPayee(ctx context.Context, subPayee id.ID, pageSize int, token id.ID) ([]*Transaction, error) {
	rows, err := s.db.Range(ctx, TableBySubPayee, store.Row{"sub_payee": subPayee}, "id", token, pageSize, nil)
	if err != nil {
		return nil, err
	}
	return toTransactions(rows), nil
}

func toTransactions(rows []store.Row) []*Transaction {
	out := make([]*Transaction, len(rows))
	for i, r := range rows {
		out[i] = fromRow(r)
	}
	return out
}

var log = slog.Disabled

// UseLogger sets the subsystem logger used by this package.
func UseLogger(logger slog.Logger) {
	log = logger
}
