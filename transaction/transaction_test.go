package transaction_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/walletbase/ledgercore/checksum"
	"github.com/walletbase/ledgercore/credit"
	"github.com/walletbase/ledgercore/id"
	"github.com/walletbase/ledgercore/ledgererr"
	"github.com/walletbase/ledgercore/store"
	"github.com/walletbase/ledgercore/store/memstore"
	"github.com/walletbase/ledgercore/transaction"
	"github.com/walletbase/ledgercore/wallet"
)

func testChain() *checksum.Chain {
	key := make([]byte, checksum.KeyLen)
	for i := range key {
		key[i] = byte(i * 7)
	}
	return checksum.NewChain(key)
}

type harness struct {
	ctx  context.Context
	db   *memstore.Store
	wlt  *wallet.Store
	txns *transaction.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := memstore.New()
	db.Register(wallet.Table, "uid")
	db.Register(transaction.Table, "uid", "id")
	db.Register(transaction.TableByPayee, "payee", "id")
	db.Register(transaction.TableBySubPayee, "sub_payee", "id")
	db.Register(credit.Table, "uid", "txn")

	wlt := wallet.New(db, testChain())
	return &harness{
		ctx:  context.Background(),
		db:   db,
		wlt:  wlt,
		txns: transaction.New(db, wlt),
	}
}

// S1: Award then Spend.
func TestScenarioAwardThenSpend(t *testing.T) {
	h := newHarness(t)
	_, err := h.wlt.Create(h.ctx, id.Sys)
	require.NoError(t, err)

	u := id.New()

	t1, err := h.txns.Prepare(h.ctx, id.Sys, u, nil, transaction.KindAward, 1000, "bootstrap", nil)
	require.NoError(t, err)
	require.NoError(t, h.txns.Commit(h.ctx, id.Sys, t1.ID))

	uw, err := h.wlt.Get(h.ctx, u)
	require.NoError(t, err)
	require.Equal(t, int64(1000), uw.Award)
	require.Equal(t, int64(1), uw.Sequence)

	require.NoError(t, h.wlt.BumpCredits(h.ctx, u, 10))

	t2, err := h.txns.Prepare(h.ctx, u, id.Sys, nil, transaction.KindSpend, 400, "spend", nil)
	require.NoError(t, err)
	require.NoError(t, h.txns.Commit(h.ctx, u, t2.ID))

	uw, err = h.wlt.Get(h.ctx, u)
	require.NoError(t, err)
	require.Equal(t, int64(600), uw.Award)
	require.Equal(t, int64(0), uw.Topup)
	require.Equal(t, int64(2), uw.Sequence)
}

// S2: Sponsor-style Subscribe with a sub-payee.
func TestScenarioSubscribeWithSubPayee(t *testing.T) {
	h := newHarness(t)
	p, e, s := id.New(), id.New(), id.New()

	_, err := h.wlt.Create(h.ctx, p)
	require.NoError(t, err)
	_, err = h.wlt.Mutate(h.ctx, p, id.New(), func(w *wallet.Wallet) error {
		w.Award = 1000
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, h.wlt.BumpCredits(h.ctx, p, 10000))

	sub := s
	txn, err := h.txns.Prepare(h.ctx, p, e, &sub, transaction.KindSubscribe, 200, "sub", nil)
	require.NoError(t, err)
	require.Equal(t, int64(54), txn.SysFee)
	require.Equal(t, int64(73), txn.SubShares)

	require.NoError(t, h.txns.Commit(h.ctx, p, txn.ID))

	ew, err := h.wlt.Get(h.ctx, e)
	require.NoError(t, err)
	require.Equal(t, int64(73), ew.Income)

	sw, err := h.wlt.Get(h.ctx, s)
	require.NoError(t, err)
	require.Equal(t, int64(73), sw.Income)

	sysw, err := h.wlt.Get(h.ctx, id.Sys)
	require.NoError(t, err)
	require.Equal(t, int64(54), sysw.Income)

	credits := transaction.Credits(txn)
	require.Len(t, credits, 3)
}

// S3: Cancel restores overdraw rewrites to topup, not award.
func TestScenarioCancelRestoresToTopup(t *testing.T) {
	h := newHarness(t)
	p := id.New()
	_, err := h.wlt.Create(h.ctx, p)
	require.NoError(t, err)
	_, err = h.wlt.Mutate(h.ctx, p, id.New(), func(w *wallet.Wallet) error {
		w.Award = 600
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, h.wlt.BumpCredits(h.ctx, p, 110))

	txn, err := h.txns.Prepare(h.ctx, p, id.Sys, nil, transaction.KindSpend, 400, "spend", nil)
	require.NoError(t, err)

	pw, err := h.wlt.Get(h.ctx, p)
	require.NoError(t, err)
	require.Equal(t, int64(200), pw.Award)
	require.Equal(t, int64(0), pw.Topup)

	require.NoError(t, h.txns.Cancel(h.ctx, p, txn.ID))

	pw, err = h.wlt.Get(h.ctx, p)
	require.NoError(t, err)
	require.Equal(t, int64(200), pw.Award, "cancel must not restore award")
	require.Equal(t, int64(400), pw.Topup, "cancel must credit the rollback to topup")
}

// A cancel stuck at Cancelling (e.g. the process died between the
// prepared->cancelling CAS and the payer rollback) must be resumable: a
// later Cancel call on the same row should finish the rollback and the
// cancelling->cancelled CAS rather than treating -1 as already-done.
func TestScenarioResumeCancelFromCancelling(t *testing.T) {
	h := newHarness(t)
	p := id.New()
	_, err := h.wlt.Create(h.ctx, p)
	require.NoError(t, err)
	_, err = h.wlt.Mutate(h.ctx, p, id.New(), func(w *wallet.Wallet) error {
		w.Award = 600
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, h.wlt.BumpCredits(h.ctx, p, 110))

	txn, err := h.txns.Prepare(h.ctx, p, id.Sys, nil, transaction.KindSpend, 400, "spend", nil)
	require.NoError(t, err)

	// Simulate a crash right after the prepared->cancelling CAS, before the
	// payer wallet was ever rolled back.
	ok, err := h.db.UpdateIf(h.ctx, transaction.Table, store.Row{"uid": p, "id": txn.ID},
		store.Row{"status": int8(-1)}, store.Predicate{Column: "status", Equals: int8(1)})
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, h.txns.Cancel(h.ctx, p, txn.ID))

	pw, err := h.wlt.Get(h.ctx, p)
	require.NoError(t, err)
	require.Equal(t, int64(200), pw.Award)
	require.Equal(t, int64(400), pw.Topup, "resumed cancel must still complete the rollback")

	got, err := h.txns.Get(h.ctx, p, txn.ID)
	require.NoError(t, err)
	require.Equal(t, transaction.StatusCancelled, got.Status)

	// A second Cancel against the now-Cancelled row is a pure no-op.
	require.NoError(t, h.txns.Cancel(h.ctx, p, txn.ID))
	pw, err = h.wlt.Get(h.ctx, p)
	require.NoError(t, err)
	require.Equal(t, int64(400), pw.Topup, "re-cancelling an already-cancelled row must not double-credit")
}

// S6: commit re-invoked after a partial failure must not double-apply the
// sub-task that already succeeded.
func TestScenarioPartialCommitReconciles(t *testing.T) {
	h := newHarness(t)
	p, e := id.New(), id.New()

	_, err := h.wlt.Create(h.ctx, p)
	require.NoError(t, err)
	_, err = h.wlt.Mutate(h.ctx, p, id.New(), func(w *wallet.Wallet) error {
		w.Award = 1000
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, h.wlt.BumpCredits(h.ctx, p, 10000))

	txn, err := h.txns.Prepare(h.ctx, p, e, nil, transaction.KindSponsor, 200, "sponsor", nil)
	require.NoError(t, err)

	// First commit succeeds outright.
	require.NoError(t, h.txns.Commit(h.ctx, p, txn.ID))
	ew, err := h.wlt.Get(h.ctx, e)
	require.NoError(t, err)
	firstIncome := ew.Income

	// Simulate the system-fee sub-task having exhausted its retries: the
	// row is stuck at Committing even though the payee wallet already
	// advanced past this txn.
	ok, err := h.db.UpdateIf(h.ctx, transaction.Table,
		store.Row{"uid": p, "id": txn.ID},
		store.Row{"status": int8(transaction.StatusCommitting)},
		store.Predicate{Column: "status", Equals: int8(transaction.StatusCommitted)})
	require.NoError(t, err)
	require.True(t, ok)

	// Re-invoking commit must re-run the sub-tasks but detect the payee
	// wallet already carries this txn's id, and not double-credit it.
	require.NoError(t, h.txns.Commit(h.ctx, p, txn.ID))
	ew, err = h.wlt.Get(h.ctx, e)
	require.NoError(t, err)
	require.Equal(t, firstIncome, ew.Income, "idempotent re-commit must not double-credit the payee")

	tx, err := h.txns.Get(h.ctx, p, txn.ID)
	require.NoError(t, err)
	require.Equal(t, transaction.StatusCommitted, tx.Status)
}

func TestSpendOverdrawBoundary(t *testing.T) {
	h := newHarness(t)
	p := id.New()
	_, err := h.wlt.Create(h.ctx, p)
	require.NoError(t, err)
	require.NoError(t, h.wlt.BumpCredits(h.ctx, p, 1))
	_, err = h.wlt.Mutate(h.ctx, p, id.New(), func(w *wallet.Wallet) error {
		w.Award = 100
		return nil
	})
	require.NoError(t, err)

	// balance()=100, MAX_OVERDRAW=100: spending exactly 200 succeeds.
	txn, err := h.txns.Prepare(h.ctx, p, id.Sys, nil, transaction.KindSpend, 200, "", nil)
	require.NoError(t, err)
	require.NoError(t, h.txns.Commit(h.ctx, p, txn.ID))

	pw, err := h.wlt.Get(h.ctx, p)
	require.NoError(t, err)
	require.Equal(t, int64(-100), pw.Topup)

	// One unit more must fail outright (no partial wallet mutation).
	_, err = h.txns.Prepare(h.ctx, p, id.Sys, nil, transaction.KindSpend, 1, "", nil)
	require.Error(t, err)
	require.Equal(t, ledgererr.InsufficientBalance, ledgererr.Of(err))
}

func TestSponsorFeeFloor(t *testing.T) {
	h := newHarness(t)
	p := id.New()
	_, err := h.wlt.Create(h.ctx, p)
	require.NoError(t, err)
	require.NoError(t, h.wlt.BumpCredits(h.ctx, p, 1))
	_, err = h.wlt.Mutate(h.ctx, p, id.New(), func(w *wallet.Wallet) error {
		w.Award = 1
		return nil
	})
	require.NoError(t, err)

	txn, err := h.txns.Prepare(h.ctx, p, id.New(), nil, transaction.KindSponsor, 1, "", nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), txn.SysFee)
	require.Equal(t, int64(0), txn.SubShares)
}

func TestCreditsRequiredForNonSpendWithZeroCredits(t *testing.T) {
	h := newHarness(t)
	p := id.New()
	_, err := h.wlt.Create(h.ctx, p)
	require.NoError(t, err)
	_, err = h.wlt.Mutate(h.ctx, p, id.New(), func(w *wallet.Wallet) error {
		w.Award = 500
		return nil
	})
	require.NoError(t, err)

	_, err = h.txns.Prepare(h.ctx, p, id.New(), nil, transaction.KindSponsor, 10, "", nil)
	require.Error(t, err)
	require.Equal(t, ledgererr.CreditsRequired, ledgererr.Of(err))
}
