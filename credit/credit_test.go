package credit_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/walletbase/ledgercore/checksum"
	"github.com/walletbase/ledgercore/credit"
	"github.com/walletbase/ledgercore/id"
	"github.com/walletbase/ledgercore/store/memstore"
	"github.com/walletbase/ledgercore/wallet"
)

func testChain() *checksum.Chain {
	key := make([]byte, checksum.KeyLen)
	for i := range key {
		key[i] = byte(i * 3)
	}
	return checksum.NewChain(key)
}

func newHarness(t *testing.T) (*credit.Ledger, *wallet.Store) {
	t.Helper()
	db := memstore.New()
	db.Register(wallet.Table, "uid")
	db.Register(credit.Table, "uid", "txn")

	wallets := wallet.New(db, testChain())
	return credit.New(db, wallets), wallets
}

func TestSaveBootstrapsCreditsOnFirstAward(t *testing.T) {
	l, wallets := newHarness(t)
	ctx := context.Background()
	uid := id.New()
	_, err := wallets.Create(ctx, uid)
	require.NoError(t, err)

	err = l.Save(ctx, credit.Credit{UID: uid, Txn: id.New(), Kind: credit.KindAward, Amount: 100, Description: "bootstrap"})
	require.NoError(t, err)

	w, err := wallets.Get(ctx, uid)
	require.NoError(t, err)
	require.Equal(t, int64(100), w.Credits)
}

func TestSaveSkipsNonAwardBeforeBootstrap(t *testing.T) {
	l, wallets := newHarness(t)
	ctx := context.Background()
	uid := id.New()
	_, err := wallets.Create(ctx, uid)
	require.NoError(t, err)

	err = l.Save(ctx, credit.Credit{UID: uid, Txn: id.New(), Kind: credit.KindPayout, Amount: 10})
	require.NoError(t, err)

	w, err := wallets.Get(ctx, uid)
	require.NoError(t, err)
	require.Zero(t, w.Credits, "a Payout credit before any Award bootstrap must not create a counter")
}

func TestSaveIsIdempotentOnDuplicateTxn(t *testing.T) {
	l, wallets := newHarness(t)
	ctx := context.Background()
	uid := id.New()
	_, err := wallets.Create(ctx, uid)
	require.NoError(t, err)

	txn := id.New()
	c := credit.Credit{UID: uid, Txn: txn, Kind: credit.KindAward, Amount: 50}
	require.NoError(t, l.Save(ctx, c))
	require.NoError(t, l.Save(ctx, c))

	w, err := wallets.Get(ctx, uid)
	require.NoError(t, err)
	require.Equal(t, int64(50), w.Credits, "replaying the same (uid, txn) must not double-count")
}

func TestSaveIsNoOpForSystemWallet(t *testing.T) {
	l, _ := newHarness(t)
	err := l.Save(context.Background(), credit.Credit{UID: id.Sys, Txn: id.New(), Kind: credit.KindAward, Amount: 5})
	require.NoError(t, err)
}

func TestListFiltersByKind(t *testing.T) {
	l, wallets := newHarness(t)
	ctx := context.Background()
	uid := id.New()
	_, err := wallets.Create(ctx, uid)
	require.NoError(t, err)

	require.NoError(t, l.Save(ctx, credit.Credit{UID: uid, Txn: id.New(), Kind: credit.KindAward, Amount: 10}))
	require.NoError(t, l.Save(ctx, credit.Credit{UID: uid, Txn: id.New(), Kind: credit.KindPayout, Amount: 3}))

	all, err := l.List(ctx, uid, "", 10, id.Max)
	require.NoError(t, err)
	require.Len(t, all, 2)

	awards, err := l.List(ctx, uid, credit.KindAward, 10, id.Max)
	require.NoError(t, err)
	require.Len(t, awards, 1)
	require.Equal(t, credit.KindAward, awards[0].Kind)
}
