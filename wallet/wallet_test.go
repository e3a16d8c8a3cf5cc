package wallet_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/walletbase/ledgercore/checksum"
	"github.com/walletbase/ledgercore/id"
	"github.com/walletbase/ledgercore/ledgererr"
	"github.com/walletbase/ledgercore/store/memstore"
	"github.com/walletbase/ledgercore/wallet"
)

func testChain() *checksum.Chain {
	key := make([]byte, checksum.KeyLen)
	for i := range key {
		key[i] = byte(i)
	}
	return checksum.NewChain(key)
}

func newHarness(t *testing.T) (*wallet.Store, *memstore.Store) {
	t.Helper()
	db := memstore.New()
	db.Register(wallet.Table, "uid")
	return wallet.New(db, testChain()), db
}

func TestWalletCreateAndVerify(t *testing.T) {
	s, _ := newHarness(t)
	uid := id.New()

	applied, err := s.Create(context.Background(), uid)
	require.NoError(t, err)
	require.True(t, applied)

	w, err := s.Get(context.Background(), uid)
	require.NoError(t, err)
	require.True(t, w.Verify(testChain()))
	require.Zero(t, w.Balance())
}

func TestMutateAppliesAndAdvances(t *testing.T) {
	s, _ := newHarness(t)
	uid := id.New()
	txn := id.New()

	_, err := s.Create(context.Background(), uid)
	require.NoError(t, err)

	w, err := s.Mutate(context.Background(), uid, txn, func(w *wallet.Wallet) error {
		w.Award += 500
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(500), w.Award)
	require.Equal(t, int64(1), w.Sequence)
	require.Equal(t, txn, w.Txn)
	require.True(t, w.Verify(testChain()))

	reloaded, err := s.Get(context.Background(), uid)
	require.NoError(t, err)
	require.Equal(t, w.Checksum, reloaded.Checksum)
}

func TestMutateDetectsChecksumTamper(t *testing.T) {
	db := memstore.New()
	db.Register(wallet.Table, "uid")
	s := wallet.New(db, testChain())
	uid := id.New()

	_, err := s.Create(context.Background(), uid)
	require.NoError(t, err)
	_, err = s.Mutate(context.Background(), uid, id.New(), func(w *wallet.Wallet) error {
		w.Award += 10
		return nil
	})
	require.NoError(t, err)

	// A second Store keyed by a different secret sees the same row but
	// computes a different tag: the checksum chain must reject it.
	otherKey := make([]byte, checksum.KeyLen)
	otherKey[0] = 0xff
	tampered := wallet.New(db, checksum.NewChain(otherKey))
	_, err = tampered.Mutate(context.Background(), uid, id.New(), func(w *wallet.Wallet) error {
		w.Award += 1
		return nil
	})
	require.Error(t, err)
	require.Equal(t, ledgererr.ChecksumMismatch, ledgererr.Of(err))
}

func TestBumpCreditsIsIndependentOfChecksum(t *testing.T) {
	s, _ := newHarness(t)
	uid := id.New()
	_, err := s.Create(context.Background(), uid)
	require.NoError(t, err)

	before, err := s.Get(context.Background(), uid)
	require.NoError(t, err)

	require.NoError(t, s.BumpCredits(context.Background(), uid, 42))

	after, err := s.Get(context.Background(), uid)
	require.NoError(t, err)
	require.Equal(t, int64(42), after.Credits)
	require.Equal(t, before.Checksum, after.Checksum, "credits bump must not touch the HMAC-covered state")
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	s, _ := newHarness(t)
	uid := id.New()

	a, err := s.GetOrCreate(context.Background(), uid)
	require.NoError(t, err)
	b, err := s.GetOrCreate(context.Background(), uid)
	require.NoError(t, err)
	require.Equal(t, a.UID, b.UID)
}
