// Package wallet implements the wallet entity (C3): balance buckets, the
// per-wallet monotonic sequence, and the HMAC checksum chain that makes an
// out-of-band row edit detectable. It is grounded on the same fixed-column,
// CAS-guarded update shape the Lightning channel database and watchtower
// client database use for their own persisted state machines — one
// conditional write per mutation, with the caller responsible for reading,
// mutating in memory, and re-submitting on conflict.
package wallet

import (
	"github.com/walletbase/ledgercore/checksum"
	"github.com/walletbase/ledgercore/id"
)

// Table is the logical table name wallets are persisted under.
const Table = "wallet"

// MaxOverdraw bounds how negative the Topup bucket may go — the only bucket
// permitted below zero, and only via a Spend transaction consuming more
// than the wallet currently holds.
const MaxOverdraw int64 = 100

// Wallet is one user's (or the system's) ledger state.
type Wallet struct {
	UID      id.ID
	Sequence int64
	Award    int64
	Topup    int64
	Income   int64
	Credits  int64
	Txn      id.ID
	Checksum checksum.Tag
}

// New returns a freshly zeroed wallet for uid, as it exists before its
// first committed mutation.
func New(uid id.ID) *Wallet {
	return &Wallet{UID: uid}
}

// IsSystem reports whether w is the reserved system wallet.
func (w *Wallet) IsSystem() bool {
	return id.IsSys(w.UID)
}

// Balance returns the sum of all three balance buckets.
func (w *Wallet) Balance() int64 {
	return w.Award + w.Topup + w.Income
}

// state projects w into the fixed-order, fixed-encoding form the checksum
// chain is computed over.
func (w *Wallet) state() checksum.WalletState {
	return checksum.WalletState{
		UID:     w.UID,
		Seq:     w.Sequence,
		Award:   w.Award,
		Topup:   w.Topup,
		Income:  w.Income,
		LastTxn: w.Txn,
	}
}

// Verify checks w's stored checksum against the chain's computed tag. A
// freshly created wallet (Sequence == 0) has no checksum to verify.
func (w *Wallet) Verify(chain *checksum.Chain) bool {
	if w.Sequence == 0 {
		return true
	}
	return chain.Verify(w.state(), w.Checksum)
}

// advance bumps w's sequence, records txn as the responsible transaction,
// and recomputes the checksum over the resulting state. Callers must have
// already applied the balance delta before calling advance — the checksum
// covers the post-mutation state.
func (w *Wallet) advance(chain *checksum.Chain, txn id.ID) {
	w.Sequence++
	w.Txn = txn
	w.Checksum = chain.Tag(w.state())
}

// clone returns a deep copy suitable for speculative in-memory mutation
// ahead of a CAS write.
func (w *Wallet) clone() *Wallet {
	c := *w
	return &c
}
