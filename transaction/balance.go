package transaction

import (
	"github.com/walletbase/ledgercore/ledgererr"
	"github.com/walletbase/ledgercore/wallet"
)

// deductSystemPayer applies the system wallet's side of an Award or Topup:
// subtract unconditionally from the corresponding negative-allowed bucket.
// The system wallet carries no credits gate and no balance floor.
func deductSystemPayer(w *wallet.Wallet, kind Kind, amount int64) error {
	switch kind {
	case KindAward:
		w.Award -= amount
	case KindTopup:
		w.Topup -= amount
	}
	return nil
}

// deductUserPayer applies a user payer's side of the deduction per the
// design spec's quota-and-waterfall rule. w must already have its prior
// checksum verified by the caller.
func deductUserPayer(w *wallet.Wallet, kind Kind, amount int64) error {
	if w.Credits == 0 && kind != KindSpend {
		return ledgererr.New(ledgererr.CreditsRequired, "wallet %s has no credits", w.UID)
	}

	var quota int64
	switch kind {
	case KindWithdraw:
		quota = w.Income
	case KindRefund:
		quota = w.Topup
	case KindSpend:
		quota = w.Balance() + wallet.MaxOverdraw
	default: // Sponsor, Subscribe
		quota = w.Balance()
	}
	if w.Balance() <= 0 || quota < amount {
		return ledgererr.New(ledgererr.InsufficientBalance, "wallet %s cannot cover %d as %s", w.UID, amount, kind)
	}

	switch kind {
	case KindWithdraw:
		w.Income -= amount
	case KindRefund:
		w.Topup -= amount
	default: // Spend, Sponsor, Subscribe: award, then topup, then income
		waterfall(w, amount)
	}
	return nil
}

// waterfall consumes amount from w's buckets in award, topup, income order;
// any residual left once all three are drained becomes a negative topup —
// the only form of overdraw this system permits, and only reachable by
// Spend, whose caller has already bounded amount by balance()+MAX_OVERDRAW.
func waterfall(w *wallet.Wallet, amount int64) {
	remaining := amount
	remaining = consume(&w.Award, remaining)
	remaining = consume(&w.Topup, remaining)
	remaining = consume(&w.Income, remaining)
	if remaining > 0 {
		w.Topup -= remaining
	}
}

func consume(bucket *int64, remaining int64) int64 {
	if remaining <= 0 {
		return remaining
	}
	take := remaining
	if *bucket < take {
		take = *bucket
	}
	if take < 0 {
		take = 0
	}
	*bucket -= take
	return remaining - take
}

// rollbackPayer undoes a prior deduction per §4.5.6: Award and Topup credit
// back to the bucket they came from, Withdraw back to income, Refund back
// to topup, and — by design — Spend/Sponsor/Subscribe always credit back to
// topup regardless of which buckets the original waterfall drained, since
// income and award are never reconstituted from a cancel.
func rollbackPayer(w *wallet.Wallet, kind Kind, amount int64) error {
	switch kind {
	case KindAward:
		w.Award += amount
	case KindTopup:
		w.Topup += amount
	case KindWithdraw:
		w.Income += amount
	default: // Refund, Spend, Sponsor, Subscribe
		w.Topup += amount
	}
	return nil
}

// creditPayee applies the payee's side of a commit per §4.5.3: net (already
// amount - sysFee - subShares) lands in the bucket the kind selects; if the
// payee happens to be the system wallet and sysFee > 0, the fee itself is
// additionally folded into its income.
func creditPayee(w *wallet.Wallet, kind Kind, net, sysFee int64) error {
	switch kind {
	case KindAward:
		w.Award += net
	case KindTopup, KindRefund, KindWithdraw:
		w.Topup += net
	default: // Spend, Sponsor, Subscribe
		w.Income += net
	}
	if w.IsSystem() && sysFee > 0 {
		w.Income += sysFee
	}
	return nil
}
