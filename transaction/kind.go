// Package transaction implements the transaction core (C5): the kind
// matrix, fee and revenue-share math, and the prepare/cancel/commit state
// machine that moves balance between up to three wallets. It is grounded on
// the same CAS-status-transition shape the Lightning channel state machine
// uses (read, verify, mutate in memory, conditional write, retry on lost
// race), generalized from "one channel, one state byte" to "one transaction
// row plus up to three independently CAS-guarded wallets."
package transaction

import (
	"github.com/walletbase/ledgercore/id"
	"github.com/walletbase/ledgercore/ledgererr"
)

// Kind classifies a transaction and determines who may be payer, payee, and
// sub-payee, and how its fee is computed.
type Kind string

const (
	KindAward     Kind = "award"
	KindTopup     Kind = "topup"
	KindRefund    Kind = "refund"
	KindWithdraw  Kind = "withdraw"
	KindSpend     Kind = "spend"
	KindSponsor   Kind = "sponsor"
	KindSubscribe Kind = "subscribe"
)

// valid reports whether k is one of the seven known kinds.
func (k Kind) valid() bool {
	switch k {
	case KindAward, KindTopup, KindRefund, KindWithdraw, KindSpend, KindSponsor, KindSubscribe:
		return true
	}
	return false
}

// systemPayer reports whether k requires the system wallet as payer.
func (k Kind) systemPayer() bool {
	return k == KindAward || k == KindTopup
}

// systemPayee reports whether k requires the system wallet as payee.
func (k Kind) systemPayee() bool {
	return k == KindRefund || k == KindWithdraw || k == KindSpend
}

// allowsSubPayee reports whether k may carry an optional sub-payee.
func (k Kind) allowsSubPayee() bool {
	return k == KindSponsor || k == KindSubscribe
}

// CheckPayer validates that uid may act as payer for k. System-payer kinds
// (Award, Topup) require uid == SYS_ID; every other kind requires a user
// wallet.
func (k Kind) CheckPayer(uid id.ID) error {
	if !k.valid() {
		return ledgererr.New(ledgererr.InvalidArgument, "unknown transaction kind %q", k)
	}
	if k.systemPayer() && !id.IsSys(uid) {
		return ledgererr.New(ledgererr.InvalidArgument, "kind %s requires the system wallet as payer", k)
	}
	if !k.systemPayer() && id.IsSys(uid) {
		return ledgererr.New(ledgererr.InvalidArgument, "kind %s forbids the system wallet as payer", k)
	}
	return nil
}

// CheckPayee validates that payee may act as payee for k.
func (k Kind) CheckPayee(payee id.ID) error {
	if k.systemPayee() && !id.IsSys(payee) {
		return ledgererr.New(ledgererr.InvalidArgument, "kind %s requires the system wallet as payee", k)
	}
	if !k.systemPayee() && id.IsSys(payee) {
		return ledgererr.New(ledgererr.InvalidArgument, "kind %s forbids the system wallet as payee", k)
	}
	return nil
}

// CheckSubPayee validates a (possibly absent) sub-payee against k, the
// payer, and the payee. subPayee == nil means no sub-payee was supplied.
func (k Kind) CheckSubPayee(subPayee *id.ID, payer, payee id.ID) error {
	if subPayee == nil {
		return nil
	}
	if !k.allowsSubPayee() {
		return ledgererr.New(ledgererr.InvalidArgument, "kind %s does not permit a sub-payee", k)
	}
	s := *subPayee
	if id.IsSys(s) || s == payer || s == payee {
		return ledgererr.New(ledgererr.InvalidArgument, "sub-payee %s must differ from the system wallet, payer, and payee", s)
	}
	return nil
}
