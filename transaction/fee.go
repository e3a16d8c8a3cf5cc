package transaction

// sysWithdrawFeeNum/Den is the fixed system withdraw fee rate r_sys =
// 0.001, expressed as an exact integer fraction so fee computation never
// touches floating point.
const (
	sysWithdrawFeeNum = 1
	sysWithdrawFeeDen = 1000
)

// incomeFeeBracket is one step of the income-fee rate ladder: any payer
// credits count <= upTo (0 meaning "no ceiling", the top bracket) pays
// numerator/denominator of the gross amount.
type incomeFeeBracket struct {
	upTo int64
	num  int64
	den  int64
}

// incomeFeeLadder is the step function in ascending credits order: the more
// credits a payer has, the lower the income-side fee rate.
var incomeFeeLadder = []incomeFeeBracket{
	{upTo: 9_999, num: 30, den: 100},
	{upTo: 99_999, num: 27, den: 100},
	{upTo: 999_999, num: 24, den: 100},
	{upTo: 9_999_999, num: 21, den: 100},
	{upTo: 99_999_999, num: 18, den: 100},
	{upTo: 999_999_999, num: 15, den: 100},
	{upTo: 9_999_999_999, num: 12, den: 100},
	{upTo: 0, num: 9, den: 100}, // upTo == 0 marks the open-ended top bracket
}

// incomeFeeRate returns the (numerator, denominator) income fee rate for a
// payer holding credits.
func incomeFeeRate(credits int64) (num, den int64) {
	for _, b := range incomeFeeLadder {
		if b.upTo == 0 || credits <= b.upTo {
			return b.num, b.den
		}
	}
	last := incomeFeeLadder[len(incomeFeeLadder)-1]
	return last.num, last.den
}

// floorFee returns max(1, floor(amount*num/den)) — every percentage fee in
// this system floors to at least one unit so a fee never silently rounds to
// zero on a small amount.
func floorFee(amount, num, den int64) int64 {
	fee := (amount * num) / den
	if fee < 1 {
		fee = 1
	}
	return fee
}

// FeeAndShares computes (sysFee, subShares) for kind given the gross amount,
// the payer's credits count, and whether a sub-payee was supplied. Kinds
// with no fee model (Award, Topup, Refund, Spend) always return (0, 0).
func FeeAndShares(kind Kind, amount, payerCredits int64, hasSubPayee bool) (sysFee, subShares int64) {
	switch kind {
	case KindWithdraw:
		return floorFee(amount, sysWithdrawFeeNum, sysWithdrawFeeDen), 0

	case KindSponsor, KindSubscribe:
		num, den := incomeFeeRate(payerCredits)
		sysFee = floorFee(amount, num, den)
		if hasSubPayee {
			subShares = (amount - sysFee) / 2
		}
		return sysFee, subShares

	default: // Award, Topup, Refund, Spend
		return 0, 0
	}
}
