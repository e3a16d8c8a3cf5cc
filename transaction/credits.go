package transaction

import "github.com/walletbase/ledgercore/credit"

// Credits derives the C4 credit-ledger rows a successful commit of t should
// append. It is pure and store-free: the caller drives the actual Ledger.Save
// calls, keeping credit availability decoupled from the wallet-balance
// commit itself.
func Credits(t *Transaction) []credit.Credit {
	var out []credit.Credit

	switch t.Kind {
	case KindSpend, KindSponsor, KindSubscribe:
		out = append(out, credit.Credit{
			UID: t.UID, Txn: t.ID, Kind: credit.KindPayout,
			Amount: t.Amount, Description: t.Description,
		})
	}

	switch t.Kind {
	case KindSponsor, KindSubscribe:
		net := t.Amount - t.SysFee - t.SubShares
		out = append(out, credit.Credit{
			UID: t.Payee, Txn: t.ID, Kind: credit.KindIncome,
			Amount: net, Description: t.Description,
		})
		if t.SubShares > 0 && t.SubPayee != nil {
			out = append(out, credit.Credit{
				UID: *t.SubPayee, Txn: t.ID, Kind: credit.KindIncome,
				Amount: t.SubShares, Description: t.Description,
			})
		}
	}

	return out
}
