// Package id defines the 12-byte sortable identifiers used throughout the
// ledger: wallet uids, transaction ids, credit/charge row keys.
package id

import (
	"github.com/rs/xid"
)

// ID is a 12-byte, approximately time-sortable identifier. Lexicographic
// byte order is ascending-time order, which is what the Store adapter's
// range scans rely on for newest-first pagination (see store.Range).
type ID = xid.ID

// Sys is the reserved all-zero id denoting the system wallet: it owns the
// process-wide award/top-up float and collects transaction fees.
var Sys ID

// Max is the all-0xFF sentinel used to seed an unbounded "from the newest
// row" range scan, per the listing contract.
var Max ID

func init() {
	for i := range Max {
		Max[i] = 0xff
	}
}

// New returns a fresh, globally unique, monotone id.
func New() ID {
	return xid.New()
}

// IsSys reports whether id names the system wallet.
func IsSys(v ID) bool {
	return v == Sys
}

// FromString parses the canonical base32 text form of an id.
func FromString(s string) (ID, error) {
	return xid.FromString(s)
}
