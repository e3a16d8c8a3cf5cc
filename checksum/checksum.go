// Package checksum implements the per-wallet HMAC chain (C2): a keyed tag
// over a wallet's mutable state, computed with HMAC-SHA3-256 and truncated
// to 8 bytes. The key is a 32-byte secret handed to the process fully
// unwrapped at startup (KEK/DEK bootstrap is out of scope here) and held
// read-only for the process lifetime.
package checksum

import (
	"crypto/hmac"
	"crypto/subtle"
	"encoding/binary"

	"github.com/walletbase/ledgercore/id"
	"golang.org/x/crypto/sha3"
)

// TagLen is the number of bytes of the HMAC digest that are retained.
const TagLen = 8

// KeyLen is the required length of the MAC secret.
const KeyLen = 32

// Tag is an HMAC chain value: the first TagLen bytes of
// HMAC-SHA3-256(key, tag(wallet)).
type Tag [TagLen]byte

// Bytes returns t's raw bytes. Satisfies the store row encoding contract
// used across the domain packages.
func (t Tag) Bytes() []byte { return t[:] }

// IsZero reports whether t is the empty tag a freshly created wallet (with
// sequence == 0) carries.
func (t Tag) IsZero() bool {
	var zero Tag
	return t == zero
}

// FromBytes builds a Tag from a byte slice, which must be exactly TagLen
// long or empty (an empty slice yields the zero Tag).
func FromBytes(b []byte) Tag {
	var t Tag
	copy(t[:], b)
	return t
}

// Chain computes HMAC chain tags for wallet mutations using a single
// 32-byte secret held for the process lifetime.
type Chain struct {
	key [KeyLen]byte
}

// NewChain builds a Chain from a 32-byte secret. It panics if key is the
// wrong length — this is a startup-time programming error, not a data-plane
// failure.
func NewChain(key []byte) *Chain {
	if len(key) != KeyLen {
		panic("checksum: key must be 32 bytes")
	}
	c := &Chain{}
	copy(c.key[:], key)
	return c
}

// WalletState is the fixed-order, fixed-encoding view of a wallet's mutable
// state the tag is computed over: (uid, sequence, award, topup, income,
// txn), with 12-byte id encodings and big-endian i64 numeric encodings.
type WalletState struct {
	UID     id.ID
	Seq     int64
	Award   int64
	Topup   int64
	Income  int64
	LastTxn id.ID
}

// Tag computes the keyed tag over w.
func (c *Chain) Tag(w WalletState) Tag {
	mac := hmac.New(sha3.New256, c.key[:])

	mac.Write(w.UID.Bytes())
	writeI64(mac, w.Seq)
	writeI64(mac, w.Award)
	writeI64(mac, w.Topup)
	writeI64(mac, w.Income)
	mac.Write(w.LastTxn.Bytes())

	digest := mac.Sum(nil)
	return FromBytes(digest[:TagLen])
}

// Verify reports whether got matches the tag Chain computes for w, using a
// constant-time comparison so the check doesn't leak timing information
// about how many leading bytes matched.
func (c *Chain) Verify(w WalletState, got Tag) bool {
	want := c.Tag(w)
	return subtle.ConstantTimeCompare(want[:], got[:]) == 1
}

type byteWriter interface {
	Write(p []byte) (int, error)
}

func writeI64(w byteWriter, v int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	w.Write(buf[:])
}
