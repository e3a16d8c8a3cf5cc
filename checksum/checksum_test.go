package checksum_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/walletbase/ledgercore/checksum"
	"github.com/walletbase/ledgercore/id"
)

func testKey() []byte {
	key := make([]byte, checksum.KeyLen)
	for i := range key {
		key[i] = byte(i + 1)
	}
	return key
}

func TestTagIsDeterministic(t *testing.T) {
	chain := checksum.NewChain(testKey())
	state := checksum.WalletState{UID: id.New(), Seq: 3, Award: 10, Topup: 20, Income: 30, LastTxn: id.New()}

	require.Equal(t, chain.Tag(state), chain.Tag(state))
}

func TestTagChangesWithAnyField(t *testing.T) {
	chain := checksum.NewChain(testKey())
	base := checksum.WalletState{UID: id.New(), Seq: 1, Award: 5, Topup: 5, Income: 5, LastTxn: id.New()}
	want := chain.Tag(base)

	mutated := base
	mutated.Award++
	require.NotEqual(t, want, chain.Tag(mutated))

	mutated = base
	mutated.Seq++
	require.NotEqual(t, want, chain.Tag(mutated))

	mutated = base
	mutated.Topup++
	require.NotEqual(t, want, chain.Tag(mutated))

	mutated = base
	mutated.Income++
	require.NotEqual(t, want, chain.Tag(mutated))

	mutated = base
	mutated.UID = id.New()
	require.NotEqual(t, want, chain.Tag(mutated))

	mutated = base
	mutated.LastTxn = id.New()
	require.NotEqual(t, want, chain.Tag(mutated))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	state := checksum.WalletState{UID: id.New(), Seq: 1, Award: 1, Topup: 1, Income: 1, LastTxn: id.New()}
	a := checksum.NewChain(testKey())

	other := testKey()
	other[0] ^= 0xff
	b := checksum.NewChain(other)

	tag := a.Tag(state)
	require.True(t, a.Verify(state, tag))
	require.False(t, b.Verify(state, tag))
}

func TestNewChainPanicsOnBadKeyLength(t *testing.T) {
	require.Panics(t, func() {
		checksum.NewChain([]byte{1, 2, 3})
	})
}
