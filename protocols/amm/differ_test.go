package amm

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	carol = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func TestDiffer(t *testing.T) {
	old := []Share{
		{Account: alice, Amount: big.NewInt(100)},
		{Account: bob, Amount: big.NewInt(50)},
	}

	t.Run("should detect no changes", func(t *testing.T) {
		same := []Share{
			{Account: bob, Amount: big.NewInt(50)},
			{Account: alice, Amount: big.NewInt(100)},
		}
		diff := Differ(old, same)
		assert.True(t, diff.IsEmpty())
	})

	t.Run("should detect additions, updates and deletions", func(t *testing.T) {
		newState := []Share{
			{Account: alice, Amount: big.NewInt(150)},
			{Account: carol, Amount: big.NewInt(10)},
		}
		diff := Differ(old, newState)

		require.Len(t, diff.Additions, 1)
		assert.Equal(t, carol, diff.Additions[0].Account)
		require.Len(t, diff.Updates, 1)
		assert.Equal(t, alice, diff.Updates[0].Account)
		assert.Equal(t, int64(150), diff.Updates[0].Amount.Int64())
		assert.Equal(t, []common.Address{bob}, diff.Deletions)
	})

	t.Run("should produce sorted output", func(t *testing.T) {
		diff := Differ(nil, []Share{
			{Account: carol, Amount: big.NewInt(1)},
			{Account: alice, Amount: big.NewInt(1)},
			{Account: bob, Amount: big.NewInt(1)},
		})
		require.Len(t, diff.Additions, 3)
		assert.Equal(t, alice, diff.Additions[0].Account)
		assert.Equal(t, bob, diff.Additions[1].Account)
		assert.Equal(t, carol, diff.Additions[2].Account)
	})
}

func TestPoolChanged(t *testing.T) {
	base := Pool{Reserve1: big.NewInt(10), Reserve2: big.NewInt(20), TotalShares: big.NewInt(5), FeeBps: 30}

	assert.False(t, PoolChanged(base, base.DeepCopy()))

	moved := base.DeepCopy()
	moved.Reserve2.SetInt64(19)
	assert.True(t, PoolChanged(base, moved))
	assert.Equal(t, int64(20), base.Reserve2.Int64(), "DeepCopy must not share memory")

	assert.False(t, PoolChanged(Pool{}, Pool{Reserve1: big.NewInt(0)}), "nil and zero compare equal")
}

func TestPoolHelpers(t *testing.T) {
	p := Pool{Token1: alice, Token2: bob}

	assert.True(t, p.IsEmpty())
	assert.True(t, p.Contains(alice))
	assert.False(t, p.Contains(carol))

	other, ok := p.Other(alice)
	assert.True(t, ok)
	assert.Equal(t, bob, other)

	_, ok = p.Other(carol)
	assert.False(t, ok)
}
