package amm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Schema is the decode contract for the pool view broadcast to subscribers.
const Schema = "defistate/amm/PoolView@v1"

// Pool is a read-only snapshot of a two-token constant-product pool.
type Pool struct {
	Address     common.Address `json:"address"`
	Token1      common.Address `json:"token1"`
	Token2      common.Address `json:"token2"`
	Reserve1    *big.Int       `json:"reserve1"`
	Reserve2    *big.Int       `json:"reserve2"`
	TotalShares *big.Int       `json:"totalShares"`
	FeeBps      uint16         `json:"feeBps"` // i.e 30 for 0.3%
}

// Share is one provider's ownership balance.
type Share struct {
	Account common.Address `json:"account"`
	Amount  *big.Int       `json:"amount"`
}

// IsEmpty reports whether no liquidity has been provided yet.
func (p Pool) IsEmpty() bool {
	return p.TotalShares == nil || p.TotalShares.Sign() == 0
}

// Contains reports whether token is one of the pool's two tokens.
func (p Pool) Contains(token common.Address) bool {
	return token == p.Token1 || token == p.Token2
}

// Other returns the counterpart of token in the pair.
func (p Pool) Other(token common.Address) (common.Address, bool) {
	switch token {
	case p.Token1:
		return p.Token2, true
	case p.Token2:
		return p.Token1, true
	}
	return common.Address{}, false
}

// DeepCopy creates a new Pool with its own memory for pointer types like *big.Int.
// This is essential to prevent the new state from sharing memory with the old state.
func (p Pool) DeepCopy() Pool {
	newPool := p
	newPool.Reserve1 = copyBig(p.Reserve1)
	newPool.Reserve2 = copyBig(p.Reserve2)
	newPool.TotalShares = copyBig(p.TotalShares)
	return newPool
}

// PoolChanged reports whether any mutable field differs between two snapshots.
// The Cmp method on big.Int returns 0 if the numbers are equal.
func PoolChanged(old, new Pool) bool {
	return cmpBig(old.Reserve1, new.Reserve1) != 0 ||
		cmpBig(old.Reserve2, new.Reserve2) != 0 ||
		cmpBig(old.TotalShares, new.TotalShares) != 0 ||
		old.FeeBps != new.FeeBps
}

func copyBig(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}

func cmpBig(a, b *big.Int) int {
	if a == nil {
		a = new(big.Int)
	}
	if b == nil {
		b = new(big.Int)
	}
	return a.Cmp(b)
}
