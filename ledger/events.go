package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SwapEvent records one executed swap. Reserves are the pool's reserves after the
// swap, always in token1/token2 order regardless of the direction traded.
type SwapEvent struct {
	Trader      common.Address `json:"trader"`
	TokenIn     common.Address `json:"tokenIn"`
	AmountIn    *big.Int       `json:"amountIn"`
	TokenOut    common.Address `json:"tokenOut"`
	AmountOut   *big.Int       `json:"amountOut"`
	NewReserve1 *big.Int       `json:"newReserve1"`
	NewReserve2 *big.Int       `json:"newReserve2"`
	Timestamp   uint64         `json:"timestamp"`
}

type LiquidityKind string

const (
	LiquidityAdded   LiquidityKind = "add"
	LiquidityRemoved LiquidityKind = "remove"
)

// LiquidityEvent records a deposit or a withdrawal.
type LiquidityEvent struct {
	Kind           LiquidityKind  `json:"kind"`
	Provider       common.Address `json:"provider"`
	Amount1        *big.Int       `json:"amount1"`
	Amount2        *big.Int       `json:"amount2"`
	Shares         *big.Int       `json:"shares"`
	NewReserve1    *big.Int       `json:"newReserve1"`
	NewReserve2    *big.Int       `json:"newReserve2"`
	NewTotalShares *big.Int       `json:"newTotalShares"`
	Timestamp      uint64         `json:"timestamp"`
}

// Record is one entry of the pool's append-only event log. Sequence is the
// number of the mutation that produced it and keys the record; exactly one of
// Swap or Liquidity is set.
type Record struct {
	Sequence  uint64          `json:"sequence"`
	Swap      *SwapEvent      `json:"swap,omitempty"`
	Liquidity *LiquidityEvent `json:"liquidity,omitempty"`
}

// EventSink receives every record the ledger emits, in sequence order, while the
// ledger's write lock is held. Implementations must not call back into the ledger.
type EventSink interface {
	Publish(rec Record)
}

type discardSink struct{}

func (discardSink) Publish(Record) {}
