package server

import (
	"context"
	"errors"
	"math/big"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/eventlog"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var errMissingAmount = errors.New("amount is required")

// PoolView is the amm_reserves result.
type PoolView struct {
	Address     common.Address `json:"address"`
	Token1      common.Address `json:"token1"`
	Token2      common.Address `json:"token2"`
	Reserve1    *hexutil.Big   `json:"reserve1"`
	Reserve2    *hexutil.Big   `json:"reserve2"`
	TotalShares *hexutil.Big   `json:"totalShares"`
	FeeBps      hexutil.Uint64 `json:"feeBps"`
	Sequence    hexutil.Uint64 `json:"sequence"`
}

// WithdrawResult carries the token amounts released by burning shares.
type WithdrawResult struct {
	Amount1 *hexutil.Big `json:"amount1"`
	Amount2 *hexutil.Big `json:"amount2"`
}

// PoolAPI serves read-only pool methods under the amm namespace.
type PoolAPI struct {
	ledger *ledger.Ledger
	events *eventlog.Log
}

// Reserves returns the pool's balances and share total from one snapshot.
func (api *PoolAPI) Reserves() *PoolView {
	s := api.ledger.Snapshot()
	return &PoolView{
		Address:     s.Pool.Address,
		Token1:      s.Pool.Token1,
		Token2:      s.Pool.Token2,
		Reserve1:    (*hexutil.Big)(s.Pool.Reserve1),
		Reserve2:    (*hexutil.Big)(s.Pool.Reserve2),
		TotalShares: (*hexutil.Big)(s.Pool.TotalShares),
		FeeBps:      hexutil.Uint64(s.Pool.FeeBps),
		Sequence:    hexutil.Uint64(s.Sequence),
	}
}

func (api *PoolAPI) TotalShares() *hexutil.Big {
	return (*hexutil.Big)(api.ledger.TotalShares())
}

func (api *PoolAPI) SharesOf(account common.Address) *hexutil.Big {
	return (*hexutil.Big)(api.ledger.SharesOf(account))
}

// State returns the full pool snapshot, the same payload as the stream's "full" event.
func (api *PoolAPI) State() *engine.State {
	return api.ledger.Snapshot()
}

func (api *PoolAPI) QuoteSwap(tokenIn common.Address, amountIn *hexutil.Big) (*hexutil.Big, error) {
	if amountIn == nil {
		return nil, errMissingAmount
	}
	out, err := api.ledger.QuoteSwap(tokenIn, amountIn.ToInt())
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(out), nil
}

// QuoteAmountIn returns what must be sold of tokenIn to receive amountOut.
func (api *PoolAPI) QuoteAmountIn(tokenIn common.Address, amountOut *hexutil.Big) (*hexutil.Big, error) {
	if amountOut == nil {
		return nil, errMissingAmount
	}
	in, err := api.ledger.QuoteAmountIn(tokenIn, amountOut.ToInt())
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(in), nil
}

func (api *PoolAPI) QuoteDeposit(tokenIn common.Address, amountIn *hexutil.Big) (*hexutil.Big, error) {
	if amountIn == nil {
		return nil, errMissingAmount
	}
	other, err := api.ledger.QuoteDeposit(tokenIn, amountIn.ToInt())
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(other), nil
}

func (api *PoolAPI) QuoteWithdraw(shares *hexutil.Big) (*WithdrawResult, error) {
	if shares == nil {
		return nil, errMissingAmount
	}
	a1, a2, err := api.ledger.QuoteWithdraw(shares.ToInt())
	if err != nil {
		return nil, err
	}
	return &WithdrawResult{Amount1: (*hexutil.Big)(a1), Amount2: (*hexutil.Big)(a2)}, nil
}

// Events returns the event log from sequence from onward.
func (api *PoolAPI) Events(from hexutil.Uint64) []ledger.Record {
	return api.events.Records(uint64(from))
}

// DevPoolAPI serves mutating pool methods for unlocked dev accounts. The
// caller names the account it acts for; there is no signature check.
type DevPoolAPI struct {
	ledger *ledger.Ledger
}

func (api *DevPoolAPI) AddLiquidity(ctx context.Context, provider common.Address, amount1, amount2 *hexutil.Big) (*hexutil.Big, error) {
	if amount1 == nil || amount2 == nil {
		return nil, errMissingAmount
	}
	shares, err := api.ledger.AddLiquidity(ctx, provider, amount1.ToInt(), amount2.ToInt())
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(shares), nil
}

// Swap sells amountIn of tokenIn. minAmountOut may be omitted.
func (api *DevPoolAPI) Swap(ctx context.Context, trader, tokenIn common.Address, amountIn *hexutil.Big, minAmountOut *hexutil.Big) (*ledger.SwapEvent, error) {
	if amountIn == nil {
		return nil, errMissingAmount
	}
	var minOut *big.Int
	if minAmountOut != nil {
		minOut = minAmountOut.ToInt()
	}
	ev, err := api.ledger.Swap(ctx, trader, tokenIn, amountIn.ToInt(), minOut)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (api *DevPoolAPI) RemoveLiquidity(ctx context.Context, provider common.Address, shares *hexutil.Big) (*WithdrawResult, error) {
	if shares == nil {
		return nil, errMissingAmount
	}
	a1, a2, err := api.ledger.RemoveLiquidity(ctx, provider, shares.ToInt())
	if err != nil {
		return nil, err
	}
	return &WithdrawResult{Amount1: (*hexutil.Big)(a1), Amount2: (*hexutil.Big)(a2)}, nil
}

// TokenAPI serves read-only token methods under the token namespace.
type TokenAPI struct {
	bank *token.Bank
}

func (api *TokenAPI) List() []token.Metadata {
	tokens := api.bank.Tokens()
	out := make([]token.Metadata, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t.Metadata())
	}
	return out
}

func (api *TokenAPI) BalanceOf(tokenAddr, account common.Address) (*hexutil.Big, error) {
	t, err := api.bank.Token(tokenAddr)
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(t.BalanceOf(account)), nil
}

func (api *TokenAPI) Allowance(tokenAddr, owner, spender common.Address) (*hexutil.Big, error) {
	t, err := api.bank.Token(tokenAddr)
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(t.Allowance(owner, spender)), nil
}

func (api *TokenAPI) TotalSupply(tokenAddr common.Address) (*hexutil.Big, error) {
	t, err := api.bank.Token(tokenAddr)
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(t.TotalSupply()), nil
}

// Holders returns every account with a non-zero balance of the token.
func (api *TokenAPI) Holders(tokenAddr common.Address) (map[common.Address]*hexutil.Big, error) {
	t, err := api.bank.Token(tokenAddr)
	if err != nil {
		return nil, err
	}
	holders := t.Holders()
	out := make(map[common.Address]*hexutil.Big, len(holders))
	for account, bal := range holders {
		out[account] = (*hexutil.Big)(bal)
	}
	return out, nil
}

// DevTokenAPI serves mutating token methods for unlocked dev accounts.
type DevTokenAPI struct {
	bank *token.Bank
}

func (api *DevTokenAPI) Approve(tokenAddr, owner, spender common.Address, amount *hexutil.Big) (bool, error) {
	if amount == nil {
		return false, errMissingAmount
	}
	t, err := api.bank.Token(tokenAddr)
	if err != nil {
		return false, err
	}
	if err := t.Approve(owner, spender, amount.ToInt()); err != nil {
		return false, err
	}
	return true, nil
}

func (api *DevTokenAPI) Transfer(tokenAddr, from, to common.Address, amount *hexutil.Big) (bool, error) {
	if amount == nil {
		return false, errMissingAmount
	}
	t, err := api.bank.Token(tokenAddr)
	if err != nil {
		return false, err
	}
	if err := t.Transfer(from, to, amount.ToInt()); err != nil {
		return false, err
	}
	return true, nil
}
