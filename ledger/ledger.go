// Package ledger implements the pool ledger: two reserve balances and a share
// table, mutated only through AddLiquidity, Swap and RemoveLiquidity.
//
// Every mutation runs to completion under a single write lock. It prices the
// request against the reserves as they stand, moves tokens through the
// TokenLedger, and commits the new reserves only when every transfer succeeded.
// A failed transfer is compensated and leaves the pool untouched.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/fixedpoint"
	"github.com/defistate/defistate-amm-go/protocols/amm"
	"github.com/defistate/defistate-amm-go/protocols/amm/calculator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultFeeBps is the swap fee applied when a Config leaves FeeBps at zero
// and does not set ZeroFee.
const DefaultFeeBps = 30

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the construction parameters of a pool ledger.
type Config struct {
	// Address is the pool's own account: the spender of pulled tokens and the
	// holder of the reserves in the token ledger.
	Address common.Address
	Token1  common.Address
	Token2  common.Address

	// FeeBps is the swap fee in basis points. Zero selects DefaultFeeBps unless ZeroFee is set.
	FeeBps  uint16
	ZeroFee bool

	// BootstrapShares, when set, is the number of shares minted by the first
	// deposit. When nil the first depositor receives shares equal to amount1.
	BootstrapShares *big.Int

	Tokens   TokenLedger
	Events   EventSink             // optional
	Logger   Logger                // required
	Registry prometheus.Registerer // required for metrics
	Clock    func() time.Time      // optional, defaults to time.Now
}

func (c *Config) validate() error {
	if c.Token1 == (common.Address{}) || c.Token2 == (common.Address{}) {
		return errors.New("config: Token1 and Token2 are required")
	}
	if c.Token1 == c.Token2 {
		return errors.New("config: Token1 and Token2 must differ")
	}
	if c.Address == (common.Address{}) {
		return errors.New("config: Address is required")
	}
	if c.Address == c.Token1 || c.Address == c.Token2 {
		return errors.New("config: Address must not be one of the pooled tokens")
	}
	if c.FeeBps >= 10000 {
		return fmt.Errorf("config: FeeBps must be below 10000, got %d", c.FeeBps)
	}
	if c.ZeroFee && c.FeeBps != 0 {
		return errors.New("config: ZeroFee conflicts with a non-zero FeeBps")
	}
	if c.BootstrapShares != nil && c.BootstrapShares.Sign() <= 0 {
		return errors.New("config: BootstrapShares must be positive when set")
	}
	if c.Tokens == nil {
		return errors.New("config: Tokens is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	return nil
}

// Ledger is one two-token constant-product pool. It is safe for concurrent use;
// mutations are serialized and quotes observe only committed state.
type Ledger struct {
	mu sync.RWMutex

	address common.Address
	token1  common.Address
	token2  common.Address
	feeBps  uint16

	bootstrapShares *big.Int

	reserve1    *big.Int
	reserve2    *big.Int
	totalShares *big.Int
	shares      map[common.Address]*big.Int
	sequence    uint64

	tokens  TokenLedger
	events  EventSink
	logger  Logger
	metrics *Metrics
	clock   func() time.Time
}

// New constructs an empty pool bound to two tokens.
func New(cfg Config) (*Ledger, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	feeBps := cfg.FeeBps
	if feeBps == 0 && !cfg.ZeroFee {
		feeBps = DefaultFeeBps
	}

	l := &Ledger{
		address:     cfg.Address,
		token1:      cfg.Token1,
		token2:      cfg.Token2,
		feeBps:      feeBps,
		reserve1:    new(big.Int),
		reserve2:    new(big.Int),
		totalShares: new(big.Int),
		shares:      make(map[common.Address]*big.Int),
		tokens:      cfg.Tokens,
		events:      cfg.Events,
		logger:      cfg.Logger,
		metrics:     NewMetrics(cfg.Registry, cfg.Address),
		clock:       cfg.Clock,
	}
	if cfg.BootstrapShares != nil {
		l.bootstrapShares = new(big.Int).Set(cfg.BootstrapShares)
	}
	if l.events == nil {
		l.events = discardSink{}
	}
	if l.clock == nil {
		l.clock = time.Now
	}

	l.metrics.recordState(l.token1, l.token2, l.reserve1, l.reserve2, l.totalShares, 0)
	l.logger.Info("Pool ledger created",
		"pool", l.address.Hex(),
		"token1", l.token1.Hex(),
		"token2", l.token2.Hex(),
		"fee_bps", l.feeBps,
	)
	return l, nil
}

// --- Read accessors ---

func (l *Ledger) Address() common.Address { return l.address }
func (l *Ledger) Token1() common.Address  { return l.token1 }
func (l *Ledger) Token2() common.Address  { return l.token2 }
func (l *Ledger) FeeBps() uint16          { return l.feeBps }

// Reserve1 returns a copy of the pool's token1 balance.
func (l *Ledger) Reserve1() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.reserve1)
}

// Reserve2 returns a copy of the pool's token2 balance.
func (l *Ledger) Reserve2() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.reserve2)
}

// TotalShares returns a copy of the outstanding share total.
func (l *Ledger) TotalShares() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.totalShares)
}

// SharesOf returns the share balance of account, zero when it holds none.
func (l *Ledger) SharesOf(account common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if s, ok := l.shares[account]; ok {
		return new(big.Int).Set(s)
	}
	return new(big.Int)
}

// Sequence returns the number of committed mutations.
func (l *Ledger) Sequence() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sequence
}

// Pool returns a deep-copied snapshot of the pool.
func (l *Ledger) Pool() amm.Pool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.poolView().DeepCopy()
}

// Shares returns every non-zero share balance, ordered by account.
func (l *Ledger) Shares() []amm.Share {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sharesView()
}

// Snapshot returns a consistent copy of the whole pool state.
func (l *Ledger) Snapshot() *engine.State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &engine.State{
		Sequence:  l.sequence,
		Timestamp: uint64(l.clock().Unix()),
		Schema:    amm.Schema,
		Pool:      l.poolView().DeepCopy(),
		Shares:    l.sharesView(),
	}
}

// poolView exposes the live balances without copying; callers must hold the lock
// and must not mutate the result.
func (l *Ledger) poolView() amm.Pool {
	return amm.Pool{
		Address:     l.address,
		Token1:      l.token1,
		Token2:      l.token2,
		Reserve1:    l.reserve1,
		Reserve2:    l.reserve2,
		TotalShares: l.totalShares,
		FeeBps:      l.feeBps,
	}
}

func (l *Ledger) sharesView() []amm.Share {
	out := make([]amm.Share, 0, len(l.shares))
	for account, amount := range l.shares {
		out = append(out, amm.Share{Account: account, Amount: new(big.Int).Set(amount)})
	}
	amm.SortShares(out)
	return out
}

// --- Quotes ---

// QuoteDeposit returns the amount of the other token that must accompany
// amountIn of tokenIn in a deposit, rounded down. It fails with ErrInvalidState
// while the pool is empty: the first deposit sets the ratio itself.
func (l *Ledger) QuoteDeposit(tokenIn common.Address, amountIn *big.Int) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return calculator.GetDepositAmount(amountIn, tokenIn, l.poolView())
}

// QuoteSwap returns the output a swap of amountIn of tokenIn would pay at the
// current reserves, fee included.
func (l *Ledger) QuoteSwap(tokenIn common.Address, amountIn *big.Int) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	amountOut, _, err := calculator.SimulateSwap(amountIn, tokenIn, l.poolView())
	return amountOut, err
}

// QuoteAmountIn returns the least amount of tokenIn a swap must sell to pay
// out at least amountOut of the other token at the current reserves.
func (l *Ledger) QuoteAmountIn(tokenIn common.Address, amountOut *big.Int) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return calculator.GetAmountIn(amountOut, tokenIn, l.poolView())
}

// QuoteSwapToken1 quotes selling token1 for token2.
func (l *Ledger) QuoteSwapToken1(amountIn *big.Int) (*big.Int, error) {
	return l.QuoteSwap(l.token1, amountIn)
}

// QuoteSwapToken2 quotes selling token2 for token1.
func (l *Ledger) QuoteSwapToken2(amountIn *big.Int) (*big.Int, error) {
	return l.QuoteSwap(l.token2, amountIn)
}

// QuoteWithdraw returns the token amounts burning shares would release.
func (l *Ledger) QuoteWithdraw(shares *big.Int) (amount1, amount2 *big.Int, err error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return calculator.GetWithdrawAmounts(shares, l.poolView())
}

// --- Mutations ---

// AddLiquidity deposits amount1 of token1 and amount2 of token2 from provider
// and mints shares to it.
//
// On an empty pool both amounts are accepted as given and fix the initial price.
// Otherwise amount2 must equal QuoteDeposit(token1, amount1) exactly, and the
// shares minted are totalShares * amount1 / reserve1.
func (l *Ledger) AddLiquidity(ctx context.Context, provider common.Address, amount1, amount2 *big.Int) (shares *big.Int, err error) {
	const op = "add_liquidity"
	defer func() { l.metrics.observe(op, err) }()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := requirePositive("amount1", amount1); err != nil {
		return nil, err
	}
	if err := requirePositive("amount2", amount2); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	timer := prometheus.NewTimer(l.metrics.duration.WithLabelValues(op))
	defer timer.ObserveDuration()

	pool := l.poolView()
	bootstrap := pool.IsEmpty()

	if bootstrap {
		if l.bootstrapShares != nil {
			shares = new(big.Int).Set(l.bootstrapShares)
		} else {
			shares = new(big.Int).Set(amount1)
		}
	} else {
		required, err := calculator.GetDepositAmount(amount1, l.token1, pool)
		if err != nil {
			return nil, err
		}
		if required.Cmp(amount2) != 0 {
			return nil, fmt.Errorf("%w: amount2 is %s, pool ratio requires %s", ErrInvalidDeposit, amount2.String(), required.String())
		}
		shares, err = calculator.GetSharesForDeposit(amount1, pool)
		if err != nil {
			return nil, err
		}
		if shares.Sign() == 0 {
			return nil, fmt.Errorf("%w: deposit of %s is too small to mint a share", ErrInvalidAmount, amount1.String())
		}
	}

	newReserve1 := new(big.Int).Add(l.reserve1, amount1)
	newReserve2 := new(big.Int).Add(l.reserve2, amount2)
	newTotalShares := new(big.Int).Add(l.totalShares, shares)
	newProviderShares := new(big.Int).Add(l.sharesOfLocked(provider), shares)
	if err := checkBounds(newReserve1, newReserve2, newTotalShares); err != nil {
		return nil, err
	}
	// the product of the reserves must stay representable for every later quote
	if err := fixedpoint.CheckUint256(new(big.Int).Mul(newReserve1, newReserve2)); err != nil {
		return nil, err
	}

	journal := &transferJournal{tokens: l.tokens}
	if err := journal.pull(ctx, l.token1, provider, amount1); err != nil {
		return nil, journal.rollback(ctx, err)
	}
	if err := journal.pull(ctx, l.token2, provider, amount2); err != nil {
		return nil, l.abort(ctx, journal, op, err)
	}

	// commit
	l.reserve1 = newReserve1
	l.reserve2 = newReserve2
	l.totalShares = newTotalShares
	l.shares[provider] = newProviderShares
	l.sequence++

	l.events.Publish(Record{
		Sequence: l.sequence,
		Liquidity: &LiquidityEvent{
			Kind:           LiquidityAdded,
			Provider:       provider,
			Amount1:        new(big.Int).Set(amount1),
			Amount2:        new(big.Int).Set(amount2),
			Shares:         new(big.Int).Set(shares),
			NewReserve1:    new(big.Int).Set(newReserve1),
			NewReserve2:    new(big.Int).Set(newReserve2),
			NewTotalShares: new(big.Int).Set(newTotalShares),
			Timestamp:      uint64(l.clock().Unix()),
		},
	})
	l.recordState()

	l.logger.Debug("Liquidity added",
		"sequence", l.sequence,
		"provider", provider.Hex(),
		"amount1", amount1.String(),
		"amount2", amount2.String(),
		"shares", shares.String(),
		"bootstrap", bootstrap,
	)
	return new(big.Int).Set(shares), nil
}

// Swap sells amountIn of tokenIn from trader for the other token. The output is
// priced against the reserves as they stood before the swap. minAmountOut, when
// non-nil, is the least output the trader accepts.
func (l *Ledger) Swap(ctx context.Context, trader, tokenIn common.Address, amountIn, minAmountOut *big.Int) (ev SwapEvent, err error) {
	const op = "swap"
	defer func() { l.metrics.observe(op, err) }()
	if err := ctx.Err(); err != nil {
		return SwapEvent{}, err
	}
	if err := requirePositive("amountIn", amountIn); err != nil {
		return SwapEvent{}, err
	}
	tokenOut, ok := amm.Pool{Token1: l.token1, Token2: l.token2}.Other(tokenIn)
	if !ok {
		return SwapEvent{}, fmt.Errorf("%w: %s is not traded by pool %s", ErrTokenMismatch, tokenIn.Hex(), l.address.Hex())
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	timer := prometheus.NewTimer(l.metrics.duration.WithLabelValues(op))
	defer timer.ObserveDuration()

	pool := l.poolView()
	if pool.IsEmpty() || l.reserve1.Sign() == 0 || l.reserve2.Sign() == 0 {
		return SwapEvent{}, fmt.Errorf("%w: pool has no liquidity", ErrInvalidState)
	}

	amountOut, next, err := calculator.SimulateSwap(amountIn, tokenIn, pool)
	if err != nil {
		return SwapEvent{}, err
	}
	if amountOut.Sign() == 0 {
		return SwapEvent{}, fmt.Errorf("%w: swap of %s pays nothing", ErrInvalidAmount, amountIn.String())
	}
	if minAmountOut != nil && amountOut.Cmp(minAmountOut) < 0 {
		return SwapEvent{}, fmt.Errorf("%w: output %s, minimum %s", ErrSlippageExceeded, amountOut.String(), minAmountOut.String())
	}

	journal := &transferJournal{tokens: l.tokens}
	if err := journal.pull(ctx, tokenIn, trader, amountIn); err != nil {
		return SwapEvent{}, journal.rollback(ctx, err)
	}
	if err := journal.push(ctx, tokenOut, trader, amountOut); err != nil {
		return SwapEvent{}, l.abort(ctx, journal, op, err)
	}

	// commit
	l.reserve1 = next.Reserve1
	l.reserve2 = next.Reserve2
	l.sequence++

	ev = SwapEvent{
		Trader:      trader,
		TokenIn:     tokenIn,
		AmountIn:    new(big.Int).Set(amountIn),
		TokenOut:    tokenOut,
		AmountOut:   amountOut,
		NewReserve1: new(big.Int).Set(l.reserve1),
		NewReserve2: new(big.Int).Set(l.reserve2),
		Timestamp:   uint64(l.clock().Unix()),
	}
	published := ev
	published.AmountIn = new(big.Int).Set(ev.AmountIn)
	published.AmountOut = new(big.Int).Set(ev.AmountOut)
	published.NewReserve1 = new(big.Int).Set(ev.NewReserve1)
	published.NewReserve2 = new(big.Int).Set(ev.NewReserve2)
	l.events.Publish(Record{Sequence: l.sequence, Swap: &published})

	l.metrics.swapVolume.WithLabelValues(tokenIn.Hex()).Add(toUnits(amountIn))
	l.recordState()

	l.logger.Debug("Swap executed",
		"sequence", l.sequence,
		"trader", trader.Hex(),
		"token_in", tokenIn.Hex(),
		"amount_in", amountIn.String(),
		"amount_out", amountOut.String(),
		"reserve1", l.reserve1.String(),
		"reserve2", l.reserve2.String(),
	)
	return ev, nil
}

// SwapToken1 sells amountIn of token1 for token2.
func (l *Ledger) SwapToken1(ctx context.Context, trader common.Address, amountIn *big.Int) (SwapEvent, error) {
	return l.Swap(ctx, trader, l.token1, amountIn, nil)
}

// SwapToken2 sells amountIn of token2 for token1.
func (l *Ledger) SwapToken2(ctx context.Context, trader common.Address, amountIn *big.Int) (SwapEvent, error) {
	return l.Swap(ctx, trader, l.token2, amountIn, nil)
}

// RemoveLiquidity burns shares owned by provider and pays out the proportional
// part of both reserves, rounded down. Burning every outstanding share empties
// the pool, after which the next deposit bootstraps it again.
func (l *Ledger) RemoveLiquidity(ctx context.Context, provider common.Address, shares *big.Int) (amount1, amount2 *big.Int, err error) {
	const op = "remove_liquidity"
	defer func() { l.metrics.observe(op, err) }()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if err := requirePositive("shares", shares); err != nil {
		return nil, nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	timer := prometheus.NewTimer(l.metrics.duration.WithLabelValues(op))
	defer timer.ObserveDuration()

	owned := l.sharesOfLocked(provider)
	if owned.Cmp(shares) < 0 {
		return nil, nil, fmt.Errorf("%w: %s holds %s, tried to burn %s", ErrInsufficientShares, provider.Hex(), owned.String(), shares.String())
	}

	amount1, amount2, err = calculator.GetWithdrawAmounts(shares, l.poolView())
	if err != nil {
		return nil, nil, err
	}
	if amount1.Sign() == 0 && amount2.Sign() == 0 {
		return nil, nil, fmt.Errorf("%w: burning %s shares releases nothing", ErrInvalidAmount, shares.String())
	}

	journal := &transferJournal{tokens: l.tokens}
	if amount1.Sign() > 0 {
		if err := journal.push(ctx, l.token1, provider, amount1); err != nil {
			return nil, nil, journal.rollback(ctx, err)
		}
	}
	if amount2.Sign() > 0 {
		if err := journal.push(ctx, l.token2, provider, amount2); err != nil {
			return nil, nil, l.abort(ctx, journal, op, err)
		}
	}

	// commit
	l.reserve1 = new(big.Int).Sub(l.reserve1, amount1)
	l.reserve2 = new(big.Int).Sub(l.reserve2, amount2)
	l.totalShares = new(big.Int).Sub(l.totalShares, shares)
	remaining := new(big.Int).Sub(owned, shares)
	if remaining.Sign() == 0 {
		delete(l.shares, provider)
	} else {
		l.shares[provider] = remaining
	}
	l.sequence++

	l.events.Publish(Record{
		Sequence: l.sequence,
		Liquidity: &LiquidityEvent{
			Kind:           LiquidityRemoved,
			Provider:       provider,
			Amount1:        new(big.Int).Set(amount1),
			Amount2:        new(big.Int).Set(amount2),
			Shares:         new(big.Int).Set(shares),
			NewReserve1:    new(big.Int).Set(l.reserve1),
			NewReserve2:    new(big.Int).Set(l.reserve2),
			NewTotalShares: new(big.Int).Set(l.totalShares),
			Timestamp:      uint64(l.clock().Unix()),
		},
	})
	l.recordState()

	l.logger.Debug("Liquidity removed",
		"sequence", l.sequence,
		"provider", provider.Hex(),
		"shares", shares.String(),
		"amount1", amount1.String(),
		"amount2", amount2.String(),
	)
	return amount1, amount2, nil
}

// abort compensates the transfers already made by a failed operation and logs
// loudly when the compensation itself fails.
func (l *Ledger) abort(ctx context.Context, journal *transferJournal, op string, cause error) error {
	err := journal.rollback(ctx, cause)
	if errors.Is(err, ErrRollbackFailed) {
		l.logger.Error("Failed to roll back partial transfers", "op", op, "pool", l.address.Hex(), "error", err)
	}
	return err
}

func (l *Ledger) sharesOfLocked(account common.Address) *big.Int {
	if s, ok := l.shares[account]; ok {
		return s
	}
	return new(big.Int)
}

func (l *Ledger) recordState() {
	l.metrics.recordState(l.token1, l.token2, l.reserve1, l.reserve2, l.totalShares, len(l.shares))
}

func requirePositive(name string, amount *big.Int) error {
	if amount == nil {
		return fmt.Errorf("%w: %s is nil", ErrInvalidAmount, name)
	}
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: %s is %s", ErrInvalidAmount, name, amount.String())
	}
	return nil
}

func checkBounds(values ...*big.Int) error {
	for _, v := range values {
		if err := fixedpoint.CheckUint256(v); err != nil {
			return err
		}
	}
	return nil
}
