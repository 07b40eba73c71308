package calculator

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/defistate/defistate-amm-go/fixedpoint"
	"github.com/defistate/defistate-amm-go/protocols/amm"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// basisPointDivisor is a constant representing 100% in basis points (10000).
	basisPointDivisor = big.NewInt(10000)

	hundred = big.NewInt(100)

	bigIntPool = sync.Pool{
		New: func() any {
			return new(big.Int)
		},
	}

	// ErrInvalidAmount is returned when an input amount is zero or negative.
	ErrInvalidAmount = errors.New("amount must be greater than zero")
	// ErrNilAmount is returned when a nil pointer is passed for an amount.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrTokenMismatch is returned when the specified token is not one of the pool's tokens.
	ErrTokenMismatch = errors.New("token mismatch")
	// ErrInvalidState is returned when the pool cannot price the request, e.g. zero reserves.
	ErrInvalidState = errors.New("invalid pool state")
	// ErrInsufficientLiquidity is returned when an output would reach or exceed the available reserve.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for swap")
	// ErrOverflow is returned when an intermediate product leaves the uint256 range.
	ErrOverflow = fixedpoint.ErrOverflow
)

// getBig grabs a *big.Int from the pool and zeros it.
func getBig() *big.Int {
	b := bigIntPool.Get().(*big.Int)
	b.SetUint64(0)
	return b
}

// putBig returns a *big.Int to the pool.
func putBig(b *big.Int) {
	if b != nil {
		bigIntPool.Put(b)
	}
}

// Calculator holds reusable big.Int objects to avoid memory allocations during calculations.
// Instances of this struct are NOT safe for concurrent use by themselves.
// They are intended to be managed by the sync.Pool below.
type Calculator struct {
	// Reusable objects for GetAmountOut
	feeMultiplier   *big.Int
	amountInWithFee *big.Int
	numerator       *big.Int
	denominator     *big.Int

	// Reusable objects for GetAmountIn
	numeratorIn   *big.Int
	denominatorIn *big.Int
}

// calculatorPool manages a pool of Calculator objects, allowing for safe concurrent use
// and drastically reducing memory allocations.
var calculatorPool = sync.Pool{
	New: func() any {
		return &Calculator{
			feeMultiplier:   new(big.Int),
			amountInWithFee: new(big.Int),
			numerator:       new(big.Int),
			denominator:     new(big.Int),
			numeratorIn:     new(big.Int),
			denominatorIn:   new(big.Int),
		}
	},
}

// GetAmountOut calculates the output amount for a swap of amountIn of tokenIn,
// with the pool fee taken off the input.
func GetAmountOut(amountIn *big.Int, tokenIn common.Address, pool amm.Pool) (*big.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountOut(amountIn, tokenIn, pool)
}

// GetAmountIn calculates the input of tokenIn required to receive amountOut of the other token.
func GetAmountIn(amountOut *big.Int, tokenIn common.Address, pool amm.Pool) (*big.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountIn(amountOut, tokenIn, pool)
}

// SimulateSwap calculates the result of a swap and the pool as it would stand afterwards.
// The returned pool owns its memory.
func SimulateSwap(amountIn *big.Int, tokenIn common.Address, pool amm.Pool) (*big.Int, amm.Pool, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.simulateSwap(amountIn, tokenIn, pool)
}

func validateAmount(amount *big.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidAmount, amount.String())
	}
	return nil
}

func (c *Calculator) loadFee(pool amm.Pool) error {
	if int64(pool.FeeBps) >= basisPointDivisor.Int64() {
		return fmt.Errorf("%w: fee %d bps leaves nothing to trade", ErrInvalidState, pool.FeeBps)
	}
	c.feeMultiplier.SetInt64(basisPointDivisor.Int64() - int64(pool.FeeBps))
	return nil
}

// getAmountOut is the internal calculation method that uses the pre-allocated fields.
//
//	amountOut = reserveOut * amountIn*(10000-fee) / (reserveIn*10000 + amountIn*(10000-fee))
func (c *Calculator) getAmountOut(amountIn *big.Int, tokenIn common.Address, pool amm.Pool) (*big.Int, error) {
	if err := validateAmount(amountIn); err != nil {
		return nil, err
	}

	reserveIn, reserveOut, err := GetReserves(tokenIn, pool)
	if err != nil {
		return nil, err
	}

	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, fmt.Errorf("%w: pool has zero reserves", ErrInvalidState)
	}

	if err := c.loadFee(pool); err != nil {
		return nil, err
	}
	c.amountInWithFee.Mul(amountIn, c.feeMultiplier)
	c.numerator.Mul(reserveOut, c.amountInWithFee)
	if err := fixedpoint.CheckUint256(c.numerator); err != nil {
		return nil, err
	}
	c.denominator.Mul(reserveIn, basisPointDivisor)
	c.denominator.Add(c.denominator, c.amountInWithFee)

	if c.denominator.Sign() == 0 {
		return nil, fmt.Errorf("%w: pool denominator is zero", ErrInvalidState)
	}

	return new(big.Int).Quo(c.numerator, c.denominator), nil
}

// getAmountIn is the internal calculation method for finding the required input for a desired output.
func (c *Calculator) getAmountIn(amountOut *big.Int, tokenIn common.Address, pool amm.Pool) (*big.Int, error) {
	if err := validateAmount(amountOut); err != nil {
		return nil, err
	}

	reserveIn, reserveOut, err := GetReserves(tokenIn, pool)
	if err != nil {
		return nil, err
	}

	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, fmt.Errorf("%w: pool has zero reserves", ErrInvalidState)
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, fmt.Errorf("%w: requested amountOut (%s) is >= reserveOut (%s)", ErrInsufficientLiquidity, amountOut.String(), reserveOut.String())
	}

	if err := c.loadFee(pool); err != nil {
		return nil, err
	}
	c.numeratorIn.Mul(reserveIn, amountOut)
	c.numeratorIn.Mul(c.numeratorIn, basisPointDivisor)
	if err := fixedpoint.CheckUint256(c.numeratorIn); err != nil {
		return nil, err
	}

	c.denominatorIn.Sub(reserveOut, amountOut)
	c.denominatorIn.Mul(c.denominatorIn, c.feeMultiplier)

	// amountIn = (reserveIn * amountOut * 10000) / ((reserveOut - amountOut) * (10000 - fee)) + 1
	amountIn := new(big.Int).Quo(c.numeratorIn, c.denominatorIn)
	return amountIn.Add(amountIn, big.NewInt(1)), nil
}

func (c *Calculator) simulateSwap(amountIn *big.Int, tokenIn common.Address, pool amm.Pool) (*big.Int, amm.Pool, error) {
	amountOut, err := c.getAmountOut(amountIn, tokenIn, pool)
	if err != nil {
		return nil, amm.Pool{}, err
	}

	_, reserveOut, _ := GetReserves(tokenIn, pool)
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, amm.Pool{}, fmt.Errorf("%w: amountOut (%s) would drain reserveOut (%s)", ErrInsufficientLiquidity, amountOut.String(), reserveOut.String())
	}

	newPoolState := pool.DeepCopy()
	if tokenIn == pool.Token1 {
		newPoolState.Reserve1.Add(newPoolState.Reserve1, amountIn)
		newPoolState.Reserve2.Sub(newPoolState.Reserve2, amountOut)
	} else {
		newPoolState.Reserve2.Add(newPoolState.Reserve2, amountIn)
		newPoolState.Reserve1.Sub(newPoolState.Reserve1, amountOut)
	}
	if err := fixedpoint.CheckUint256(newPoolState.Reserve1); err != nil {
		return nil, amm.Pool{}, err
	}
	if err := fixedpoint.CheckUint256(newPoolState.Reserve2); err != nil {
		return nil, amm.Pool{}, err
	}

	return amountOut, newPoolState, nil
}

// GetReserves returns (reserveIn, reserveOut) for a swap that sells tokenIn.
func GetReserves(tokenIn common.Address, pool amm.Pool) (reserveIn, reserveOut *big.Int, err error) {
	switch tokenIn {
	case pool.Token1:
		return orZero(pool.Reserve1), orZero(pool.Reserve2), nil
	case pool.Token2:
		return orZero(pool.Reserve2), orZero(pool.Reserve1), nil
	}
	return nil, nil, fmt.Errorf("%w: pool %s does not contain token %s", ErrTokenMismatch, pool.Address.Hex(), tokenIn.Hex())
}

// GetDepositAmount returns the amount of the other token that must accompany
// amountIn of tokenIn so the deposit keeps the current reserve ratio:
//
//	amountOther = amountIn * reserveOther / reserveIn
//
// An empty pool has no ratio to quote against and fails with ErrInvalidState.
func GetDepositAmount(amountIn *big.Int, tokenIn common.Address, pool amm.Pool) (*big.Int, error) {
	if err := validateAmount(amountIn); err != nil {
		return nil, err
	}
	reserveIn, reserveOther, err := GetReserves(tokenIn, pool)
	if err != nil {
		return nil, err
	}
	if pool.IsEmpty() {
		return nil, fmt.Errorf("%w: pool has no liquidity to quote a deposit against", ErrInvalidState)
	}
	if reserveIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: reserve of %s is zero", ErrInvalidState, tokenIn.Hex())
	}
	return fixedpoint.MulDiv(amountIn, reserveOther, reserveIn)
}

// GetSharesForDeposit returns the shares minted for depositing amount1 of token1
// into a non-empty pool: totalShares * amount1 / reserve1.
func GetSharesForDeposit(amount1 *big.Int, pool amm.Pool) (*big.Int, error) {
	if err := validateAmount(amount1); err != nil {
		return nil, err
	}
	if pool.IsEmpty() || orZero(pool.Reserve1).Sign() == 0 {
		return nil, fmt.Errorf("%w: pool has no liquidity", ErrInvalidState)
	}
	return fixedpoint.MulDiv(pool.TotalShares, amount1, pool.Reserve1)
}

// GetWithdrawAmounts returns the token amounts released by burning shares:
//
//	amountX = shares * reserveX / totalShares
func GetWithdrawAmounts(shares *big.Int, pool amm.Pool) (amount1, amount2 *big.Int, err error) {
	if err := validateAmount(shares); err != nil {
		return nil, nil, err
	}
	if pool.IsEmpty() {
		return nil, nil, fmt.Errorf("%w: pool has no liquidity", ErrInvalidState)
	}
	if shares.Cmp(pool.TotalShares) > 0 {
		return nil, nil, fmt.Errorf("%w: shares (%s) exceed total shares (%s)", ErrInvalidAmount, shares.String(), pool.TotalShares.String())
	}
	amount1, err = fixedpoint.MulDiv(shares, orZero(pool.Reserve1), pool.TotalShares)
	if err != nil {
		return nil, nil, err
	}
	amount2, err = fixedpoint.MulDiv(shares, orZero(pool.Reserve2), pool.TotalShares)
	if err != nil {
		return nil, nil, err
	}
	return amount1, amount2, nil
}

// GetExchangeRate returns how much of the other token one whole unit of tokenIn
// buys, scaled by 10^decimalsIn, sampled with a trade of 1% of reserveIn so the
// figure includes the fee and the slippage a real trade would see.
func GetExchangeRate(tokenIn common.Address, decimalsIn uint8, pool amm.Pool) (*big.Int, error) {
	amountIn := getBig()
	temp := getBig()

	defer func() {
		putBig(amountIn)
		putBig(temp)
	}()

	reserveIn, _, err := GetReserves(tokenIn, pool)
	if err != nil {
		return nil, err
	}
	if reserveIn.Sign() == 0 {
		return nil, fmt.Errorf("%w: zero reserve for %s", ErrInvalidState, tokenIn.Hex())
	}
	amountIn.Quo(reserveIn, hundred)
	if amountIn.Sign() == 0 {
		return nil, fmt.Errorf("%w: reserve too small to sample a rate", ErrInvalidState)
	}

	amountOut, err := GetAmountOut(amountIn, tokenIn, pool)
	if err != nil {
		return nil, err
	}

	temp.Mul(fixedpoint.GetScaledDecimal(decimalsIn), amountOut)

	// final result must NOT come from pool
	return new(big.Int).Quo(temp, amountIn), nil
}

// SpotPrice returns reserveOut/reserveIn scaled by 10^18, the marginal price of
// tokenIn before fees and slippage.
func SpotPrice(tokenIn common.Address, pool amm.Pool) (*big.Int, error) {
	reserveIn, reserveOut, err := GetReserves(tokenIn, pool)
	if err != nil {
		return nil, err
	}
	if reserveIn.Sign() == 0 {
		return nil, fmt.Errorf("%w: zero reserve for %s", ErrInvalidState, tokenIn.Hex())
	}
	return fixedpoint.MulDiv(reserveOut, fixedpoint.Scale(), reserveIn)
}

func orZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}
