package ledger

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// amountGen draws a positive amount between 1 wei and 10^6 whole tokens.
func amountGen() *rapid.Generator[*big.Int] {
	return rapid.Custom(func(t *rapid.T) *big.Int {
		whole := rapid.Int64Range(0, 1_000_000).Draw(t, "whole")
		frac := rapid.Int64Range(0, 999_999_999_999_999_999).Draw(t, "frac")
		v := new(big.Int).Mul(big.NewInt(whole), tokens(1))
		v.Add(v, big.NewInt(frac))
		if v.Sign() == 0 {
			v.SetInt64(1)
		}
		return v
	})
}

func newRapidLedger(t *rapid.T, fee uint16) (*Ledger, *fakeTokens) {
	ft := newFakeTokens(poolAddr)
	huge := bi("1000000000000000000000000000000000") // 10^15 tokens
	for _, account := range []common.Address{deployer, investor, trader} {
		ft.mint(token1, account, huge)
		ft.mint(token2, account, huge)
	}
	l, err := New(Config{
		Address:  poolAddr,
		Token1:   token1,
		Token2:   token2,
		FeeBps:   fee,
		ZeroFee:  fee == 0,
		Tokens:   ft,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Registry: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return l, ft
}

func product(l *Ledger) *big.Int {
	return new(big.Int).Mul(l.Reserve1(), l.Reserve2())
}

func sumShares(l *Ledger) *big.Int {
	sum := new(big.Int)
	for _, s := range l.Shares() {
		sum.Add(sum, s.Amount)
	}
	return sum
}

func TestProperty_SwapNeverDecreasesProduct(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		fee := uint16(rapid.IntRange(0, 1000).Draw(t, "fee"))
		l, _ := newRapidLedger(t, fee)
		ctx := context.Background()

		if _, err := l.AddLiquidity(ctx, deployer, amountGen().Draw(t, "r1"), amountGen().Draw(t, "r2")); err != nil {
			t.Fatalf("bootstrap: %v", err)
		}

		steps := rapid.IntRange(1, 20).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			before := product(l)
			tokenIn := token1
			if rapid.Bool().Draw(t, "direction") {
				tokenIn = token2
			}
			amountIn := amountGen().Draw(t, "amountIn")
			quote, quoteErr := l.QuoteSwap(tokenIn, amountIn)
			ev, err := l.Swap(ctx, trader, tokenIn, amountIn, nil)
			if quoteErr == nil && err == nil && quote.Cmp(ev.AmountOut) != 0 {
				t.Fatalf("swap paid %s, quote was %s", ev.AmountOut, quote)
			}
			if err != nil {
				// rejected swaps must leave the product exactly where it was
				if product(l).Cmp(before) != 0 {
					t.Fatalf("failed swap changed reserves: %v", err)
				}
				continue
			}
			if product(l).Cmp(before) < 0 {
				t.Fatalf("product decreased: before %s after %s", before, product(l))
			}
			if ev.AmountOut.Sign() <= 0 {
				t.Fatalf("committed swap paid %s", ev.AmountOut)
			}
			if l.Reserve1().Sign() <= 0 || l.Reserve2().Sign() <= 0 {
				t.Fatalf("reserve drained to zero")
			}
		}
	})
}

func TestProperty_SharesConserved(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l, ft := newRapidLedger(t, DefaultFeeBps)
		ctx := context.Background()
		providers := []common.Address{deployer, investor, trader}

		if _, err := l.AddLiquidity(ctx, deployer, amountGen().Draw(t, "r1"), amountGen().Draw(t, "r2")); err != nil {
			t.Fatalf("bootstrap: %v", err)
		}

		steps := rapid.IntRange(1, 30).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			who := rapid.SampledFrom(providers).Draw(t, "who")
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				a1 := amountGen().Draw(t, "deposit")
				a2, err := l.QuoteDeposit(token1, a1)
				if err != nil || a2.Sign() == 0 {
					continue
				}
				_, _ = l.AddLiquidity(ctx, who, a1, a2)
			case 1:
				_, _ = l.SwapToken1(ctx, who, amountGen().Draw(t, "swap"))
			case 2:
				owned := l.SharesOf(who)
				if owned.Sign() == 0 {
					continue
				}
				burn := rapid.Int64Range(1, 100).Draw(t, "percent")
				shares := new(big.Int).Div(new(big.Int).Mul(owned, big.NewInt(burn)), big.NewInt(100))
				if shares.Sign() == 0 {
					continue
				}
				_, _, _ = l.RemoveLiquidity(ctx, who, shares)
			}

			if sumShares(l).Cmp(l.TotalShares()) != 0 {
				t.Fatalf("sum of shares %s != total %s", sumShares(l), l.TotalShares())
			}
			if ft.balanceOf(token1, poolAddr).Cmp(l.Reserve1()) != 0 || ft.balanceOf(token2, poolAddr).Cmp(l.Reserve2()) != 0 {
				t.Fatalf("reserves drifted from pool balances")
			}
			if l.TotalShares().Sign() == 0 && (l.Reserve1().Sign() != 0 || l.Reserve2().Sign() != 0) {
				t.Fatalf("no shares outstanding but reserves remain")
			}
		}
	})
}

func TestProperty_QuotesAreIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l, _ := newRapidLedger(t, DefaultFeeBps)
		ctx := context.Background()
		if _, err := l.AddLiquidity(ctx, deployer, amountGen().Draw(t, "r1"), amountGen().Draw(t, "r2")); err != nil {
			t.Fatalf("bootstrap: %v", err)
		}

		amount := amountGen().Draw(t, "amount")
		before := l.Snapshot()
		q1, err1 := l.QuoteSwapToken2(amount)
		q2, err2 := l.QuoteSwapToken2(amount)
		d1, derr1 := l.QuoteDeposit(token2, amount)
		d2, derr2 := l.QuoteDeposit(token2, amount)

		if (err1 == nil) != (err2 == nil) || (derr1 == nil) != (derr2 == nil) {
			t.Fatalf("quotes disagree on failure")
		}
		if err1 == nil && q1.Cmp(q2) != 0 {
			t.Fatalf("swap quotes differ: %s vs %s", q1, q2)
		}
		if derr1 == nil && d1.Cmp(d2) != 0 {
			t.Fatalf("deposit quotes differ: %s vs %s", d1, d2)
		}
		after := l.Snapshot()
		if before.Sequence != after.Sequence || before.Pool.Reserve1.Cmp(after.Pool.Reserve1) != 0 || before.Pool.Reserve2.Cmp(after.Pool.Reserve2) != 0 {
			t.Fatalf("quoting mutated the pool")
		}
	})
}

func TestProperty_DepositKeepsRatio(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l, ft := newRapidLedger(t, DefaultFeeBps)
		ctx := context.Background()
		if _, err := l.AddLiquidity(ctx, deployer, amountGen().Draw(t, "r1"), amountGen().Draw(t, "r2")); err != nil {
			t.Fatalf("bootstrap: %v", err)
		}

		r1, r2 := l.Reserve1(), l.Reserve2()
		a1 := amountGen().Draw(t, "a1")
		a2, err := l.QuoteDeposit(token1, a1)
		if err != nil {
			t.Fatalf("quote: %v", err)
		}

		// a2 = floor(a1*r2/r1), so a2*r1 <= a1*r2 < (a2+1)*r1
		lhs := new(big.Int).Mul(a2, r1)
		rhs := new(big.Int).Mul(a1, r2)
		upper := new(big.Int).Mul(new(big.Int).Add(a2, big.NewInt(1)), r1)
		if lhs.Cmp(rhs) > 0 || rhs.Cmp(upper) >= 0 {
			t.Fatalf("deposit quote %s off the ratio %s:%s for %s", a2, r1, r2, a1)
		}

		// a steep ratio can ask for more token2 than the investor holds
		if a2.Sign() == 0 || a2.Cmp(ft.balanceOf(token2, investor)) > 0 {
			return
		}
		totalBefore := l.TotalShares()
		shares, err := l.AddLiquidity(ctx, investor, a1, a2)
		if err != nil {
			require.ErrorIs(t, err, ErrInvalidAmount)
			return
		}
		// minted shares never exceed the depositor's proportional claim
		if new(big.Int).Mul(shares, r1).Cmp(new(big.Int).Mul(totalBefore, a1)) > 0 {
			t.Fatalf("over-minted %s shares for %s of %s", shares, a1, r1)
		}
	})
}

func TestProperty_DepositQuoteScales(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l, _ := newRapidLedger(t, DefaultFeeBps)
		ctx := context.Background()
		if _, err := l.AddLiquidity(ctx, deployer, amountGen().Draw(t, "r1"), amountGen().Draw(t, "r2")); err != nil {
			t.Fatalf("bootstrap: %v", err)
		}

		a := amountGen().Draw(t, "a")
		k := big.NewInt(rapid.Int64Range(1, 1_000_000).Draw(t, "k"))
		ka := new(big.Int).Mul(k, a)

		q, err := l.QuoteDeposit(token1, a)
		if err != nil {
			t.Fatalf("quote a: %v", err)
		}
		qk, err := l.QuoteDeposit(token1, ka)
		if err != nil {
			t.Fatalf("quote k*a: %v", err)
		}

		// both quotes round down, so Q(k*a) sits in [k*Q(a), k*Q(a)+k)
		scaled := new(big.Int).Mul(k, q)
		diff := new(big.Int).Sub(qk, scaled)
		if diff.Sign() < 0 || diff.Cmp(k) >= 0 {
			t.Fatalf("Q(%s*a)=%s, %s*Q(a)=%s, off by %s", k, qk, k, scaled, diff)
		}
	})
}
