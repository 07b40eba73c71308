package main

import (
	"fmt"
	"io"
	"math/big"
	"text/tabwriter"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/fixedpoint"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/protocols/amm/calculator"
	"github.com/defistate/defistate-amm-go/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const pricePlaces = 6

var hundredDecimal = decimal.NewFromInt(100)

func printPool(out io.Writer, state *engine.State, symbols symbolTable) {
	p := state.Pool
	sym1, sym2 := symbols.name(p.Token1), symbols.name(p.Token2)

	fmt.Fprintf(out, "\n%sPOOL    ::%s %s%s%s | Sequence %s#%d%s | Fee %s%d bps%s\n",
		Green, Reset,
		Bold, p.Address.Hex(), Reset,
		Bold, state.Sequence, Reset,
		Bold, p.FeeBps, Reset,
	)

	w := tabwriter.NewWriter(out, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "TOKEN\tADDRESS\tRESERVE\tSPOT PRICE\tRATE (1% TRADE)\t")
	fmt.Fprintln(w, "-----\t-------\t-------\t----------\t---------------\t")
	for _, side := range []struct {
		token   common.Address
		reserve *big.Int
		sym     string
		other   string
	}{
		{p.Token1, p.Reserve1, sym1, sym2},
		{p.Token2, p.Reserve2, sym2, sym1},
	} {
		spot, rate := "-", "-"
		if price, err := calculator.SpotPrice(side.token, p); err == nil {
			spot = fixedpoint.FormatFixed(price, pricePlaces) + " " + side.other
		}
		if r, err := calculator.GetExchangeRate(side.token, fixedpoint.Decimals, p); err == nil {
			rate = fixedpoint.FormatFixed(r, pricePlaces) + " " + side.other
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n", side.sym, side.token.Hex(), fixedpoint.Format(side.reserve), spot, rate)
	}
	w.Flush()

	fmt.Fprintf(out, "\n%sTotal shares:%s %s  %s(%d holders)%s\n",
		Bold, Reset, fixedpoint.Format(p.TotalShares), Gray, len(state.Shares), Reset)
}

func printShares(out io.Writer, state *engine.State) {
	header(out, "SHARE HOLDERS")

	w := tabwriter.NewWriter(out, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tSHARES\tPOOL %\t")
	fmt.Fprintln(w, "-------\t------\t------\t")
	for _, s := range state.Shares {
		pct := "-"
		if state.Pool.TotalShares != nil && state.Pool.TotalShares.Sign() > 0 {
			hundred := new(big.Int).Mul(s.Amount, big.NewInt(100))
			if r, err := fixedpoint.Ratio(hundred, state.Pool.TotalShares, 4); err == nil {
				pct = r.StringFixed(4)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", s.Account.Hex(), fixedpoint.Format(s.Amount), pct)
	}
	w.Flush()
}

// printQuote simulates a swap of amount (a decimal token string) against the
// given state without touching the pool.
func printQuote(out io.Writer, state *engine.State, symbols symbolTable, tokenIn common.Address, amount string) error {
	amountIn, err := fixedpoint.ParseTokens(amount)
	if err != nil {
		return err
	}
	amountOut, after, err := calculator.SimulateSwap(amountIn, tokenIn, state.Pool)
	if err != nil {
		return err
	}
	tokenOut, _ := state.Pool.Other(tokenIn)

	before, err := calculator.SpotPrice(tokenIn, state.Pool)
	if err != nil {
		return err
	}
	// effective price paid, in tokenOut per tokenIn
	effective, err := fixedpoint.MulDiv(amountOut, fixedpoint.Scale(), amountIn)
	if err != nil {
		return err
	}
	impact, err := fixedpoint.Ratio(new(big.Int).Sub(before, effective), before, 4)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 4, ' ', 0)
	fmt.Fprintf(w, "You pay\t%s %s\t\n", fixedpoint.Format(amountIn), symbols.name(tokenIn))
	fmt.Fprintf(w, "You receive\t%s %s\t\n", fixedpoint.Format(amountOut), symbols.name(tokenOut))
	fmt.Fprintf(w, "Effective price\t%s\t\n", fixedpoint.FormatFixed(effective, pricePlaces))
	fmt.Fprintf(w, "Price impact\t%s%%\t\n", impact.Mul(hundredDecimal).StringFixed(2))
	fmt.Fprintf(w, "Reserves after\t%s / %s\t\n", fixedpoint.Format(after.Reserve1), fixedpoint.Format(after.Reserve2))
	w.Flush()
	return nil
}

func printBalances(out io.Writer, bank *token.Bank, accounts []namedAccount) {
	header(out, "BALANCES")

	tokens := bank.Tokens()
	w := tabwriter.NewWriter(out, 0, 0, 4, ' ', 0)
	fmt.Fprint(w, "ACCOUNT\tADDRESS\t")
	for _, t := range tokens {
		fmt.Fprintf(w, "%s\t", t.Symbol())
	}
	fmt.Fprintln(w)
	for _, a := range accounts {
		fmt.Fprintf(w, "%s\t%s\t", a.name, a.address.Hex())
		for _, t := range tokens {
			fmt.Fprintf(w, "%s\t", fixedpoint.Format(t.BalanceOf(a.address)))
		}
		fmt.Fprintln(w)
	}
	w.Flush()
}

func printEvents(out io.Writer, records []ledger.Record, symbols symbolTable, names map[common.Address]string) {
	header(out, "EVENT LOG")

	w := tabwriter.NewWriter(out, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "SEQ\tEVENT\tACCOUNT\tIN\tOUT\tRESERVE 1\tRESERVE 2\t")
	fmt.Fprintln(w, "---\t-----\t-------\t--\t---\t---------\t---------\t")
	for _, rec := range records {
		switch {
		case rec.Swap != nil:
			s := rec.Swap
			fmt.Fprintf(w, "%d\tswap\t%s\t%s %s\t%s %s\t%s\t%s\t\n",
				rec.Sequence, accountName(names, s.Trader),
				fixedpoint.Format(s.AmountIn), symbols.name(s.TokenIn),
				fixedpoint.Format(s.AmountOut), symbols.name(s.TokenOut),
				fixedpoint.Format(s.NewReserve1), fixedpoint.Format(s.NewReserve2),
			)
		case rec.Liquidity != nil:
			l := rec.Liquidity
			fmt.Fprintf(w, "%d\t%s liquidity\t%s\t%s / %s\t%s shares\t%s\t%s\t\n",
				rec.Sequence, l.Kind, accountName(names, l.Provider),
				fixedpoint.Format(l.Amount1), fixedpoint.Format(l.Amount2),
				fixedpoint.Format(l.Shares),
				fixedpoint.Format(l.NewReserve1), fixedpoint.Format(l.NewReserve2),
			)
		}
	}
	w.Flush()
}

func accountName(names map[common.Address]string, addr common.Address) string {
	if n, ok := names[addr]; ok {
		return n
	}
	return addr.Hex()
}
