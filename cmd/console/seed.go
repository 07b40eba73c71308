package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"

	"github.com/defistate/defistate-amm-go/eventlog"
	"github.com/defistate/defistate-amm-go/fixedpoint"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

// Hardhat's default deployment addresses and the first five dev accounts.
var (
	dappAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	usdAddress  = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	ammAddress  = common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0")

	deployer  = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	investor1 = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	investor2 = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	investor3 = common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
	investor4 = common.HexToAddress("0x15d34AAf54267DB7D7c367839AAf71A00a2C6A65")
)

const initialSupply = 1_000_000

type namedAccount struct {
	name    string
	address common.Address
}

var seedAccounts = []namedAccount{
	{"deployer", deployer},
	{"investor1", investor1},
	{"investor2", investor2},
	{"investor3", investor3},
	{"investor4", investor4},
	{"amm", ammAddress},
}

// seedNode is an in-process pool with its token bank and event log.
type seedNode struct {
	dapp   *token.Token
	usd    *token.Token
	bank   *token.Bank
	events *eventlog.Log
	pool   *ledger.Ledger
}

func newSeedNode(logger *slog.Logger, reg prometheus.Registerer) (*seedNode, error) {
	dapp, err := token.New(token.Metadata{Address: dappAddress, Name: "Dapp Token", Symbol: "DAPP", Decimals: fixedpoint.Decimals})
	if err != nil {
		return nil, err
	}
	usd, err := token.New(token.Metadata{Address: usdAddress, Name: "USD Token", Symbol: "USD", Decimals: fixedpoint.Decimals})
	if err != nil {
		return nil, err
	}
	for _, t := range []*token.Token{dapp, usd} {
		if err := t.Mint(deployer, fixedpoint.Tokens(initialSupply)); err != nil {
			return nil, err
		}
	}
	bank, err := token.NewBank(dapp, usd)
	if err != nil {
		return nil, err
	}

	events := eventlog.New(logger.With("component", "eventlog"), reg)
	pool, err := ledger.New(ledger.Config{
		Address:         ammAddress,
		Token1:          dappAddress,
		Token2:          usdAddress,
		BootstrapShares: fixedpoint.Tokens(100),
		Tokens:          bank.Pool(ammAddress),
		Events:          events,
		Logger:          logger.With("component", "ledger"),
		Registry:        reg,
	})
	if err != nil {
		return nil, err
	}

	return &seedNode{dapp: dapp, usd: usd, bank: bank, events: events, pool: pool}, nil
}

type seedStep struct {
	title string
	run   func(ctx context.Context) error
}

func (n *seedNode) steps() []seedStep {
	transfer := func(t *token.Token, to common.Address, amount int64) func(context.Context) error {
		return func(context.Context) error {
			return t.Transfer(deployer, to, fixedpoint.Tokens(amount))
		}
	}
	swap := func(trader common.Address, t *token.Token, amount int64) func(context.Context) error {
		return func(ctx context.Context) error {
			if err := t.Approve(trader, ammAddress, fixedpoint.Tokens(10)); err != nil {
				return err
			}
			_, err := n.pool.Swap(ctx, trader, t.Address(), fixedpoint.Tokens(amount), nil)
			return err
		}
	}

	return []seedStep{
		{"Sending 10 DAPP to investor1", transfer(n.dapp, investor1, 10)},
		{"Sending 10 USD to investor2", transfer(n.usd, investor2, 10)},
		{"Sending 10 DAPP to investor3", transfer(n.dapp, investor3, 10)},
		{"Sending 10 USD to investor4", transfer(n.usd, investor4, 10)},
		{"Deployer adds 100 DAPP / 100 USD of liquidity", func(ctx context.Context) error {
			amount := fixedpoint.Tokens(100)
			for _, t := range []*token.Token{n.dapp, n.usd} {
				if err := t.Approve(deployer, ammAddress, amount); err != nil {
					return err
				}
			}
			_, err := n.pool.AddLiquidity(ctx, deployer, amount, new(big.Int).Set(amount))
			return err
		}},
		{"Investor 1 swapping 1 DAPP -> USD", swap(investor1, n.dapp, 1)},
		{"Investor 2 swapping 1 USD -> DAPP", swap(investor2, n.usd, 1)},
		{"Investor 3 swapping 10 DAPP -> USD", swap(investor3, n.dapp, 10)},
		{"Investor 4 swapping 5 USD -> DAPP", swap(investor4, n.usd, 5)},
	}
}

// replay runs every seed step in order and stops at the first failure.
func (n *seedNode) replay(ctx context.Context, out io.Writer) error {
	for _, step := range n.steps() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s>%s %s\n", Cyan, Reset, step.title)
		if err := step.run(ctx); err != nil {
			return fmt.Errorf("%s: %w", step.title, err)
		}
	}
	fmt.Fprintln(out, Green+"finished"+Reset)
	return nil
}

func (n *seedNode) report(out io.Writer) {
	symbols := symbolTable{dappAddress: n.dapp.Symbol(), usdAddress: n.usd.Symbol()}
	names := make(map[common.Address]string, len(seedAccounts))
	for _, a := range seedAccounts {
		names[a.address] = a.name
	}

	printPool(out, n.pool.Snapshot(), symbols)
	printShares(out, n.pool.Snapshot())
	printBalances(out, n.bank, seedAccounts)
	printEvents(out, n.events.Records(0), symbols, names)
}

// replaySeed builds a fresh in-process pool, replays the seed scenario against
// it and prints the resulting state.
func replaySeed(ctx context.Context, logger *slog.Logger, out io.Writer) error {
	header(out, "SEED SCENARIO")
	node, err := newSeedNode(logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	if err := node.replay(ctx, out); err != nil {
		return err
	}
	node.report(out)
	return nil
}
