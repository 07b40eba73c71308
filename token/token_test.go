package token

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/defistate/defistate-amm-go/fixedpoint"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	dappAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	usdAddr  = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	ammAddr  = common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0")

	deployer  = common.HexToAddress("0x00000000000000000000000000000000000000d0")
	provider  = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	investor1 = common.HexToAddress("0x00000000000000000000000000000000000000d2")
	investor2 = common.HexToAddress("0x00000000000000000000000000000000000000d3")
)

func tokens(n int64) *big.Int { return fixedpoint.Tokens(n) }

func newToken(t *testing.T, addr common.Address, symbol string) *Token {
	t.Helper()
	tk, err := New(Metadata{Address: addr, Name: symbol + " Token", Symbol: symbol, Decimals: 18})
	require.NoError(t, err)
	require.NoError(t, tk.Mint(deployer, tokens(1_000_000)))
	return tk
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Metadata{Symbol: "X"})
	require.ErrorIs(t, err, ErrZeroAddress)

	_, err = New(Metadata{Address: dappAddr})
	require.Error(t, err)
}

func TestToken_Transfer(t *testing.T) {
	tk := newToken(t, dappAddr, "DAPP")

	testCases := []struct {
		name    string
		from    common.Address
		to      common.Address
		amount  *big.Int
		wantErr error
	}{
		{name: "ok", from: deployer, to: provider, amount: tokens(100)},
		{name: "zero amount", from: deployer, to: provider, amount: big.NewInt(0), wantErr: ErrInvalidAmount},
		{name: "nil amount", from: deployer, to: provider, amount: nil, wantErr: ErrInvalidAmount},
		{name: "zero recipient", from: deployer, to: common.Address{}, amount: tokens(1), wantErr: ErrZeroAddress},
		{name: "insufficient balance", from: investor1, to: provider, amount: tokens(1), wantErr: ErrInsufficientBalance},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tk.Transfer(tc.from, tc.to, tc.amount)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}

	assert.Equal(t, 0, tokens(999_900).Cmp(tk.BalanceOf(deployer)))
	assert.Equal(t, 0, tokens(100).Cmp(tk.BalanceOf(provider)))
	assert.Equal(t, 0, tokens(1_000_000).Cmp(tk.TotalSupply()))
}

func TestToken_InsufficientBalanceIsTransferFailure(t *testing.T) {
	tk := newToken(t, dappAddr, "DAPP")
	err := tk.Transfer(investor1, provider, tokens(1))
	assert.ErrorIs(t, err, ledger.ErrTransferFailed)
}

func TestToken_ApproveAndTransferFrom(t *testing.T) {
	tk := newToken(t, dappAddr, "DAPP")

	err := tk.TransferFrom(ammAddr, deployer, ammAddr, tokens(1))
	require.ErrorIs(t, err, ErrInsufficientAllowance)
	require.ErrorIs(t, err, ledger.ErrInsufficientAllowance)

	require.NoError(t, tk.Approve(deployer, ammAddr, tokens(10)))
	assert.Equal(t, 0, tokens(10).Cmp(tk.Allowance(deployer, ammAddr)))

	require.NoError(t, tk.TransferFrom(ammAddr, deployer, ammAddr, tokens(4)))
	assert.Equal(t, 0, tokens(6).Cmp(tk.Allowance(deployer, ammAddr)))
	assert.Equal(t, 0, tokens(4).Cmp(tk.BalanceOf(ammAddr)))

	// approve replaces rather than adds
	require.NoError(t, tk.Approve(deployer, ammAddr, tokens(2)))
	assert.Equal(t, 0, tokens(2).Cmp(tk.Allowance(deployer, ammAddr)))

	require.NoError(t, tk.TransferFrom(ammAddr, deployer, ammAddr, tokens(2)))
	assert.Zero(t, tk.Allowance(deployer, ammAddr).Sign())

	// allowance without balance moves nothing
	require.NoError(t, tk.Approve(investor1, ammAddr, tokens(5)))
	err = tk.TransferFrom(ammAddr, investor1, ammAddr, tokens(5))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, 0, tokens(5).Cmp(tk.Allowance(investor1, ammAddr)))

	require.ErrorIs(t, tk.Approve(deployer, common.Address{}, tokens(1)), ErrZeroAddress)
	require.ErrorIs(t, tk.Approve(deployer, ammAddr, big.NewInt(-1)), ErrInvalidAmount)
}

func TestToken_MintTransferConservesSupply(t *testing.T) {
	tk := newToken(t, usdAddr, "USD")
	require.NoError(t, tk.Transfer(deployer, investor2, tokens(300)))
	require.NoError(t, tk.Mint(investor2, tokens(100)))
	require.ErrorIs(t, tk.Transfer(investor2, investor1, tokens(401)), ErrInsufficientBalance)
	require.ErrorIs(t, tk.Mint(common.Address{}, tokens(1)), ErrZeroAddress)
	require.ErrorIs(t, tk.Mint(deployer, new(big.Int).Lsh(big.NewInt(1), 256)), fixedpoint.ErrOverflow)

	sum := new(big.Int)
	for _, bal := range tk.Holders() {
		sum.Add(sum, bal)
	}
	assert.Equal(t, 0, tk.TotalSupply().Cmp(sum))
	assert.Equal(t, 0, tokens(1_000_100).Cmp(tk.TotalSupply()))
	assert.Equal(t, 0, tokens(400).Cmp(tk.Holders()[investor2]))
}

func TestBank_Registry(t *testing.T) {
	dapp := newToken(t, dappAddr, "DAPP")
	usd := newToken(t, usdAddr, "USD")

	bank, err := NewBank(usd, dapp)
	require.NoError(t, err)
	require.Error(t, bank.Add(dapp))
	require.Error(t, bank.Add(nil))

	got, err := bank.Token(dappAddr)
	require.NoError(t, err)
	assert.Same(t, dapp, got)

	_, err = bank.Token(ammAddr)
	require.ErrorIs(t, err, ErrUnknownToken)
	require.ErrorIs(t, err, ledger.ErrTransferFailed)

	list := bank.Tokens()
	require.Len(t, list, 2)
	assert.Equal(t, dappAddr, list[0].Address())
}

func TestPoolAccount_PullAndPush(t *testing.T) {
	dapp := newToken(t, dappAddr, "DAPP")
	bank, err := NewBank(dapp)
	require.NoError(t, err)
	pool := bank.Pool(ammAddr)
	ctx := context.Background()

	require.ErrorIs(t, pool.Pull(ctx, dappAddr, deployer, tokens(1)), ErrInsufficientAllowance)

	require.NoError(t, dapp.Approve(deployer, ammAddr, tokens(5)))
	require.NoError(t, pool.Pull(ctx, dappAddr, deployer, tokens(5)))
	assert.Equal(t, 0, tokens(5).Cmp(dapp.BalanceOf(ammAddr)))

	require.NoError(t, pool.Push(ctx, dappAddr, investor1, tokens(2)))
	assert.Equal(t, 0, tokens(2).Cmp(dapp.BalanceOf(investor1)))
	require.ErrorIs(t, pool.Push(ctx, dappAddr, investor1, tokens(4)), ErrInsufficientBalance)
	require.ErrorIs(t, pool.Push(ctx, usdAddr, investor1, tokens(1)), ErrUnknownToken)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	require.ErrorIs(t, pool.Push(cctx, dappAddr, investor1, tokens(1)), context.Canceled)
}

// TestPoolWithTokens walks the deposit and swap flow end to end: approvals,
// two deposits, swaps both ways, and balances that stay in sync with reserves.
func TestPoolWithTokens(t *testing.T) {
	ctx := context.Background()
	dapp := newToken(t, dappAddr, "DAPP")
	usd := newToken(t, usdAddr, "USD")
	bank, err := NewBank(dapp, usd)
	require.NoError(t, err)

	require.NoError(t, dapp.Transfer(deployer, provider, tokens(100_000)))
	require.NoError(t, usd.Transfer(deployer, provider, tokens(100_000)))
	require.NoError(t, dapp.Transfer(deployer, investor1, tokens(100_000)))
	require.NoError(t, usd.Transfer(deployer, investor2, tokens(100_000)))

	amm, err := ledger.New(ledger.Config{
		Address:         ammAddr,
		Token1:          dappAddr,
		Token2:          usdAddr,
		BootstrapShares: tokens(100),
		Tokens:          bank.Pool(ammAddr),
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		Registry:        prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	inSync := func() {
		t.Helper()
		assert.Equal(t, 0, dapp.BalanceOf(ammAddr).Cmp(amm.Reserve1()))
		assert.Equal(t, 0, usd.BalanceOf(ammAddr).Cmp(amm.Reserve2()))
	}

	// no approval yet
	_, err = amm.AddLiquidity(ctx, deployer, tokens(100_000), tokens(100_000))
	require.ErrorIs(t, err, ledger.ErrInsufficientAllowance)
	assert.True(t, amm.Pool().IsEmpty())
	assert.Equal(t, 0, tokens(800_000).Cmp(dapp.BalanceOf(deployer)))

	require.NoError(t, dapp.Approve(deployer, ammAddr, tokens(100_000)))
	require.NoError(t, usd.Approve(deployer, ammAddr, tokens(100_000)))
	_, err = amm.AddLiquidity(ctx, deployer, tokens(100_000), tokens(100_000))
	require.NoError(t, err)
	assert.Equal(t, 0, tokens(100).Cmp(amm.SharesOf(deployer)))
	assert.Equal(t, 0, tokens(100).Cmp(amm.TotalShares()))
	inSync()

	require.NoError(t, dapp.Approve(provider, ammAddr, tokens(50_000)))
	require.NoError(t, usd.Approve(provider, ammAddr, tokens(50_000)))
	deposit2, err := amm.QuoteDeposit(dappAddr, tokens(50_000))
	require.NoError(t, err)
	_, err = amm.AddLiquidity(ctx, provider, tokens(50_000), deposit2)
	require.NoError(t, err)
	assert.Equal(t, 0, tokens(50).Cmp(amm.SharesOf(provider)))
	assert.Equal(t, 0, tokens(150).Cmp(amm.TotalShares()))

	require.NoError(t, dapp.Approve(investor1, ammAddr, tokens(100_000)))
	for _, amount := range []int64{1, 1, 100} {
		estimate, err := amm.QuoteSwapToken1(tokens(amount))
		require.NoError(t, err)
		before := usd.BalanceOf(investor1)
		ev, err := amm.SwapToken1(ctx, investor1, tokens(amount))
		require.NoError(t, err)
		assert.Equal(t, 0, estimate.Cmp(ev.AmountOut))
		assert.Equal(t, 0, new(big.Int).Add(before, estimate).Cmp(usd.BalanceOf(investor1)))
		inSync()
	}

	require.NoError(t, usd.Approve(investor2, ammAddr, tokens(100_000)))
	for _, amount := range []int64{1, 10_000} {
		estimate, err := amm.QuoteSwapToken2(tokens(amount))
		require.NoError(t, err)
		before := dapp.BalanceOf(investor2)
		ev, err := amm.SwapToken2(ctx, investor2, tokens(amount))
		require.NoError(t, err)
		assert.Equal(t, dappAddr, ev.TokenOut)
		assert.Equal(t, 0, new(big.Int).Add(before, estimate).Cmp(dapp.BalanceOf(investor2)))
		inSync()
	}

	// every share burned returns every token the pool held
	_, _, err = amm.RemoveLiquidity(ctx, provider, tokens(50))
	require.NoError(t, err)
	_, _, err = amm.RemoveLiquidity(ctx, deployer, tokens(100))
	require.NoError(t, err)
	assert.True(t, amm.Pool().IsEmpty())
	assert.Zero(t, dapp.BalanceOf(ammAddr).Sign())
	assert.Zero(t, usd.BalanceOf(ammAddr).Sign())
	assert.Equal(t, 0, tokens(1_000_000).Cmp(dapp.TotalSupply()))
}
