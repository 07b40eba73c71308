// Package token is an in-memory fungible token ledger with ERC-20 semantics:
// balances, allowances and spending on behalf of an owner.
package token

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/defistate/defistate-amm-go/fixedpoint"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrZeroAddress         = errors.New("zero address")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = fmt.Errorf("%w: insufficient balance", ledger.ErrTransferFailed)
	// ErrInsufficientAllowance matches ledger.ErrInsufficientAllowance so pool
	// operations surface it unchanged.
	ErrInsufficientAllowance = ledger.ErrInsufficientAllowance
	ErrUnknownToken          = fmt.Errorf("%w: unknown token", ledger.ErrTransferFailed)
)

// Metadata describes a token.
type Metadata struct {
	Address  common.Address `json:"address"`
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

// Token holds the balances and allowances of one fungible token.
// The sum of all balances always equals TotalSupply.
type Token struct {
	mu sync.RWMutex

	meta        Metadata
	totalSupply *big.Int
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int
}

// New creates a token with no supply.
func New(meta Metadata) (*Token, error) {
	if meta.Address == (common.Address{}) {
		return nil, fmt.Errorf("%w: token address", ErrZeroAddress)
	}
	if meta.Symbol == "" {
		return nil, errors.New("token: Symbol is required")
	}
	return &Token{
		meta:        meta,
		totalSupply: new(big.Int),
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
	}, nil
}

func (t *Token) Metadata() Metadata      { return t.meta }
func (t *Token) Address() common.Address { return t.meta.Address }
func (t *Token) Symbol() string          { return t.meta.Symbol }

func (t *Token) TotalSupply() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.totalSupply)
}

func (t *Token) BalanceOf(account common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return copyOrZero(t.balances[account])
}

func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return copyOrZero(t.allowances[owner][spender])
}

// Mint creates amount new tokens in the to account.
func (t *Token) Mint(to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return fmt.Errorf("%w: mint recipient", ErrZeroAddress)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	supply := new(big.Int).Add(t.totalSupply, amount)
	if err := fixedpoint.CheckUint256(supply); err != nil {
		return err
	}
	t.totalSupply = supply
	t.credit(to, amount)
	return nil
}

// Transfer moves amount from one account to another.
func (t *Token) Transfer(from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return fmt.Errorf("%w: transfer recipient", ErrZeroAddress)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.debit(from, amount); err != nil {
		return err
	}
	t.credit(to, amount)
	return nil
}

// Approve sets the amount spender may move out of owner's balance, replacing
// any previous allowance.
func (t *Token) Approve(owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: allowance must be non-negative", ErrInvalidAmount)
	}
	if spender == (common.Address{}) {
		return fmt.Errorf("%w: spender", ErrZeroAddress)
	}
	if err := fixedpoint.CheckUint256(amount); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	byOwner, ok := t.allowances[owner]
	if !ok {
		byOwner = make(map[common.Address]*big.Int)
		t.allowances[owner] = byOwner
	}
	if amount.Sign() == 0 {
		delete(byOwner, spender)
		return nil
	}
	byOwner[spender] = new(big.Int).Set(amount)
	return nil
}

// TransferFrom moves amount from owner to to on behalf of spender, consuming
// spender's allowance. Nothing changes when either the allowance or the balance
// is short.
func (t *Token) TransferFrom(spender, owner, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return fmt.Errorf("%w: transfer recipient", ErrZeroAddress)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	allowed := copyOrZero(t.allowances[owner][spender])
	if allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s allows %s to spend %s %s, needs %s",
			ErrInsufficientAllowance, owner.Hex(), spender.Hex(), allowed.String(), t.meta.Symbol, amount.String())
	}
	if err := t.debit(owner, amount); err != nil {
		return err
	}
	t.credit(to, amount)

	remaining := allowed.Sub(allowed, amount)
	if remaining.Sign() == 0 {
		delete(t.allowances[owner], spender)
	} else {
		t.allowances[owner][spender] = remaining
	}
	return nil
}

// Holders returns a copy of every non-zero balance.
func (t *Token) Holders() map[common.Address]*big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[common.Address]*big.Int, len(t.balances))
	for account, bal := range t.balances {
		out[account] = new(big.Int).Set(bal)
	}
	return out
}

func (t *Token) credit(to common.Address, amount *big.Int) {
	bal, ok := t.balances[to]
	if !ok {
		bal = new(big.Int)
	}
	t.balances[to] = new(big.Int).Add(bal, amount)
}

func (t *Token) debit(from common.Address, amount *big.Int) error {
	bal := copyOrZero(t.balances[from])
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s %s, needs %s", ErrInsufficientBalance, from.Hex(), bal.String(), t.meta.Symbol, amount.String())
	}
	bal.Sub(bal, amount)
	if bal.Sign() == 0 {
		delete(t.balances, from)
	} else {
		t.balances[from] = bal
	}
	return nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidAmount)
	}
	return nil
}

func copyOrZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}
