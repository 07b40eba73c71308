package token

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/ethereum/go-ethereum/common"
)

// Bank is a set of tokens addressed by their contract address. Bound to a pool
// account through Pool, it settles the pool's transfers.
type Bank struct {
	mu     sync.RWMutex
	tokens map[common.Address]*Token
}

func NewBank(tokens ...*Token) (*Bank, error) {
	b := &Bank{tokens: make(map[common.Address]*Token, len(tokens))}
	for _, t := range tokens {
		if err := b.Add(t); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Add registers a token. Addresses must be unique.
func (b *Bank) Add(t *Token) error {
	if t == nil {
		return errors.New("bank: token cannot be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.tokens[t.Address()]; exists {
		return fmt.Errorf("bank: token %s already registered", t.Address().Hex())
	}
	b.tokens[t.Address()] = t
	return nil
}

// Token looks up a registered token.
func (b *Bank) Token(address common.Address) (*Token, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.tokens[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, address.Hex())
	}
	return t, nil
}

// Tokens returns every registered token ordered by address.
func (b *Bank) Tokens() []*Token {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Token, 0, len(b.tokens))
	for _, t := range b.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address().Cmp(out[j].Address()) < 0
	})
	return out
}

// Pool returns the pool ledger's view of the bank: Pull spends the pool's
// allowance from an owner, Push pays from the pool's own balance.
func (b *Bank) Pool(pool common.Address) *PoolAccount {
	return &PoolAccount{bank: b, pool: pool}
}

// PoolAccount settles transfers for one pool account.
type PoolAccount struct {
	bank *Bank
	pool common.Address
}

func (p *PoolAccount) Pull(ctx context.Context, token, from common.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t, err := p.bank.Token(token)
	if err != nil {
		return err
	}
	return t.TransferFrom(p.pool, from, p.pool, amount)
}

func (p *PoolAccount) Push(ctx context.Context, token, to common.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t, err := p.bank.Token(token)
	if err != nil {
		return err
	}
	return t.Transfer(p.pool, to, amount)
}

var _ ledger.TokenLedger = (*PoolAccount)(nil)
