package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TokenLedger moves pooled assets between accounts and the pool's own account.
// Pull takes amount of token from an owner who approved the pool beforehand;
// Push pays amount of token out of the pool to a recipient. Implementations report
// a missing approval with an error wrapping ErrInsufficientAllowance; any other
// failure is treated as ErrTransferFailed.
type TokenLedger interface {
	Pull(ctx context.Context, token, from common.Address, amount *big.Int) error
	Push(ctx context.Context, token, to common.Address, amount *big.Int) error
}

type transferKind uint8

const (
	pulled transferKind = iota
	pushed
)

type transferEntry struct {
	kind    transferKind
	token   common.Address
	account common.Address
	amount  *big.Int
}

// transferJournal records the transfers an operation has performed so far so a
// later failure can be compensated in reverse order.
type transferJournal struct {
	tokens  TokenLedger
	entries []transferEntry
}

func (j *transferJournal) pull(ctx context.Context, token, from common.Address, amount *big.Int) error {
	if err := j.tokens.Pull(ctx, token, from, amount); err != nil {
		return classifyTransferError("pull", token, err)
	}
	j.entries = append(j.entries, transferEntry{kind: pulled, token: token, account: from, amount: amount})
	return nil
}

func (j *transferJournal) push(ctx context.Context, token, to common.Address, amount *big.Int) error {
	if err := j.tokens.Push(ctx, token, to, amount); err != nil {
		return classifyTransferError("push", token, err)
	}
	j.entries = append(j.entries, transferEntry{kind: pushed, token: token, account: to, amount: amount})
	return nil
}

// rollback undoes every recorded transfer, newest first. It runs detached from
// ctx cancellation. The returned error is cause, joined with ErrRollbackFailed
// when a compensating transfer could not be made.
func (j *transferJournal) rollback(ctx context.Context, cause error) error {
	ctx = context.WithoutCancel(ctx)
	var failures []error
	for i := len(j.entries) - 1; i >= 0; i-- {
		e := j.entries[i]
		var err error
		switch e.kind {
		case pulled:
			err = j.tokens.Push(ctx, e.token, e.account, e.amount)
		case pushed:
			err = j.tokens.Pull(ctx, e.token, e.account, e.amount)
		}
		if err != nil {
			failures = append(failures, fmt.Errorf("undo %s of %s %s: %w", e.kind, e.amount.String(), e.token.Hex(), err))
		}
	}
	j.entries = nil
	if len(failures) > 0 {
		return fmt.Errorf("%w: %w (after: %w)", ErrRollbackFailed, errors.Join(failures...), cause)
	}
	return cause
}

func (k transferKind) String() string {
	if k == pulled {
		return "pull"
	}
	return "push"
}

func classifyTransferError(op string, token common.Address, err error) error {
	if errors.Is(err, ErrInsufficientAllowance) || errors.Is(err, ErrTransferFailed) {
		return fmt.Errorf("%s %s: %w", op, token.Hex(), err)
	}
	return fmt.Errorf("%w: %s %s: %w", ErrTransferFailed, op, token.Hex(), err)
}
