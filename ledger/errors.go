package ledger

import (
	"errors"

	"github.com/defistate/defistate-amm-go/protocols/amm/calculator"
)

var (
	// ErrInvalidAmount is returned for zero, negative or nil inputs, and for
	// operations whose result would round down to nothing.
	ErrInvalidAmount = calculator.ErrInvalidAmount
	// ErrInvalidState is returned when an operation needs liquidity the pool does not have.
	ErrInvalidState = calculator.ErrInvalidState
	// ErrInsufficientLiquidity is returned when a swap would pay out the whole opposite reserve.
	ErrInsufficientLiquidity = calculator.ErrInsufficientLiquidity
	// ErrTokenMismatch is returned when a token is not one of the pool's two tokens.
	ErrTokenMismatch = calculator.ErrTokenMismatch
	// ErrOverflow is returned when a reserve or share total would leave the uint256 range.
	ErrOverflow = calculator.ErrOverflow

	// ErrInvalidDeposit is returned when the second deposit amount does not match the
	// amount required by the current reserve ratio.
	ErrInvalidDeposit = errors.New("deposit does not match pool ratio")
	// ErrInsufficientAllowance is returned when the caller has not approved the pool for enough tokens.
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	// ErrTransferFailed is returned when the token ledger rejects a transfer.
	ErrTransferFailed = errors.New("token transfer failed")
	// ErrInsufficientShares is returned when a provider burns more shares than it owns.
	ErrInsufficientShares = errors.New("insufficient shares")
	// ErrSlippageExceeded is returned when a swap pays out less than the caller's minimum.
	ErrSlippageExceeded = errors.New("swap output below minimum")
	// ErrRollbackFailed is returned when a compensating transfer could not undo a partial operation.
	ErrRollbackFailed = errors.New("rollback of partial transfer failed")
)
