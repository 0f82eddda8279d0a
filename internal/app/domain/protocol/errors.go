package protocol

import "errors"

// Error kinds surfaced by ledger operations. Services wrap these with
// context; callers test them with errors.Is.
var (
	// ErrInsufficientFunds is reported when the external funds gateway
	// cannot cover a deposit.
	ErrInsufficientFunds = errors.New("insufficient funds for operation")

	// ErrInsufficientBalance is returned when a withdrawal exceeds the
	// vault balance.
	ErrInsufficientBalance = errors.New("insufficient balance in vault")

	// ErrNonZeroBalance is returned when closing a vault that still holds
	// funds.
	ErrNonZeroBalance = errors.New("vault balance must be zero to close")

	// ErrVaultInactive is returned when compounding an inactive vault.
	ErrVaultInactive = errors.New("vault is not active")

	// ErrSupplyExhausted is returned once all boost passes are issued.
	ErrSupplyExhausted = errors.New("boost pass supply exhausted")

	// ErrUnauthorized is returned when the caller does not control the
	// owner identity (or is not the protocol authority).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrArithmeticOverflow is returned when a reward calculation does not
	// fit the 64-bit balance domain.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// ErrInvalidDepositAmount is returned for zero-value deposits.
	ErrInvalidDepositAmount = errors.New("invalid deposit amount")

	// ErrClockRegression is returned when the supplied timestamp precedes
	// the vault's last compound time.
	ErrClockRegression = errors.New("invalid state: clock moved backwards")

	// ErrPaused is returned by every mutating operation while the
	// protocol kill-switch is engaged.
	ErrPaused = errors.New("protocol is paused")

	// ErrAlreadyInitialized is returned when Initialize runs twice.
	ErrAlreadyInitialized = errors.New("protocol already initialized")

	// ErrVaultExists is returned when creating a vault that already
	// exists for the owner and asset.
	ErrVaultExists = errors.New("vault already exists")
)
