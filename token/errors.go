package token

import "errors"

var (
	ErrNotInitialized     = errors.New("the contract is not initialized")
	ErrAlreadyInitialized = errors.New("the contract has already been initialized")
	ErrNotOwner           = errors.New("the method can be called by the owner only")
	ErrPrivateMethod      = errors.New("the method can be called by the contract only")

	ErrAccountNotRegistered = errors.New("the account is not registered")
	ErrInsufficientBalance  = errors.New("the account doesn't have enough balance")
	ErrOverflow             = errors.New("balance overflow")

	ErrInsufficientDeposit         = errors.New("the attached deposit is less than the required storage cost")
	ErrExcessWithdrawal            = errors.New("the amount is greater than the available storage balance")
	ErrNonZeroBalance              = errors.New("can't unregister the account with the positive balance without force")
	ErrInsufficientAttachedPayment = errors.New("requires attached deposit of exactly 1 yoctoNEAR")

	ErrZeroAmount        = errors.New("the amount should be a positive number")
	ErrSelfTransfer      = errors.New("sender and receiver should be different")
	ErrDeniedDestination = errors.New("ERR_RECIPIENT_CANNOT_BE_SESSION_VAULT")
	ErrInsufficientGas   = errors.New("more gas is required")

	// ErrMalformedCalloutReply is never returned to callers, replies which
	// can't be parsed are handled as a full refund.
	ErrMalformedCalloutReply = errors.New("malformed callout reply")

	ErrInvalidMetadata  = errors.New("invalid metadata")
	ErrInvalidAccountID = errors.New("invalid account ID")
	ErrInvalidArguments = errors.New("invalid arguments")
)
