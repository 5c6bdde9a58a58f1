package host

import "errors"

var (
	// ErrUnknownContract is returned when there is no contract deployed to the
	// called account.
	ErrUnknownContract = errors.New("unknown contract")
	// ErrUnknownMethod is returned when the called method is missing in the
	// contract manifest.
	ErrUnknownMethod = errors.New("unknown method")
	// ErrReadOnly is returned on attempts to modify state from a safe method.
	ErrReadOnly = errors.New("read-only call")
	// ErrInsufficientFunds is returned when a native currency transfer can't
	// be covered by the sender balance.
	ErrInsufficientFunds = errors.New("insufficient native balance")
	// ErrFault is returned when a contract panics.
	ErrFault = errors.New("contract fault")
	// ErrCalloutScheduled is returned on the second Context.Call within one
	// call.
	ErrCalloutScheduled = errors.New("callout is already scheduled")
	// ErrCalloutNotFound is returned by Process for unknown or resolved
	// callouts.
	ErrCalloutNotFound = errors.New("callout not found")
	// ErrCallDepth is returned when the callout chain is too deep.
	ErrCallDepth = errors.New("call depth limit exceeded")
)
