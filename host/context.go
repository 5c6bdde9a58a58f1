package host

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
)

// Context is the environment of a single contract call.
type Context struct {
	ctx context.Context

	current     string
	predecessor string
	signer      string
	deposit     *uint256.Int
	gas         uint64
	price       *uint256.Int

	storage *Storage
	results []PromiseResult

	receipt *Receipt
	callout *Callout
}

// Context returns the context the call is executed with. It is done when the
// host timeout for the call expires.
func (c *Context) Context() context.Context {
	return c.ctx
}

// CurrentAccount returns the account of the executing contract.
func (c *Context) CurrentAccount() string {
	return c.current
}

// Predecessor returns the immediate caller account.
func (c *Context) Predecessor() string {
	return c.predecessor
}

// Signer returns the account which originated the call chain.
func (c *Context) Signer() string {
	return c.signer
}

// AttachedDeposit returns native currency amount attached to the call.
func (c *Context) AttachedDeposit() *uint256.Int {
	return c.deposit.Clone()
}

// PrepaidGas returns the gas budget of the call.
func (c *Context) PrepaidGas() uint64 {
	return c.gas
}

// StorageBytePrice returns native currency cost of one storage byte.
func (c *Context) StorageBytePrice() *uint256.Int {
	return c.price.Clone()
}

// Storage returns the contract storage.
func (c *Context) Storage() *Storage {
	return c.storage
}

// ReadOnly checks whether the call is a read-only one.
func (c *Context) ReadOnly() bool {
	return c.storage.readOnly
}

// Log records a message in the call receipt.
func (c *Context) Log(msg string) {
	c.receipt.Logs = append(c.receipt.Logs, msg)
}

// Notify records a named notification with the given items.
func (c *Context) Notify(name string, items ...stackitem.Item) {
	c.receipt.Notifications = append(c.receipt.Notifications, Notification{
		Contract: c.current,
		Name:     name,
		Item:     stackitem.NewArray(items),
	})
}

// Refund requests native currency transfer from the contract to the account
// once the call commits. The call fails if the contract can't pay.
func (c *Context) Refund(to string, amount *uint256.Int) {
	if amount == nil || amount.IsZero() {
		return
	}
	c.receipt.Refunds = append(c.receipt.Refunds, Refund{To: to, Amount: amount.Clone()})
}

// Call schedules a callout of the receiver method. Only one callout can be
// scheduled per call. The callout is started after the current call commits.
func (c *Context) Call(receiver, method string, args []byte, deposit *uint256.Int, gas uint64) (*Callout, error) {
	if c.storage.readOnly {
		return nil, ErrReadOnly
	}
	if c.callout != nil {
		return nil, ErrCalloutScheduled
	}
	if deposit == nil {
		deposit = new(uint256.Int)
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("generate callout ID: %w", err)
	}

	c.callout = &Callout{
		ID:       id,
		Phase:    PhaseProvisional,
		Caller:   c.current,
		Signer:   c.signer,
		Receiver: receiver,
		Method:   method,
		Args:     args,
		Deposit:  deposit.Clone(),
		Gas:      gas,
	}
	return c.callout, nil
}

// PromiseResults returns results of the callouts this call is a callback of.
func (c *Context) PromiseResults() []PromiseResult {
	return c.results
}
