package host

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
)

// Notification is an event emitted by a contract.
type Notification struct {
	Contract string
	Name     string
	Item     *stackitem.Array
}

// Refund is a native currency transfer from the contract made on commit.
type Refund struct {
	To     string
	Amount *uint256.Int
}

// Receipt describes execution of a single call.
type Receipt struct {
	Contract      string
	Method        string
	Predecessor   string
	Logs          []string
	Notifications []Notification
	Refunds       []Refund
	// Err is the call failure, nil for committed calls.
	Err error
}

// Result groups receipts of all calls made on behalf of a single invocation.
type Result struct {
	// Value is the final value of the invocation, i.e. the value returned by
	// the last callback of the call chain.
	Value []byte
	// Pending lists callouts left unresolved by Host.Submit.
	Pending  []uuid.UUID
	Receipts []Receipt
}

// Logs returns logs of all committed calls in execution order.
func (r *Result) Logs() []string {
	var res []string
	for i := range r.Receipts {
		if r.Receipts[i].Err == nil {
			res = append(res, r.Receipts[i].Logs...)
		}
	}
	return res
}

// Notifications returns notifications of all committed calls in execution
// order.
func (r *Result) Notifications() []Notification {
	var res []Notification
	for i := range r.Receipts {
		if r.Receipts[i].Err == nil {
			res = append(res, r.Receipts[i].Notifications...)
		}
	}
	return res
}

// Refunds returns refunds paid by all committed calls.
func (r *Result) Refunds() []Refund {
	var res []Refund
	for i := range r.Receipts {
		if r.Receipts[i].Err == nil {
			res = append(res, r.Receipts[i].Refunds...)
		}
	}
	return res
}
