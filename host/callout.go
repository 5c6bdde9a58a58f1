package host

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/mr-tron/base58"
	"github.com/nspcc-dev/ftledger/common"
	"github.com/nspcc-dev/neo-go/pkg/io"
)

// CalloutPhase is a stage of the callout lifecycle.
type CalloutPhase byte

const (
	// PhaseProvisional is a callout scheduled by a call which has not
	// committed yet.
	PhaseProvisional CalloutPhase = iota
	// PhaseAwaiting is a persisted callout whose receiver has not been
	// resolved yet.
	PhaseAwaiting
	// PhaseSettled is a persisted callout whose receiver has finished but
	// whose callback failed. The receiver result is kept for the retry.
	PhaseSettled
	// PhaseResolved is a callout whose callback has been executed. Resolved
	// callouts are not stored.
	PhaseResolved
)

// String implements fmt.Stringer.
func (p CalloutPhase) String() string {
	switch p {
	case PhaseProvisional:
		return "provisional"
	case PhaseAwaiting:
		return "awaiting"
	case PhaseSettled:
		return "settled"
	case PhaseResolved:
		return "resolved"
	default:
		return fmt.Sprintf("unknown#%d", byte(p))
	}
}

// Callout is an asynchronous call of another contract with an optional
// callback to the calling one.
type Callout struct {
	ID    uuid.UUID
	Phase CalloutPhase

	Caller   string
	Signer   string
	Receiver string
	Method   string
	Args     []byte
	Deposit  *uint256.Int
	Gas      uint64

	Callback     string
	CallbackArgs []byte
	CallbackGas  uint64

	// Result is the receiver outcome, set in PhaseSettled only.
	Result PromiseResult
}

// Then sets the caller's method executed with the callout result.
func (c *Callout) Then(method string, args []byte, gas uint64) *Callout {
	c.Callback = method
	c.CallbackArgs = args
	c.CallbackGas = gas
	return c
}

// EncodeBinary implements io.Serializable.
func (c *Callout) EncodeBinary(w *io.BinWriter) {
	w.WriteBytes(c.ID[:])
	w.WriteB(byte(c.Phase))
	w.WriteString(c.Caller)
	w.WriteString(c.Signer)
	w.WriteString(c.Receiver)
	w.WriteString(c.Method)
	w.WriteVarBytes(c.Args)
	deposit := c.Deposit
	if deposit == nil {
		deposit = new(uint256.Int)
	}
	common.EncodeU128(w, deposit)
	w.WriteU64LE(c.Gas)
	w.WriteString(c.Callback)
	w.WriteVarBytes(c.CallbackArgs)
	w.WriteU64LE(c.CallbackGas)
	if c.Phase == PhaseSettled {
		w.WriteB(byte(c.Result.Status))
		w.WriteVarBytes(c.Result.Value)
	}
}

// DecodeBinary implements io.Serializable.
func (c *Callout) DecodeBinary(r *io.BinReader) {
	r.ReadBytes(c.ID[:])
	c.Phase = CalloutPhase(r.ReadB())
	c.Caller = r.ReadString()
	c.Signer = r.ReadString()
	c.Receiver = r.ReadString()
	c.Method = r.ReadString()
	c.Args = r.ReadVarBytes()
	c.Deposit = common.DecodeU128(r)
	c.Gas = r.ReadU64LE()
	c.Callback = r.ReadString()
	c.CallbackArgs = r.ReadVarBytes()
	c.CallbackGas = r.ReadU64LE()
	c.Result = PromiseResult{}
	if c.Phase == PhaseSettled {
		c.Result.Status = PromiseStatus(r.ReadB())
		c.Result.Value = r.ReadVarBytes()
	}
}

// FormatID returns base58 representation of the callout ID.
func FormatID(id uuid.UUID) string {
	return base58.Encode(id[:])
}

// ParseID decodes callout ID encoded by FormatID.
func ParseID(s string) (uuid.UUID, error) {
	var id uuid.UUID

	b, err := base58.Decode(s)
	if err != nil {
		return id, fmt.Errorf("decode base58: %w", err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("invalid callout ID length %d", len(b))
	}

	copy(id[:], b)
	return id, nil
}

// PromiseStatus is the outcome of a callout.
type PromiseStatus byte

const (
	// PromiseSuccessful means the receiver returned a value.
	PromiseSuccessful PromiseStatus = iota
	// PromiseFailed means the receiver failed, timed out, was not found or
	// was not reached at all.
	PromiseFailed
)

// PromiseResult is the result of a callout passed to the callback.
type PromiseResult struct {
	Status PromiseStatus
	Value  []byte
}
