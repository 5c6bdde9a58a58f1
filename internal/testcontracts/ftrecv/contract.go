// Package ftrecv provides a transfer-call receiver contract for tests and
// local setups. Its behavior is controlled by the transfer message:
//
//	""            return the default unused amount
//	"return:<n>"  return n as unused amount, even if it exceeds the transfer
//	"garbage"     return a reply which is not an amount
//	"fail"        fail the call
//	"panic"       panic
//	"hang"        block until the call times out
package ftrecv

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nspcc-dev/ftledger/common"
	"github.com/nspcc-dev/ftledger/host"
	"github.com/nspcc-dev/ftledger/token"
	"github.com/nspcc-dev/neo-go/pkg/smartcontract"
	"github.com/nspcc-dev/neo-go/pkg/smartcontract/manifest"
)

// Messages controlling the receiver.
const (
	MsgReturn  = "return:"
	MsgGarbage = "garbage"
	MsgFail    = "fail"
	MsgPanic   = "panic"
	MsgHang    = "hang"
)

// ErrRejected is returned on MsgFail.
var ErrRejected = errors.New("transfer rejected by receiver")

var lastCallKey = []byte("last")

// Call is the last onTransfer call the receiver got.
type Call struct {
	Token    string      `json:"token"`
	SenderID string      `json:"sender_id"`
	Amount   common.U128 `json:"amount"`
	Msg      string      `json:"msg"`
}

// Receiver is the receiver contract.
type Receiver struct {
	m      *manifest.Manifest
	unused common.U128
}

// New returns the receiver reporting unused as unused amount for empty
// messages. It's capped by the transferred amount.
func New(unused common.U128) *Receiver {
	m := manifest.NewManifest("FungibleTokenReceiver")
	m.ABI.Methods = []manifest.Method{
		{
			Name: token.ReceiverMethod,
			Parameters: []manifest.Parameter{
				manifest.NewParameter("sender_id", smartcontract.StringType),
				manifest.NewParameter("amount", smartcontract.IntegerType),
				manifest.NewParameter("msg", smartcontract.StringType),
			},
			ReturnType: smartcontract.IntegerType,
		},
		{
			Name:       "lastCall",
			ReturnType: smartcontract.MapType,
			Safe:       true,
		},
	}
	return &Receiver{m: m, unused: unused}
}

// Manifest implements host.Contract.
func (r *Receiver) Manifest() *manifest.Manifest {
	return r.m
}

// Call implements host.Contract.
func (r *Receiver) Call(ctx *host.Context, method string, args []byte) ([]byte, error) {
	switch method {
	case token.ReceiverMethod:
		return r.onTransfer(ctx, args)
	case "lastCall":
		data := ctx.Storage().Get(lastCallKey)
		if data == nil {
			return []byte("null"), nil
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %s", host.ErrUnknownMethod, method)
	}
}

func (r *Receiver) onTransfer(ctx *host.Context, data []byte) ([]byte, error) {
	var args token.OnTransferArgs
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, err
	}

	last, err := json.Marshal(Call{
		Token:    ctx.Predecessor(),
		SenderID: args.SenderID,
		Amount:   args.Amount,
		Msg:      args.Msg,
	})
	if err != nil {
		return nil, err
	}
	if err = ctx.Storage().Put(lastCallKey, last); err != nil {
		return nil, err
	}

	switch {
	case args.Msg == MsgGarbage:
		return []byte(`{"unused":"everything"}`), nil
	case args.Msg == MsgFail:
		return nil, ErrRejected
	case args.Msg == MsgPanic:
		panic("receiver panic")
	case args.Msg == MsgHang:
		<-ctx.Context().Done()
		return nil, ctx.Context().Err()
	case strings.HasPrefix(args.Msg, MsgReturn):
		v, err := common.ParseU128(strings.TrimPrefix(args.Msg, MsgReturn))
		if err != nil {
			return nil, err
		}
		return json.Marshal(common.NewU128(v))
	}

	unused := r.unused
	if unused.Int().Gt(args.Amount.Int()) {
		unused = args.Amount
	}
	return json.Marshal(unused)
}
