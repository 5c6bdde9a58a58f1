package token

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/nspcc-dev/ftledger/common"
	"github.com/nspcc-dev/ftledger/host"
)

const (
	// TGas is 10^12 gas units.
	TGas uint64 = 1_000_000_000_000

	// GasForResolveTransfer is attached to the transfer-call resolution.
	GasForResolveTransfer = 5 * TGas
	// GasForTransferCall is the part of the transfer-call prepaid gas not
	// passed to the receiver. The call requires more than that.
	GasForTransferCall = 25*TGas + GasForResolveTransfer
)

// ReceiverMethod is the method called on the transfer-call receiver.
const ReceiverMethod = "onTransfer"

type transferArgs struct {
	ReceiverID string      `json:"receiver_id"`
	Amount     common.U128 `json:"amount"`
	Memo       *string     `json:"memo"`
}

type transferCallArgs struct {
	ReceiverID string      `json:"receiver_id"`
	Amount     common.U128 `json:"amount"`
	Memo       *string     `json:"memo"`
	Msg        string      `json:"msg"`
}

// OnTransferArgs are the arguments of the receiver's onTransfer method.
type OnTransferArgs struct {
	SenderID string      `json:"sender_id"`
	Amount   common.U128 `json:"amount"`
	Msg      string      `json:"msg"`
}

type resolveTransferArgs struct {
	SenderID   string      `json:"sender_id"`
	ReceiverID string      `json:"receiver_id"`
	Amount     common.U128 `json:"amount"`
}

// internalTransfer checks transfer arguments and moves tokens.
func (c *call) internalTransfer(sender, receiver string, amount *uint256.Int, memo *string) error {
	if amount.IsZero() {
		return ErrZeroAmount
	}
	if sender == receiver {
		return fmt.Errorf("%w: %s", ErrSelfTransfer, sender)
	}
	if err := c.ledger.transfer(sender, receiver, amount); err != nil {
		return err
	}

	c.ctx.Notify(common.TransferEvent, common.TransferDetails{
		From:   sender,
		To:     receiver,
		Amount: amount,
		Memo:   memo,
	}.Items()...)
	return nil
}

// transfer moves tokens from the predecessor to the receiver. Direct
// transfers to the session vault are denied.
func (c *call) transfer(args transferArgs) error {
	if err := c.assertOneYocto(); err != nil {
		return err
	}

	s, err := c.state()
	if err != nil {
		return err
	}
	if err = checkAccountID(args.ReceiverID); err != nil {
		return err
	}

	amount := args.Amount.Int()
	sender := c.ctx.Predecessor()

	if amount.IsZero() {
		return ErrZeroAmount
	}
	if sender == args.ReceiverID {
		return fmt.Errorf("%w: %s", ErrSelfTransfer, sender)
	}
	if err = s.checkDestination(args.ReceiverID); err != nil {
		return err
	}

	m := newMeter(c.ctx, 1)
	if err = c.internalTransfer(sender, args.ReceiverID, amount, args.Memo); err != nil {
		return err
	}
	return m.settle()
}

// transferCall moves tokens from the predecessor to the receiver and calls
// the receiver's onTransfer method. The outcome is handled by
// resolveTransfer.
func (c *call) transferCall(args transferCallArgs) error {
	if err := c.assertOneYocto(); err != nil {
		return err
	}

	if _, err := c.state(); err != nil {
		return err
	}
	if err := checkAccountID(args.ReceiverID); err != nil {
		return err
	}

	gas := c.ctx.PrepaidGas()
	if gas <= GasForTransferCall {
		return fmt.Errorf("%w: %d attached, more than %d needed", ErrInsufficientGas, gas, GasForTransferCall)
	}

	amount := args.Amount.Int()
	sender := c.ctx.Predecessor()

	m := newMeter(c.ctx, 1)
	if err := c.internalTransfer(sender, args.ReceiverID, amount, args.Memo); err != nil {
		return err
	}

	onTransfer, err := json.Marshal(OnTransferArgs{
		SenderID: sender,
		Amount:   args.Amount,
		Msg:      args.Msg,
	})
	if err != nil {
		return fmt.Errorf("encode %s arguments: %w", ReceiverMethod, err)
	}

	resolve, err := json.Marshal(resolveTransferArgs{
		SenderID:   sender,
		ReceiverID: args.ReceiverID,
		Amount:     args.Amount,
	})
	if err != nil {
		return fmt.Errorf("encode resolution arguments: %w", err)
	}

	co, err := c.ctx.Call(args.ReceiverID, ReceiverMethod, onTransfer, nil, gas-GasForTransferCall)
	if err != nil {
		return err
	}
	co.Then(methodResolveTransfer, resolve, GasForResolveTransfer)

	return m.settle()
}

// parseUnused returns the unused amount reported by the receiver.
func parseUnused(pr host.PromiseResult, amount *uint256.Int) (*uint256.Int, error) {
	if pr.Status != host.PromiseSuccessful {
		return amount.Clone(), nil
	}

	var unused common.U128
	if err := json.Unmarshal(pr.Value, &unused); err != nil {
		return amount.Clone(), fmt.Errorf("%w: %w", ErrMalformedCalloutReply, err)
	}

	v := unused.Int()
	if v.Gt(amount) {
		return amount.Clone(), nil
	}
	return v, nil
}

// resolveTransfer returns the unused part of the transfer-call amount to the
// sender and returns the used amount. The refund is burned if the sender has
// been unregistered.
func (c *call) resolveTransfer(args resolveTransferArgs) (common.U128, error) {
	if err := c.assertPrivate(); err != nil {
		return common.U128{}, err
	}

	amount := args.Amount.Int()

	var pr host.PromiseResult
	if rs := c.ctx.PromiseResults(); len(rs) == 1 {
		pr = rs[0]
	} else {
		pr.Status = host.PromiseFailed
	}

	unused, err := parseUnused(pr, amount)
	if err != nil {
		c.ctx.Log(fmt.Sprintf("Ignoring reply of @%s: %v", args.ReceiverID, err))
	}
	if unused.IsZero() {
		return args.Amount, nil
	}

	receiverBalance, _, err := c.ledger.balance(args.ReceiverID)
	if err != nil {
		return common.U128{}, err
	}

	refund := unused
	if receiverBalance.Lt(refund) {
		refund = receiverBalance
	}
	if refund.IsZero() {
		return args.Amount, nil
	}

	if err = c.ledger.debit(args.ReceiverID, refund); err != nil {
		return common.U128{}, err
	}

	used := new(uint256.Int).Sub(amount, refund)

	if c.ledger.isRegistered(args.SenderID) {
		if err = c.ledger.credit(args.SenderID, refund); err != nil {
			return common.U128{}, err
		}
		c.ctx.Notify(common.TransferEvent, common.TransferDetails{
			From:   args.ReceiverID,
			To:     args.SenderID,
			Amount: refund,
			Memo:   common.Memo(common.RefundMemo),
		}.Items()...)
		return common.NewU128(used), nil
	}

	if err = c.ledger.burnSupply(refund); err != nil {
		return common.U128{}, err
	}

	c.ctx.Log("The account of the sender was deleted")
	c.ctx.Notify(common.BurnEvent, common.SupplyDetails{
		Owner:  args.ReceiverID,
		Amount: refund,
		Memo:   common.Memo(common.RefundMemo),
	}.Items()...)
	c.ctx.Log(fmt.Sprintf("Account @%s burned %s", args.SenderID, refund.Dec()))

	return common.NewU128(used), nil
}
