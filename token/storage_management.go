package token

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/nspcc-dev/ftledger/common"
	"github.com/nspcc-dev/ftledger/host"
)

// StorageBalance is the storage deposit of an account.
type StorageBalance struct {
	Total     common.U128 `json:"total"`
	Available common.U128 `json:"available"`
}

// StorageBalanceBounds are the storage deposit limits. Min and Max are always
// equal.
type StorageBalanceBounds struct {
	Min common.U128 `json:"min"`
	Max common.U128 `json:"max"`
}

// meter applies storage cost accounting to a call. The caller pays for the
// bytes the call occupies and gets the cost of the freed ones back along with
// the unused part of the attached deposit.
type meter struct {
	ctx   *host.Context
	start uint64

	retained *uint256.Int
	booked   *uint256.Int
	released *uint256.Int
}

// newMeter starts metering the call. retained is the part of the attached
// deposit kept by the contract as a call fee.
func newMeter(ctx *host.Context, retained uint64) *meter {
	return &meter{
		ctx:      ctx,
		start:    ctx.Storage().Usage(),
		retained: uint256.NewInt(retained),
		booked:   new(uint256.Int),
		released: new(uint256.Int),
	}
}

// book charges the caller with amount on settlement.
func (m *meter) book(amount *uint256.Int) {
	m.booked.Add(m.booked, amount)
}

// release returns amount to the caller on settlement.
func (m *meter) release(amount *uint256.Int) {
	m.released.Add(m.released, amount)
}

// settle checks that the attached deposit covers the charges and refunds the
// rest to the predecessor. Measured storage growth is charged if it costs
// more than the booked amount, the same is done for the freed bytes.
func (m *meter) settle() error {
	var (
		usage   = m.ctx.Storage().Usage()
		price   = m.ctx.StorageBytePrice()
		charge  = m.booked.Clone()
		release = m.released.Clone()
	)

	switch {
	case usage > m.start:
		if grown := new(uint256.Int).Mul(price, uint256.NewInt(usage-m.start)); grown.Gt(charge) {
			charge = grown
		}
	case usage < m.start:
		if freed := new(uint256.Int).Mul(price, uint256.NewInt(m.start-usage)); freed.Gt(release) {
			release = freed
		}
	}

	need, err := common.AddU128(m.retained, charge)
	if err != nil {
		return fmt.Errorf("%w: storage cost", ErrOverflow)
	}

	attached := m.ctx.AttachedDeposit()
	if attached.Lt(need) {
		return fmt.Errorf("%w: attached %s, required %s", ErrInsufficientDeposit, attached.Dec(), need.Dec())
	}

	refund, err := common.AddU128(attached.Sub(attached, need), release)
	if err != nil {
		return fmt.Errorf("%w: refund", ErrOverflow)
	}

	m.ctx.Refund(m.ctx.Predecessor(), refund)
	return nil
}

// storageCost returns the deposit required to register an account.
func storageCost(ctx *host.Context, s *contractState) *uint256.Int {
	return new(uint256.Int).Mul(ctx.StorageBytePrice(), uint256.NewInt(s.AccountStorageUsage))
}

// measureAccountStorage returns the number of bytes a balance entry of the
// longest account ID occupies.
func measureAccountStorage(l ledger) (uint64, error) {
	before := l.st.Usage()

	tmp := make([]byte, maxAccountIDLen)
	for i := range tmp {
		tmp[i] = 'a'
	}

	if err := l.register(string(tmp)); err != nil {
		return 0, err
	}
	usage := l.st.Usage() - before
	if err := l.unregister(string(tmp)); err != nil {
		return 0, err
	}

	return usage, nil
}

type storageDepositArgs struct {
	AccountID        *string `json:"account_id"`
	RegistrationOnly *bool   `json:"registration_only"`
}

// storageDeposit registers the account paying for its balance entry. Deposits
// for registered accounts are refunded.
func (c *call) storageDeposit(args storageDepositArgs) (*StorageBalance, error) {
	s, err := c.state()
	if err != nil {
		return nil, err
	}

	account := c.ctx.Predecessor()
	if args.AccountID != nil {
		account = *args.AccountID
	}
	if err = checkAccountID(account); err != nil {
		return nil, err
	}

	cost := storageCost(c.ctx, s)
	m := newMeter(c.ctx, 0)

	if c.ledger.isRegistered(account) {
		c.ctx.Log("The account is already registered, refunding the deposit")
	} else {
		if c.ctx.AttachedDeposit().Lt(cost) {
			return nil, fmt.Errorf("%w: the attached deposit is less than the minimum storage balance %s",
				ErrInsufficientDeposit, cost.Dec())
		}
		if err = c.ledger.register(account); err != nil {
			return nil, err
		}
		m.book(cost)
	}

	if err = m.settle(); err != nil {
		return nil, err
	}

	return &StorageBalance{Total: common.NewU128(cost)}, nil
}

type storageWithdrawArgs struct {
	Amount *common.U128 `json:"amount"`
}

// storageWithdraw can't withdraw anything since there is no storage deposit
// above the minimum. Non-zero amount is an error.
func (c *call) storageWithdraw(args storageWithdrawArgs) (*StorageBalance, error) {
	if err := c.assertOneYocto(); err != nil {
		return nil, err
	}

	s, err := c.state()
	if err != nil {
		return nil, err
	}

	account := c.ctx.Predecessor()
	if !c.ledger.isRegistered(account) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotRegistered, account)
	}
	if args.Amount != nil && !args.Amount.Int().IsZero() {
		return nil, fmt.Errorf("%w: %s requested, 0 available", ErrExcessWithdrawal, args.Amount)
	}

	if err = newMeter(c.ctx, 1).settle(); err != nil {
		return nil, err
	}

	return &StorageBalance{Total: common.NewU128(storageCost(c.ctx, s))}, nil
}

type storageUnregisterArgs struct {
	Force *bool `json:"force"`
}

// storageUnregister closes the predecessor account returning its storage
// deposit. Positive balance is burned if forced.
func (c *call) storageUnregister(args storageUnregisterArgs) (bool, error) {
	if err := c.assertOneYocto(); err != nil {
		return false, err
	}

	s, err := c.state()
	if err != nil {
		return false, err
	}

	m := newMeter(c.ctx, 0)

	account := c.ctx.Predecessor()
	balance, ok, err := c.ledger.balance(account)
	if err != nil {
		return false, err
	}
	if !ok {
		c.ctx.Log(fmt.Sprintf("The account %s is not registered", account))
		return false, m.settle()
	}

	force := args.Force != nil && *args.Force
	if !balance.IsZero() {
		if !force {
			return false, fmt.Errorf("%w: %s", ErrNonZeroBalance, account)
		}
		if err = c.ledger.burn(account, balance); err != nil {
			return false, err
		}
		c.ctx.Notify(common.BurnEvent, common.SupplyDetails{
			Owner:  account,
			Amount: balance,
			Memo:   common.Memo(common.UnregisterMemo),
		}.Items()...)
	}

	if err = c.ledger.unregister(account); err != nil {
		return false, err
	}
	m.release(storageCost(c.ctx, s))

	if err = m.settle(); err != nil {
		return false, err
	}

	c.ctx.Log(fmt.Sprintf("Closed @%s with %s", account, balance.Dec()))
	return true, nil
}

func (c *call) storageBalanceBounds() (*StorageBalanceBounds, error) {
	s, err := c.state()
	if err != nil {
		return nil, err
	}

	cost := common.NewU128(storageCost(c.ctx, s))
	return &StorageBalanceBounds{Min: cost, Max: cost}, nil
}

type accountArgs struct {
	AccountID string `json:"account_id"`
}

// storageBalanceOf returns nil for unregistered accounts.
func (c *call) storageBalanceOf(args accountArgs) (*StorageBalance, error) {
	s, err := c.state()
	if err != nil {
		return nil, err
	}
	if !c.ledger.isRegistered(args.AccountID) {
		return nil, nil
	}
	return &StorageBalance{Total: common.NewU128(storageCost(c.ctx, s))}, nil
}
