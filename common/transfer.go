package common

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
)

// Notification names of the token events.
const (
	MintEvent     = "ft_mint"
	TransferEvent = "ft_transfer"
	BurnEvent     = "ft_burn"
)

// Memos of the events produced by the ledger itself.
const (
	MintMemo       = "new tokens are minted"
	RefundMemo     = "refund"
	UnregisterMemo = "storage_unregister"
)

var errInvalidEvent = errors.New("invalid event")

// TransferDetails is an ft_transfer event payload.
type TransferDetails struct {
	From   string
	To     string
	Amount *uint256.Int
	Memo   *string
}

// SupplyDetails is an ft_mint or ft_burn event payload.
type SupplyDetails struct {
	Owner  string
	Amount *uint256.Int
	Memo   *string
}

// Items returns notification items of the event.
func (d TransferDetails) Items() []stackitem.Item {
	return []stackitem.Item{
		stackitem.NewByteArray([]byte(d.From)),
		stackitem.NewByteArray([]byte(d.To)),
		stackitem.NewBigInteger(d.Amount.ToBig()),
		memoItem(d.Memo),
	}
}

// FromStackItem decodes event from notification item.
func (d *TransferDetails) FromStackItem(item stackitem.Item) error {
	fields, err := eventFields(item, 4)
	if err != nil {
		return err
	}

	if d.From, err = fieldString(fields[0]); err != nil {
		return fmt.Errorf("old owner: %w", err)
	}
	if d.To, err = fieldString(fields[1]); err != nil {
		return fmt.Errorf("new owner: %w", err)
	}
	if d.Amount, err = fieldAmount(fields[2]); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	if d.Memo, err = fieldMemo(fields[3]); err != nil {
		return fmt.Errorf("memo: %w", err)
	}
	return nil
}

// Items returns notification items of the event.
func (d SupplyDetails) Items() []stackitem.Item {
	return []stackitem.Item{
		stackitem.NewByteArray([]byte(d.Owner)),
		stackitem.NewBigInteger(d.Amount.ToBig()),
		memoItem(d.Memo),
	}
}

// FromStackItem decodes event from notification item.
func (d *SupplyDetails) FromStackItem(item stackitem.Item) error {
	fields, err := eventFields(item, 3)
	if err != nil {
		return err
	}

	if d.Owner, err = fieldString(fields[0]); err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	if d.Amount, err = fieldAmount(fields[1]); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	if d.Memo, err = fieldMemo(fields[2]); err != nil {
		return fmt.Errorf("memo: %w", err)
	}
	return nil
}

// Memo is a helper returning pointer to s.
func Memo(s string) *string {
	return &s
}

func memoItem(memo *string) stackitem.Item {
	if memo == nil {
		return stackitem.Null{}
	}
	return stackitem.NewByteArray([]byte(*memo))
}

func eventFields(item stackitem.Item, n int) ([]stackitem.Item, error) {
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return nil, fmt.Errorf("%w: not an array", errInvalidEvent)
	}
	if len(arr) != n {
		return nil, fmt.Errorf("%w: %d fields instead of %d", errInvalidEvent, len(arr), n)
	}
	return arr, nil
}

func fieldString(item stackitem.Item) (string, error) {
	b, err := item.TryBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func fieldAmount(item stackitem.Item) (*uint256.Int, error) {
	bi, err := item.TryInteger()
	if err != nil {
		return nil, err
	}

	v, overflow := uint256.FromBig(bi)
	if overflow || bi.Sign() < 0 {
		return nil, ErrU128Overflow
	}
	return v, CheckU128(v)
}

func fieldMemo(item stackitem.Item) (*string, error) {
	if _, ok := item.(stackitem.Null); ok {
		return nil, nil
	}
	s, err := fieldString(item)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
