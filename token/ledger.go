package token

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/nspcc-dev/ftledger/common"
	"github.com/nspcc-dev/ftledger/host"
	"github.com/nspcc-dev/neo-go/pkg/io"
)

// ledger is the balance store of a single call. The total supply is equal to
// the sum of all balances.
type ledger struct {
	st *host.Storage
}

func balanceKey(account string) []byte {
	return append(append([]byte{}, balancePrefix...), account...)
}

func encodeAmount(v *uint256.Int) []byte {
	w := io.NewBufBinWriter()
	common.EncodeU128(w.BinWriter, v)
	return w.Bytes()
}

func decodeAmount(data []byte) (*uint256.Int, error) {
	r := io.NewBinReaderFromBuf(data)
	v := common.DecodeU128(r)
	if r.Err != nil {
		return nil, fmt.Errorf("decode amount: %w", r.Err)
	}
	return v, nil
}

// balance returns the balance of the account and false if it's not
// registered.
func (l ledger) balance(account string) (*uint256.Int, bool, error) {
	data := l.st.Get(balanceKey(account))
	if data == nil {
		return new(uint256.Int), false, nil
	}

	v, err := decodeAmount(data)
	if err != nil {
		return nil, true, fmt.Errorf("balance of %s: %w", account, err)
	}
	return v, true, nil
}

func (l ledger) isRegistered(account string) bool {
	return l.st.Has(balanceKey(account))
}

func (l ledger) setBalance(account string, v *uint256.Int) error {
	return l.st.Put(balanceKey(account), encodeAmount(v))
}

func (l ledger) totalSupply() (*uint256.Int, error) {
	data := l.st.Get(supplyKey)
	if data == nil {
		return new(uint256.Int), nil
	}
	return decodeAmount(data)
}

func (l ledger) setTotalSupply(v *uint256.Int) error {
	return l.st.Put(supplyKey, encodeAmount(v))
}

// register creates zero balance entry for the account.
func (l ledger) register(account string) error {
	if l.isRegistered(account) {
		return fmt.Errorf("the account %s is already registered", account)
	}
	return l.setBalance(account, new(uint256.Int))
}

// unregister removes balance entry of the account. The balance must be zero.
func (l ledger) unregister(account string) error {
	ok, err := l.st.Delete(balanceKey(account))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotRegistered, account)
	}
	return nil
}

// credit increases the account balance.
func (l ledger) credit(account string, amount *uint256.Int) error {
	balance, ok, err := l.balance(account)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotRegistered, account)
	}

	balance, err = common.AddU128(balance, amount)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrOverflow, account)
	}
	return l.setBalance(account, balance)
}

// debit decreases the account balance.
func (l ledger) debit(account string, amount *uint256.Int) error {
	balance, ok, err := l.balance(account)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotRegistered, account)
	}
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, account, balance.Dec(), amount.Dec())
	}
	return l.setBalance(account, balance.Sub(balance, amount))
}

// mint registers the account if needed, credits it and increases the total
// supply.
func (l ledger) mint(account string, amount *uint256.Int) error {
	if !l.isRegistered(account) {
		if err := l.register(account); err != nil {
			return err
		}
	}

	supply, err := l.totalSupply()
	if err != nil {
		return err
	}
	if supply, err = common.AddU128(supply, amount); err != nil {
		return fmt.Errorf("%w: total supply", ErrOverflow)
	}

	if err = l.credit(account, amount); err != nil {
		return err
	}
	return l.setTotalSupply(supply)
}

// burn decreases the account balance and the total supply.
func (l ledger) burn(account string, amount *uint256.Int) error {
	if err := l.debit(account, amount); err != nil {
		return err
	}
	return l.burnSupply(amount)
}

// burnSupply decreases the total supply by amount that has already been
// taken off balances.
func (l ledger) burnSupply(amount *uint256.Int) error {
	supply, err := l.totalSupply()
	if err != nil {
		return err
	}
	if supply.Lt(amount) {
		return fmt.Errorf("negative total supply after burning %s", amount.Dec())
	}
	return l.setTotalSupply(supply.Sub(supply, amount))
}

// transfer moves amount between registered accounts.
func (l ledger) transfer(from, to string, amount *uint256.Int) error {
	if err := l.debit(from, amount); err != nil {
		return err
	}
	return l.credit(to, amount)
}
