// Package token contains typed wrappers for the fungible token ledger
// contract methods.
package token

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/nspcc-dev/ftledger/common"
	"github.com/nspcc-dev/ftledger/host"
	ledger "github.com/nspcc-dev/ftledger/token"
)

// DefaultGas is attached to state-changing calls.
const DefaultGas = 100 * ledger.TGas

// Invoker is used by ContractReader to call safe methods.
type Invoker interface {
	View(ctx context.Context, contract, method string, args []byte) ([]byte, error)
}

// Actor is used by Contract to call state-changing methods.
type Actor interface {
	Invoker

	Invoke(ctx context.Context, tx host.Tx) (*host.Result, error)
	Submit(ctx context.Context, tx host.Tx) (*host.Result, error)
}

// ContractReader implements safe contract methods.
type ContractReader struct {
	invoker  Invoker
	contract string
}

// Contract implements all contract methods on behalf of the sender account.
type Contract struct {
	ContractReader
	actor  Actor
	sender string
	gas    uint64
}

// NewReader creates an instance of ContractReader for the contract deployed
// to the given account.
func NewReader(invoker Invoker, contract string) *ContractReader {
	return &ContractReader{invoker, contract}
}

// New creates an instance of Contract calling methods as sender.
func New(actor Actor, contract, sender string) *Contract {
	return &Contract{ContractReader{actor, contract}, actor, sender, DefaultGas}
}

// SetGas changes the gas attached to state-changing calls.
func (c *Contract) SetGas(gas uint64) {
	c.gas = gas
}

func (c *ContractReader) view(ctx context.Context, method string, args any, res any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode %s arguments: %w", method, err)
	}

	data, err = c.invoker.View(ctx, c.contract, method, data)
	if err != nil {
		return err
	}

	if err = json.Unmarshal(data, res); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

func (c *ContractReader) viewAmount(ctx context.Context, method string, args any) (*uint256.Int, error) {
	var v common.U128
	if err := c.view(ctx, method, args, &v); err != nil {
		return nil, err
	}
	return v.Int(), nil
}

// Version invokes `version` method of contract.
func (c *ContractReader) Version(ctx context.Context) (int, error) {
	var v int
	if err := c.view(ctx, "version", nil, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// TotalSupply invokes `totalSupply` method of contract.
func (c *ContractReader) TotalSupply(ctx context.Context) (*uint256.Int, error) {
	return c.viewAmount(ctx, "totalSupply", nil)
}

// BalanceOf invokes `balanceOf` method of contract.
func (c *ContractReader) BalanceOf(ctx context.Context, account string) (*uint256.Int, error) {
	return c.viewAmount(ctx, "balanceOf", map[string]string{"account_id": account})
}

// StorageBalanceBounds invokes `storageBalanceBounds` method of contract.
func (c *ContractReader) StorageBalanceBounds(ctx context.Context) (*ledger.StorageBalanceBounds, error) {
	var b ledger.StorageBalanceBounds
	return &b, c.view(ctx, "storageBalanceBounds", nil, &b)
}

// StorageBalanceOf invokes `storageBalanceOf` method of contract. It returns
// nil for unregistered accounts.
func (c *ContractReader) StorageBalanceOf(ctx context.Context, account string) (*ledger.StorageBalance, error) {
	var b *ledger.StorageBalance
	if err := c.view(ctx, "storageBalanceOf", map[string]string{"account_id": account}, &b); err != nil {
		return nil, err
	}
	return b, nil
}

// SessionVault invokes `sessionVault` method of contract. Empty string is
// returned if the vault is not set.
func (c *ContractReader) SessionVault(ctx context.Context) (string, error) {
	var v *string
	if err := c.view(ctx, "sessionVault", nil, &v); err != nil || v == nil {
		return "", err
	}
	return *v, nil
}

// Metadata invokes `metadata` method of contract.
func (c *ContractReader) Metadata(ctx context.Context) (*ledger.Metadata, error) {
	var m ledger.Metadata
	return &m, c.view(ctx, "metadata", nil, &m)
}

func (c *Contract) tx(method string, args any, deposit *uint256.Int) (host.Tx, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return host.Tx{}, fmt.Errorf("encode %s arguments: %w", method, err)
	}
	return host.Tx{
		Contract:    c.contract,
		Method:      method,
		Args:        data,
		Predecessor: c.sender,
		Deposit:     deposit,
		Gas:         c.gas,
	}, nil
}

func (c *Contract) invoke(ctx context.Context, method string, args any, deposit *uint256.Int, res any) (*host.Result, error) {
	tx, err := c.tx(method, args, deposit)
	if err != nil {
		return nil, err
	}

	r, err := c.actor.Invoke(ctx, tx)
	if err != nil {
		return r, err
	}

	if res != nil {
		if err = json.Unmarshal(r.Value, res); err != nil {
			return r, fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return r, nil
}

func oneYocto() *uint256.Int {
	return uint256.NewInt(1)
}

// Transfer invokes `transfer` method of contract with 1 unit attached.
func (c *Contract) Transfer(ctx context.Context, receiver string, amount *uint256.Int, memo *string) (*host.Result, error) {
	return c.invoke(ctx, "transfer", map[string]any{
		"receiver_id": receiver,
		"amount":      common.NewU128(amount),
		"memo":        memo,
	}, oneYocto(), nil)
}

func (c *Contract) transferCallArgs(receiver string, amount *uint256.Int, memo *string, msg string) map[string]any {
	return map[string]any{
		"receiver_id": receiver,
		"amount":      common.NewU128(amount),
		"memo":        memo,
		"msg":         msg,
	}
}

// TransferCall invokes `transferCall` method of contract with 1 unit attached
// and waits for the resolution. It returns the amount used by the receiver.
func (c *Contract) TransferCall(ctx context.Context, receiver string, amount *uint256.Int, memo *string, msg string) (*uint256.Int, *host.Result, error) {
	var used common.U128
	res, err := c.invoke(ctx, "transferCall", c.transferCallArgs(receiver, amount, memo, msg), oneYocto(), &used)
	if err != nil {
		return nil, res, err
	}
	return used.Int(), res, nil
}

// TransferCallAsync invokes `transferCall` method of contract without waiting
// for the receiver. The callout is left pending, see host.Host.Process.
func (c *Contract) TransferCallAsync(ctx context.Context, receiver string, amount *uint256.Int, memo *string, msg string) (*host.Result, error) {
	tx, err := c.tx("transferCall", c.transferCallArgs(receiver, amount, memo, msg), oneYocto())
	if err != nil {
		return nil, err
	}
	return c.actor.Submit(ctx, tx)
}

// StorageDeposit invokes `storageDeposit` method of contract. Empty account
// means the sender.
func (c *Contract) StorageDeposit(ctx context.Context, account string, registrationOnly bool, deposit *uint256.Int) (*ledger.StorageBalance, *host.Result, error) {
	args := map[string]any{"registration_only": registrationOnly}
	if account != "" {
		args["account_id"] = account
	}

	var b ledger.StorageBalance
	res, err := c.invoke(ctx, "storageDeposit", args, deposit, &b)
	if err != nil {
		return nil, res, err
	}
	return &b, res, nil
}

// StorageWithdraw invokes `storageWithdraw` method of contract with 1 unit
// attached. Nil amount withdraws everything available.
func (c *Contract) StorageWithdraw(ctx context.Context, amount *uint256.Int) (*ledger.StorageBalance, *host.Result, error) {
	args := make(map[string]any)
	if amount != nil {
		args["amount"] = common.NewU128(amount)
	}

	var b ledger.StorageBalance
	res, err := c.invoke(ctx, "storageWithdraw", args, oneYocto(), &b)
	if err != nil {
		return nil, res, err
	}
	return &b, res, nil
}

// StorageUnregister invokes `storageUnregister` method of contract with 1
// unit attached.
func (c *Contract) StorageUnregister(ctx context.Context, force bool) (bool, *host.Result, error) {
	var ok bool
	res, err := c.invoke(ctx, "storageUnregister", map[string]any{"force": force}, oneYocto(), &ok)
	return ok, res, err
}

// SetSessionVault invokes `setSessionVault` method of contract.
func (c *Contract) SetSessionVault(ctx context.Context, vault string) (*host.Result, error) {
	return c.invoke(ctx, "setSessionVault", map[string]string{"session_vault_id": vault}, nil, nil)
}

// Initialize invokes `initialize` method of contract on behalf of the
// contract account. The signer becomes the contract owner. Nil metadata means
// `initializeDefault`.
func (c *Contract) Initialize(ctx context.Context, signer, owner string, supply *uint256.Int, md *ledger.Metadata) (*host.Result, error) {
	method := "initializeDefault"
	args := map[string]any{
		"owner_id":     owner,
		"total_supply": common.NewU128(supply),
	}
	if md != nil {
		method = "initialize"
		args["metadata"] = md
	}

	tx, err := c.tx(method, args, nil)
	if err != nil {
		return nil, err
	}
	tx.Predecessor = c.contract
	tx.Signer = signer
	return c.actor.Invoke(ctx, tx)
}

// TransferEvents returns ft_transfer events of the committed calls.
func TransferEvents(res *host.Result) ([]common.TransferDetails, error) {
	var evs []common.TransferDetails
	for _, n := range res.Notifications() {
		if n.Name != common.TransferEvent {
			continue
		}

		var d common.TransferDetails
		if err := d.FromStackItem(n.Item); err != nil {
			return nil, fmt.Errorf("%s event: %w", n.Name, err)
		}
		evs = append(evs, d)
	}
	return evs, nil
}

// SupplyEvents returns ft_mint or ft_burn events of the committed calls.
func SupplyEvents(res *host.Result, name string) ([]common.SupplyDetails, error) {
	var evs []common.SupplyDetails
	for _, n := range res.Notifications() {
		if n.Name != name {
			continue
		}

		var d common.SupplyDetails
		if err := d.FromStackItem(n.Item); err != nil {
			return nil, fmt.Errorf("%s event: %w", n.Name, err)
		}
		evs = append(evs, d)
	}
	return evs, nil
}
