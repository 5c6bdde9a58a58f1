package token

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/nspcc-dev/ftledger/common"
	"github.com/nspcc-dev/ftledger/host"
	"github.com/nspcc-dev/neo-go/pkg/smartcontract"
	"github.com/nspcc-dev/neo-go/pkg/smartcontract/manifest"
)

// Name is the contract name in the manifest.
const Name = "FungibleToken"

const (
	methodInitialize           = "initialize"
	methodInitializeDefault    = "initializeDefault"
	methodTransfer             = "transfer"
	methodTransferCall         = "transferCall"
	methodResolveTransfer      = "resolveTransfer"
	methodTotalSupply          = "totalSupply"
	methodBalanceOf            = "balanceOf"
	methodStorageDeposit       = "storageDeposit"
	methodStorageWithdraw      = "storageWithdraw"
	methodStorageUnregister    = "storageUnregister"
	methodStorageBalanceBounds = "storageBalanceBounds"
	methodStorageBalanceOf     = "storageBalanceOf"
	methodSetSessionVault      = "setSessionVault"
	methodSessionVault         = "sessionVault"
	methodMetadata             = "metadata"
	methodVersion              = "version"
)

type method struct {
	safe   bool
	params []manifest.Parameter
	ret    smartcontract.ParamType
	invoke func(c *call, args []byte) (any, error)
}

// withArgs decodes JSON arguments for f. Empty arguments are treated as an
// empty object.
func withArgs[T any](f func(*call, T) (any, error)) func(*call, []byte) (any, error) {
	return func(c *call, data []byte) (any, error) {
		var args T
		if len(data) != 0 {
			if err := json.Unmarshal(data, &args); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
			}
		}
		return f(c, args)
	}
}

func noArgs(f func(*call) (any, error)) func(*call, []byte) (any, error) {
	return func(c *call, _ []byte) (any, error) {
		return f(c)
	}
}

func param(name string, typ smartcontract.ParamType) manifest.Parameter {
	return manifest.NewParameter(name, typ)
}

var methods = map[string]method{
	methodInitialize: {
		params: []manifest.Parameter{
			param("owner_id", smartcontract.StringType),
			param("total_supply", smartcontract.IntegerType),
			param("metadata", smartcontract.MapType),
		},
		ret: smartcontract.VoidType,
		invoke: withArgs(func(c *call, args initializeArgs) (any, error) {
			return nil, c.initialize(args)
		}),
	},
	methodInitializeDefault: {
		params: []manifest.Parameter{
			param("owner_id", smartcontract.StringType),
			param("total_supply", smartcontract.IntegerType),
		},
		ret: smartcontract.VoidType,
		invoke: withArgs(func(c *call, args initializeArgs) (any, error) {
			args.Metadata = DefaultMetadata()
			return nil, c.initialize(args)
		}),
	},
	methodTransfer: {
		params: []manifest.Parameter{
			param("receiver_id", smartcontract.StringType),
			param("amount", smartcontract.IntegerType),
			param("memo", smartcontract.StringType),
		},
		ret: smartcontract.VoidType,
		invoke: withArgs(func(c *call, args transferArgs) (any, error) {
			return nil, c.transfer(args)
		}),
	},
	methodTransferCall: {
		params: []manifest.Parameter{
			param("receiver_id", smartcontract.StringType),
			param("amount", smartcontract.IntegerType),
			param("memo", smartcontract.StringType),
			param("msg", smartcontract.StringType),
		},
		ret: smartcontract.IntegerType,
		invoke: withArgs(func(c *call, args transferCallArgs) (any, error) {
			return nil, c.transferCall(args)
		}),
	},
	methodResolveTransfer: {
		params: []manifest.Parameter{
			param("sender_id", smartcontract.StringType),
			param("receiver_id", smartcontract.StringType),
			param("amount", smartcontract.IntegerType),
		},
		ret: smartcontract.IntegerType,
		invoke: withArgs(func(c *call, args resolveTransferArgs) (any, error) {
			return c.resolveTransfer(args)
		}),
	},
	methodTotalSupply: {
		safe: true,
		ret:  smartcontract.IntegerType,
		invoke: noArgs(func(c *call) (any, error) {
			if _, err := c.state(); err != nil {
				return nil, err
			}
			v, err := c.ledger.totalSupply()
			if err != nil {
				return nil, err
			}
			return common.NewU128(v), nil
		}),
	},
	methodBalanceOf: {
		safe:   true,
		params: []manifest.Parameter{param("account_id", smartcontract.StringType)},
		ret:    smartcontract.IntegerType,
		invoke: withArgs(func(c *call, args accountArgs) (any, error) {
			if _, err := c.state(); err != nil {
				return nil, err
			}
			v, _, err := c.ledger.balance(args.AccountID)
			if err != nil {
				return nil, err
			}
			return common.NewU128(v), nil
		}),
	},
	methodStorageDeposit: {
		params: []manifest.Parameter{
			param("account_id", smartcontract.StringType),
			param("registration_only", smartcontract.BoolType),
		},
		ret: smartcontract.MapType,
		invoke: withArgs(func(c *call, args storageDepositArgs) (any, error) {
			return c.storageDeposit(args)
		}),
	},
	methodStorageWithdraw: {
		params: []manifest.Parameter{param("amount", smartcontract.IntegerType)},
		ret:    smartcontract.MapType,
		invoke: withArgs(func(c *call, args storageWithdrawArgs) (any, error) {
			return c.storageWithdraw(args)
		}),
	},
	methodStorageUnregister: {
		params: []manifest.Parameter{param("force", smartcontract.BoolType)},
		ret:    smartcontract.BoolType,
		invoke: withArgs(func(c *call, args storageUnregisterArgs) (any, error) {
			return c.storageUnregister(args)
		}),
	},
	methodStorageBalanceBounds: {
		safe: true,
		ret:  smartcontract.MapType,
		invoke: noArgs(func(c *call) (any, error) {
			return c.storageBalanceBounds()
		}),
	},
	methodStorageBalanceOf: {
		safe:   true,
		params: []manifest.Parameter{param("account_id", smartcontract.StringType)},
		ret:    smartcontract.MapType,
		invoke: withArgs(func(c *call, args accountArgs) (any, error) {
			return c.storageBalanceOf(args)
		}),
	},
	methodSetSessionVault: {
		params: []manifest.Parameter{param("session_vault_id", smartcontract.StringType)},
		ret:    smartcontract.VoidType,
		invoke: withArgs(func(c *call, args setSessionVaultArgs) (any, error) {
			return nil, c.setSessionVault(args)
		}),
	},
	methodSessionVault: {
		safe: true,
		ret:  smartcontract.StringType,
		invoke: noArgs(func(c *call) (any, error) {
			return c.sessionVault()
		}),
	},
	methodMetadata: {
		safe: true,
		ret:  smartcontract.MapType,
		invoke: noArgs(func(c *call) (any, error) {
			s, err := c.state()
			if err != nil {
				return nil, err
			}
			return s.Metadata, nil
		}),
	},
	methodVersion: {
		safe: true,
		ret:  smartcontract.IntegerType,
		invoke: noArgs(func(*call) (any, error) {
			return common.Version, nil
		}),
	},
}

// Contract is the token ledger code. It keeps no state of its own, so a
// single value can be deployed to many accounts.
type Contract struct {
	m *manifest.Manifest
}

// New returns the token contract.
func New() *Contract {
	m := manifest.NewManifest(Name)
	m.SupportedStandards = []string{"NEP-141", "NEP-145", "NEP-148"}

	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		desc := methods[name]
		m.ABI.Methods = append(m.ABI.Methods, manifest.Method{
			Name:       name,
			Parameters: desc.params,
			ReturnType: desc.ret,
			Safe:       desc.safe,
		})
	}

	for _, name := range []string{common.MintEvent, common.BurnEvent} {
		m.ABI.Events = append(m.ABI.Events, manifest.Event{
			Name: name,
			Parameters: []manifest.Parameter{
				param("owner_id", smartcontract.StringType),
				param("amount", smartcontract.IntegerType),
				param("memo", smartcontract.StringType),
			},
		})
	}
	m.ABI.Events = append(m.ABI.Events, manifest.Event{
		Name: common.TransferEvent,
		Parameters: []manifest.Parameter{
			param("old_owner_id", smartcontract.StringType),
			param("new_owner_id", smartcontract.StringType),
			param("amount", smartcontract.IntegerType),
			param("memo", smartcontract.StringType),
		},
	})

	return &Contract{m: m}
}

// Manifest implements host.Contract.
func (c *Contract) Manifest() *manifest.Manifest {
	return c.m
}

// Call implements host.Contract.
func (c *Contract) Call(ctx *host.Context, name string, args []byte) ([]byte, error) {
	m, ok := methods[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", host.ErrUnknownMethod, name)
	}

	res, err := m.invoke(&call{ctx: ctx, ledger: ledger{st: ctx.Storage()}}, args)
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

// call is a single contract method execution.
type call struct {
	ctx    *host.Context
	ledger ledger
	st     *contractState
}

func (c *call) state() (*contractState, error) {
	if c.st == nil {
		s, err := getState(c.ctx.Storage())
		if err != nil {
			return nil, err
		}
		c.st = s
	}
	return c.st, nil
}

type initializeArgs struct {
	OwnerID     string      `json:"owner_id"`
	TotalSupply common.U128 `json:"total_supply"`
	Metadata    Metadata    `json:"metadata"`
}

// initialize sets the signer as the owner, measures the cost of a balance
// entry and mints the total supply to owner_id.
func (c *call) initialize(args initializeArgs) error {
	if err := c.assertPrivate(); err != nil {
		return err
	}
	if c.ctx.Storage().Has(stateKey) {
		return ErrAlreadyInitialized
	}
	if err := checkAccountID(args.OwnerID); err != nil {
		return err
	}
	if err := args.Metadata.Validate(); err != nil {
		return err
	}

	usage, err := measureAccountStorage(c.ledger)
	if err != nil {
		return fmt.Errorf("measure account storage: %w", err)
	}

	s := &contractState{
		Version:             common.Version,
		Owner:               c.ctx.Signer(),
		AccountStorageUsage: usage,
		Metadata:            args.Metadata,
	}
	if err = putState(c.ctx.Storage(), s); err != nil {
		return err
	}

	amount := args.TotalSupply.Int()
	if err = c.ledger.mint(args.OwnerID, amount); err != nil {
		return err
	}

	c.ctx.Notify(common.MintEvent, common.SupplyDetails{
		Owner:  args.OwnerID,
		Amount: amount,
		Memo:   common.Memo(common.MintMemo),
	}.Items()...)
	return nil
}
