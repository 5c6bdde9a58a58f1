// Package deploy brings a host to the configured ledger state.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/holiman/uint256"
	"github.com/nspcc-dev/ftledger/common"
	"github.com/nspcc-dev/ftledger/host"
	rpctoken "github.com/nspcc-dev/ftledger/rpc/token"
	"github.com/nspcc-dev/ftledger/token"
	"go.uber.org/zap"
)

// Prm groups all parameters of the ledger deployment procedure.
type Prm struct {
	// Writes progress into the log.
	Logger *zap.Logger

	// Host the ledger is deployed to.
	Host *host.Host

	// Account of the token contract.
	Contract string

	// Owner of the token. Receives the total supply and is allowed to change
	// the session vault.
	Owner string

	TotalSupply *uint256.Int

	// Token metadata, the default one is used if nil.
	Metadata *token.Metadata

	// Native funds credited to the accounts once, right before the token
	// initialization.
	Funds map[string]*uint256.Int

	// Session vault account, left unchanged if empty.
	SessionVault string

	// Additional contracts bound to their accounts on each run, e.g. transfer
	// receivers.
	Contracts map[string]host.Contract
}

// Deploy brings the host to the state described by Prm. It is safe to call
// Deploy on each start: the contract code is rebound to the existing state,
// genesis steps are done only once.
//
// Summary of stages:
//  1. binding of the token and additional contracts
//  2. genesis funding and token initialization if the token has no state
//  3. check of the stored state version
//  4. session vault update
func Deploy(ctx context.Context, prm Prm) error {
	log := prm.Logger
	if log == nil {
		log = zap.NewNop()
	}

	if err := prm.Host.Deploy(prm.Contract, token.New()); err != nil {
		return fmt.Errorf("deploy token contract: %w", err)
	}

	for _, acc := range sortedKeys(prm.Contracts) {
		if err := prm.Host.Deploy(acc, prm.Contracts[acc]); err != nil {
			return fmt.Errorf("deploy contract to %s: %w", acc, err)
		}
	}

	reader := rpctoken.NewReader(prm.Host, prm.Contract)

	supply, err := reader.TotalSupply(ctx)
	switch {
	case errors.Is(err, token.ErrNotInitialized):
		log.Info("initializing token contract...", zap.String("owner", prm.Owner))

		if err = genesis(ctx, log, prm); err != nil {
			return err
		}

		log.Info("token contract successfully initialized")
	case err != nil:
		return fmt.Errorf("check token state: %w", err)
	default:
		log.Debug("token contract is already initialized", zap.String("total supply", supply.Dec()))
	}

	v, err := reader.Version(ctx)
	if err != nil {
		return fmt.Errorf("get token contract version: %w", err)
	}
	if err = common.CheckVersion(v); err != nil {
		return err
	}

	if prm.SessionVault == "" {
		return nil
	}

	vault, err := reader.SessionVault(ctx)
	if err != nil {
		return fmt.Errorf("get session vault: %w", err)
	}
	if vault == prm.SessionVault {
		log.Debug("session vault is already set", zap.String("vault", vault))
		return nil
	}

	_, err = rpctoken.New(prm.Host, prm.Contract, prm.Owner).SetSessionVault(ctx, prm.SessionVault)
	if err != nil {
		return fmt.Errorf("set session vault: %w", err)
	}

	log.Info("session vault updated", zap.String("old", vault), zap.String("new", prm.SessionVault))
	return nil
}

func genesis(ctx context.Context, log *zap.Logger, prm Prm) error {
	supply := prm.TotalSupply
	if supply == nil {
		supply = new(uint256.Int)
	}

	_, err := rpctoken.New(prm.Host, prm.Contract, prm.Contract).
		Initialize(ctx, prm.Owner, prm.Owner, supply, prm.Metadata)
	if err != nil {
		return fmt.Errorf("initialize token contract: %w", err)
	}

	// Only an initialized ledger gets funded.
	for _, acc := range sortedKeys(prm.Funds) {
		if err = prm.Host.Fund(acc, prm.Funds[acc]); err != nil {
			return fmt.Errorf("fund %s: %w", acc, err)
		}
		log.Debug("account funded", zap.String("account", acc), zap.String("amount", prm.Funds[acc].Dec()))
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	res := make([]string, 0, len(m))
	for k := range m {
		res = append(res, k)
	}
	slices.Sort(res)
	return res
}
