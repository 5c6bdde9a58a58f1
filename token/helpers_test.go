package token_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/nspcc-dev/ftledger/common"
	"github.com/nspcc-dev/ftledger/host"
	"github.com/nspcc-dev/ftledger/internal/testcontracts/ftrecv"
	"github.com/nspcc-dev/ftledger/token"
	"github.com/nspcc-dev/neo-go/pkg/core/storage"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	tokenAccount    = "token"
	receiverAccount = "receiver"
	owner           = "owner"
	user1           = "user1"
	user2           = "user2"

	totalSupply uint64 = 1_000_000_000_000_000
)

var one = uint256.NewInt(1)

func amount(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// nativeFunds is the initial native balance of test accounts.
func nativeFunds() *uint256.Int {
	v, err := uint256.FromDecimal("1000000000000000000000000000")
	if err != nil {
		panic(err)
	}
	return v
}

// registrationCost is the expected storage deposit of an account.
func registrationCost() *uint256.Int {
	key := append([]byte{'a'}, strings.Repeat("a", 64)...)
	size := host.ItemSize(key, make([]byte, 16))
	return new(uint256.Int).Mul(host.DefaultStorageBytePrice, uint256.NewInt(size))
}

type testLedger struct {
	t *testing.T
	h *host.Host
}

func newTestHost(t *testing.T) *host.Host {
	return openTestHost(t, storage.NewMemoryStore())
}

// openTestHost returns host working over the given store, as after restart.
func openTestHost(t *testing.T, store storage.Store) *host.Host {
	h := host.New(store, host.Options{
		Logger:         zaptest.NewLogger(t),
		CalloutTimeout: 100 * time.Millisecond,
	})
	t.Cleanup(func() { _ = h.Close() })
	return h
}

// newTestLedger deploys token with the default metadata and total supply
// minted to the owner along with a receiver contract.
func newTestLedger(t *testing.T) *testLedger {
	l := newUninitialized(t)
	l.initialize()
	return l
}

func (l *testLedger) initialize() {
	t := l.t
	_, err := l.invoke(host.Tx{
		Method:      "initializeDefault",
		Args:        mustJSON(t, map[string]any{"owner_id": owner, "total_supply": common.U128From64(totalSupply)}),
		Predecessor: tokenAccount,
		Signer:      owner,
	})
	require.NoError(t, err)
}

func newUninitialized(t *testing.T) *testLedger {
	h := newTestHost(t)
	deployContracts(t, h)

	for _, acc := range []string{owner, user1, user2, receiverAccount} {
		require.NoError(t, h.Fund(acc, nativeFunds()))
	}
	return &testLedger{t: t, h: h}
}

func deployContracts(t *testing.T, h *host.Host) {
	require.NoError(t, h.Deploy(tokenAccount, token.New()))
	require.NoError(t, h.Deploy(receiverAccount, ftrecv.New(common.U128From64(0))))
}

func mustJSON(t *testing.T, v any) []byte {
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func (l *testLedger) invoke(tx host.Tx) (*host.Result, error) {
	tx.Contract = tokenAccount
	if tx.Gas == 0 {
		tx.Gas = 100 * token.TGas
	}
	return l.h.Invoke(context.Background(), tx)
}

func (l *testLedger) call(from, method string, deposit *uint256.Int, args any) (*host.Result, error) {
	return l.invoke(host.Tx{
		Method:      method,
		Args:        mustJSON(l.t, args),
		Predecessor: from,
		Deposit:     deposit,
	})
}

func (l *testLedger) view(method string, args any, res any) {
	data, err := l.h.View(context.Background(), tokenAccount, method, mustJSON(l.t, args))
	require.NoError(l.t, err)
	require.NoError(l.t, json.Unmarshal(data, res))
}

func (l *testLedger) balanceOf(account string) *uint256.Int {
	var v common.U128
	l.view("balanceOf", map[string]string{"account_id": account}, &v)
	return v.Int()
}

func (l *testLedger) totalSupply() *uint256.Int {
	var v common.U128
	l.view("totalSupply", nil, &v)
	return v.Int()
}

func (l *testLedger) bounds() token.StorageBalanceBounds {
	var b token.StorageBalanceBounds
	l.view("storageBalanceBounds", nil, &b)
	return b
}

func (l *testLedger) storageBalanceOf(account string) *token.StorageBalance {
	var b *token.StorageBalance
	l.view("storageBalanceOf", map[string]string{"account_id": account}, &b)
	return b
}

func (l *testLedger) native(account string) *uint256.Int {
	v, err := l.h.NativeBalance(account)
	require.NoError(l.t, err)
	return v
}

func (l *testLedger) register(account string) {
	_, err := l.call(account, "storageDeposit", l.bounds().Min.Int(), nil)
	require.NoError(l.t, err)
}

func (l *testLedger) transfer(from, to string, v uint64) {
	_, err := l.call(from, "transfer", one, map[string]any{"receiver_id": to, "amount": common.U128From64(v)})
	require.NoError(l.t, err)
}

func (l *testLedger) transferCallTx(from, to string, v uint64, msg string) host.Tx {
	return host.Tx{
		Contract:    tokenAccount,
		Method:      "transferCall",
		Args:        mustJSON(l.t, map[string]any{"receiver_id": to, "amount": common.U128From64(v), "msg": msg}),
		Predecessor: from,
		Deposit:     one,
		Gas:         100 * token.TGas,
	}
}

// requireBalances checks balances of the accounts and that the total supply
// is equal to their sum.
func (l *testLedger) requireBalances(exp map[string]uint64) {
	sum := new(uint256.Int)
	for acc, v := range exp {
		require.Equal(l.t, amount(v), l.balanceOf(acc), acc)
		sum.Add(sum, amount(v))
	}
	require.Equal(l.t, sum, l.totalSupply())
}

func decodeU128(t *testing.T, data []byte) *uint256.Int {
	var v common.U128
	require.NoError(t, json.Unmarshal(data, &v))
	return v.Int()
}

func notifications(res *host.Result, name string) []host.Notification {
	var ns []host.Notification
	for _, n := range res.Notifications() {
		if n.Name == name {
			ns = append(ns, n)
		}
	}
	return ns
}
