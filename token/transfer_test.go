package token_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/nspcc-dev/ftledger/common"
	"github.com/nspcc-dev/ftledger/host"
	"github.com/nspcc-dev/ftledger/internal/testcontracts/ftrecv"
	"github.com/nspcc-dev/ftledger/token"
	"github.com/nspcc-dev/neo-go/pkg/core/storage"
	"github.com/stretchr/testify/require"
)

func TestTransfer(t *testing.T) {
	l := newTestLedger(t)
	l.register(user1)

	transferAmount := totalSupply / 10
	res, err := l.call(owner, "transfer", one, map[string]any{
		"receiver_id": user1,
		"amount":      common.U128From64(transferAmount),
		"memo":        "thanks",
	})
	require.NoError(t, err)

	require.Equal(t, amount(900_000_000_000_000), l.balanceOf(owner))
	require.Equal(t, amount(100_000_000_000_000), l.balanceOf(user1))
	require.Equal(t, amount(totalSupply), l.totalSupply())

	ns := notifications(res, common.TransferEvent)
	require.Len(t, ns, 1)

	var d common.TransferDetails
	require.NoError(t, d.FromStackItem(ns[0].Item))
	require.Equal(t, owner, d.From)
	require.Equal(t, user1, d.To)
	require.Equal(t, amount(transferAmount), d.Amount)
	require.Equal(t, "thanks", *d.Memo)

	require.Empty(t, res.Refunds())
}

func TestTransfer_Fails(t *testing.T) {
	const transferAmount = totalSupply / 10

	for _, tc := range []struct {
		name    string
		from    string
		to      string
		amount  uint64
		deposit *uint256.Int
		err     error
	}{
		{"self receiver", owner, owner, transferAmount, one, token.ErrSelfTransfer},
		{"zero amount", owner, user1, 0, one, token.ErrZeroAmount},
		{"zero deposit", owner, user1, transferAmount, nil, token.ErrInsufficientAttachedPayment},
		{"two units attached", owner, user1, transferAmount, uint256.NewInt(2), token.ErrInsufficientAttachedPayment},
		{"non-registered sender", user2, user1, transferAmount, one, token.ErrAccountNotRegistered},
		{"non-registered receiver", owner, user2, transferAmount, one, token.ErrAccountNotRegistered},
		{"amount greater than balance", owner, user1, totalSupply + 10, one, token.ErrInsufficientBalance},
	} {
		t.Run(tc.name, func(t *testing.T) {
			l := newTestLedger(t)
			l.register(user1)

			_, err := l.call(tc.from, "transfer", tc.deposit, map[string]any{
				"receiver_id": tc.to,
				"amount":      common.U128From64(tc.amount),
			})
			require.ErrorIs(t, err, tc.err)

			l.requireBalances(map[string]uint64{owner: totalSupply, user1: 0})
			require.True(t, l.balanceOf(user2).IsZero())
		})
	}
}

func TestTransfer_MaxSupply(t *testing.T) {
	l := newUninitialized(t)

	_, err := l.invoke(host.Tx{
		Method: "initializeDefault",
		Args: mustJSON(t, map[string]any{
			"owner_id":     owner,
			"total_supply": common.NewU128(common.MaxU128),
		}),
		Predecessor: tokenAccount,
	})
	require.NoError(t, err)

	l.register(user1)
	l.transfer(owner, user1, 10)
	require.Equal(t, common.MaxU128, l.totalSupply())
	require.Equal(t, new(uint256.Int).Sub(common.MaxU128, amount(10)), l.balanceOf(owner))
}

func TestTransfer_Conservation(t *testing.T) {
	l := newTestLedger(t)

	accounts := []string{owner, user1, user2, "user3", "user4"}
	for _, acc := range accounts[1:] {
		require.NoError(t, l.h.Fund(acc, nativeFunds()))
		l.register(acc)
	}

	balances := map[string]uint64{owner: totalSupply}
	for _, acc := range accounts[1:] {
		balances[acc] = 0
	}

	for i := 0; i < 40; i++ {
		from := accounts[i%len(accounts)]
		to := accounts[(i*3+1)%len(accounts)]
		v := uint64(i*7919+1) * 1_000_000_000

		_, err := l.call(from, "transfer", one, map[string]any{"receiver_id": to, "amount": common.U128From64(v)})
		switch {
		case from == to:
			require.ErrorIs(t, err, token.ErrSelfTransfer)
		case balances[from] < v:
			require.ErrorIs(t, err, token.ErrInsufficientBalance)
		default:
			require.NoError(t, err, fmt.Sprintf("%s -> %s", from, to))
			balances[from] -= v
			balances[to] += v
		}

		l.requireBalances(balances)
	}
}

func TestTransferCall(t *testing.T) {
	const transferAmount = 1_000_000

	for _, tc := range []struct {
		name string
		msg  string
		used uint64
	}{
		{"use all", "", transferAmount},
		{"return part", "return:400000", 600_000},
		{"return all", "return:1000000", 0},
		{"return more", "return:5000000", 0},
		{"malformed reply", ftrecv.MsgGarbage, 0},
		{"receiver fails", ftrecv.MsgFail, 0},
		{"receiver panics", ftrecv.MsgPanic, 0},
		{"receiver hangs", ftrecv.MsgHang, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			l := newTestLedger(t)
			l.register(receiverAccount)

			res, err := l.h.Invoke(context.Background(), l.transferCallTx(owner, receiverAccount, transferAmount, tc.msg))
			require.NoError(t, err)
			require.Equal(t, amount(tc.used), decodeU128(t, res.Value))

			l.requireBalances(map[string]uint64{
				owner:           totalSupply - tc.used,
				receiverAccount: tc.used,
			})

			refunds := notifications(res, common.TransferEvent)
			if tc.used == transferAmount {
				require.Len(t, refunds, 1)
			} else {
				require.Len(t, refunds, 2)

				var d common.TransferDetails
				require.NoError(t, d.FromStackItem(refunds[1].Item))
				require.Equal(t, receiverAccount, d.From)
				require.Equal(t, owner, d.To)
				require.Equal(t, amount(transferAmount-tc.used), d.Amount)
				require.Equal(t, common.RefundMemo, *d.Memo)
			}

			ps, err := l.h.Pending()
			require.NoError(t, err)
			require.Empty(t, ps)
		})
	}
}

func TestTransferCall_ReceiverArgs(t *testing.T) {
	l := newTestLedger(t)
	l.register(receiverAccount)

	_, err := l.h.Invoke(context.Background(), l.transferCallTx(owner, receiverAccount, 500, "return:100"))
	require.NoError(t, err)

	data, err := l.h.View(context.Background(), receiverAccount, "lastCall", nil)
	require.NoError(t, err)

	var c ftrecv.Call
	require.NoError(t, json.Unmarshal(data, &c))
	require.Equal(t, ftrecv.Call{
		Token:    tokenAccount,
		SenderID: owner,
		Amount:   common.U128From64(500),
		Msg:      "return:100",
	}, c)
}

func TestTransferCall_Gas(t *testing.T) {
	l := newTestLedger(t)
	l.register(receiverAccount)

	tx := l.transferCallTx(owner, receiverAccount, 1000, "")

	tx.Gas = 10 * token.TGas
	_, err := l.h.Invoke(context.Background(), tx)
	require.ErrorIs(t, err, token.ErrInsufficientGas)

	tx.Gas = token.GasForTransferCall
	_, err = l.h.Invoke(context.Background(), tx)
	require.ErrorIs(t, err, token.ErrInsufficientGas)

	l.requireBalances(map[string]uint64{owner: totalSupply, receiverAccount: 0})

	// enough to start the call, not enough for the receiver to run
	tx.Gas = token.GasForTransferCall + 1
	res, err := l.h.Invoke(context.Background(), tx)
	require.NoError(t, err)
	require.True(t, decodeU128(t, res.Value).IsZero())

	l.requireBalances(map[string]uint64{owner: totalSupply, receiverAccount: 0})
}

func TestTransferCall_Fails(t *testing.T) {
	const transferAmount = totalSupply / 10

	for _, tc := range []struct {
		name    string
		from    string
		to      string
		amount  uint64
		deposit *uint256.Int
		err     error
	}{
		{"self receiver", owner, owner, transferAmount, one, token.ErrSelfTransfer},
		{"zero amount", owner, user1, 0, one, token.ErrZeroAmount},
		{"zero deposit", owner, user1, transferAmount, nil, token.ErrInsufficientAttachedPayment},
		{"non-registered sender", user2, user1, transferAmount, one, token.ErrAccountNotRegistered},
		{"non-registered receiver", owner, user2, transferAmount, one, token.ErrAccountNotRegistered},
		{"amount greater than balance", owner, user1, totalSupply + 10, one, token.ErrInsufficientBalance},
	} {
		t.Run(tc.name, func(t *testing.T) {
			l := newTestLedger(t)
			l.register(user1)

			tx := l.transferCallTx(tc.from, tc.to, tc.amount, "")
			tx.Deposit = tc.deposit

			_, err := l.h.Invoke(context.Background(), tx)
			require.ErrorIs(t, err, tc.err)

			l.requireBalances(map[string]uint64{owner: totalSupply, user1: 0})

			ps, err := l.h.Pending()
			require.NoError(t, err)
			require.Empty(t, ps)
		})
	}
}

func TestTransferCall_Provisional(t *testing.T) {
	l := newTestLedger(t)
	l.register(user1)

	// user1 is not a contract, so the call fails and everything is returned
	transferAmount := totalSupply / 10
	res, err := l.h.Submit(context.Background(), l.transferCallTx(owner, user1, transferAmount, ""))
	require.NoError(t, err)
	require.Len(t, res.Pending, 1)

	l.requireBalances(map[string]uint64{owner: totalSupply - transferAmount, user1: transferAmount})

	res, err = l.h.Process(context.Background(), res.Pending[0])
	require.NoError(t, err)
	require.True(t, decodeU128(t, res.Value).IsZero())

	l.requireBalances(map[string]uint64{owner: totalSupply, user1: 0})
}

func TestTransferCall_Recover(t *testing.T) {
	l := newTestLedger(t)
	l.register(receiverAccount)

	for i := 0; i < 3; i++ {
		res, err := l.h.Submit(context.Background(), l.transferCallTx(owner, receiverAccount, 1000, ""))
		require.NoError(t, err)
		require.Len(t, res.Pending, 1)
	}
	l.requireBalances(map[string]uint64{owner: totalSupply - 3000, receiverAccount: 3000})

	rs, err := l.h.Recover(context.Background())
	require.NoError(t, err)
	require.Len(t, rs, 3)
	for _, r := range rs {
		require.True(t, decodeU128(t, r.Value).IsZero())
	}

	l.requireBalances(map[string]uint64{owner: totalSupply, receiverAccount: 0})
}

func TestTransferCall_RecoverAfterRestart(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	l := &testLedger{t: t, h: openTestHost(t, store)}
	deployContracts(t, l.h)
	require.NoError(t, l.h.Fund(owner, nativeFunds()))
	require.NoError(t, l.h.Fund(receiverAccount, nativeFunds()))
	l.initialize()
	l.register(receiverAccount)

	res, err := l.h.Submit(ctx, l.transferCallTx(owner, receiverAccount, 1000, ""))
	require.NoError(t, err)
	require.Len(t, res.Pending, 1)

	l.h = openTestHost(t, store)

	// no code is bound yet, callouts must survive
	rs, err := l.h.Recover(ctx)
	require.ErrorIs(t, err, host.ErrUnknownContract)
	require.Empty(t, rs)

	ps, err := l.h.Pending()
	require.NoError(t, err)
	require.Len(t, ps, 1)
	require.Equal(t, res.Pending[0], ps[0].ID)

	deployContracts(t, l.h)
	l.requireBalances(map[string]uint64{owner: totalSupply - 1000, receiverAccount: 1000})

	rs, err = l.h.Recover(ctx)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	require.True(t, decodeU128(t, rs[0].Value).IsZero())

	l.requireBalances(map[string]uint64{owner: totalSupply, receiverAccount: 0})

	ps, err = l.h.Pending()
	require.NoError(t, err)
	require.Empty(t, ps)
}

func TestTransferCall_MalformedReply(t *testing.T) {
	l := newTestLedger(t)
	l.register(receiverAccount)

	res, err := l.h.Submit(context.Background(), l.transferCallTx(owner, receiverAccount, 1000, ftrecv.MsgGarbage))
	require.NoError(t, err)
	require.Len(t, res.Pending, 1)

	res, err = l.h.Process(context.Background(), res.Pending[0])
	require.NoError(t, err)
	require.True(t, decodeU128(t, res.Value).IsZero())

	var found bool
	for _, msg := range res.Logs() {
		if strings.HasPrefix(msg, "Ignoring reply of @receiver: ") {
			require.Contains(t, msg, token.ErrMalformedCalloutReply.Error())
			found = true
		}
	}
	require.True(t, found, "logs: %v", res.Logs())

	l.requireBalances(map[string]uint64{owner: totalSupply, receiverAccount: 0})
}

func TestTransferCall_SenderDeleted(t *testing.T) {
	l := newTestLedger(t)
	l.register(user1)
	l.register(receiverAccount)
	l.transfer(owner, user1, 100)

	res, err := l.h.Submit(context.Background(), l.transferCallTx(user1, receiverAccount, 100, "return:30"))
	require.NoError(t, err)
	require.Len(t, res.Pending, 1)

	_, err = l.call(user1, "storageUnregister", one, nil)
	require.NoError(t, err)

	res, err = l.h.Process(context.Background(), res.Pending[0])
	require.NoError(t, err)
	require.Equal(t, amount(70), decodeU128(t, res.Value))

	require.Equal(t, []string{"The account of the sender was deleted", "Account @user1 burned 30"}, res.Logs())

	ns := notifications(res, common.BurnEvent)
	require.Len(t, ns, 1)
	var d common.SupplyDetails
	require.NoError(t, d.FromStackItem(ns[0].Item))
	require.Equal(t, receiverAccount, d.Owner)
	require.Equal(t, amount(30), d.Amount)
	require.Equal(t, common.RefundMemo, *d.Memo)

	require.Equal(t, amount(totalSupply-30), l.totalSupply())
	l.requireBalances(map[string]uint64{owner: totalSupply - 100, receiverAccount: 70})
}

func TestTransferCall_ReceiverSpent(t *testing.T) {
	l := newTestLedger(t)
	l.register(user1)
	l.register(receiverAccount)

	res, err := l.h.Submit(context.Background(), l.transferCallTx(owner, receiverAccount, 100, "return:100"))
	require.NoError(t, err)
	require.Len(t, res.Pending, 1)

	// the receiver moves tokens away before the resolution
	l.transfer(receiverAccount, user1, 60)

	res, err = l.h.Process(context.Background(), res.Pending[0])
	require.NoError(t, err)
	require.Equal(t, amount(60), decodeU128(t, res.Value))

	l.requireBalances(map[string]uint64{owner: totalSupply - 60, user1: 60, receiverAccount: 0})
}

func TestResolveTransfer_Private(t *testing.T) {
	l := newTestLedger(t)
	l.register(user1)

	_, err := l.call(user1, "resolveTransfer", nil, map[string]any{
		"sender_id":   user1,
		"receiver_id": owner,
		"amount":      common.U128From64(totalSupply),
	})
	require.ErrorIs(t, err, token.ErrPrivateMethod)

	l.requireBalances(map[string]uint64{owner: totalSupply, user1: 0})
}
