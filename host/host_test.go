package host

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/core/storage"
	"github.com/nspcc-dev/neo-go/pkg/smartcontract/manifest"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type handler func(*Context, []byte) ([]byte, error)

type testContract struct {
	m        *manifest.Manifest
	handlers map[string]handler
}

func newTestContract(name string, handlers map[string]handler, safe ...string) *testContract {
	m := manifest.NewManifest(name)
	for method := range handlers {
		m.ABI.Methods = append(m.ABI.Methods, manifest.Method{Name: method})
	}
	for _, method := range safe {
		for i := range m.ABI.Methods {
			if m.ABI.Methods[i].Name == method {
				m.ABI.Methods[i].Safe = true
			}
		}
	}
	return &testContract{m: m, handlers: handlers}
}

func (c *testContract) Manifest() *manifest.Manifest { return c.m }

func (c *testContract) Call(ctx *Context, method string, args []byte) ([]byte, error) {
	return c.handlers[method](ctx, args)
}

var errBoom = errors.New("boom")

// newKV returns a contract storing args under "k" and reading them back.
func newKV() *testContract {
	return newTestContract("kv", map[string]handler{
		"put": func(ctx *Context, args []byte) ([]byte, error) {
			return nil, ctx.Storage().Put([]byte("k"), args)
		},
		"putFail": func(ctx *Context, args []byte) ([]byte, error) {
			if err := ctx.Storage().Put([]byte("k"), args); err != nil {
				return nil, err
			}
			ctx.Log("should not be seen")
			return nil, errBoom
		},
		"get": func(ctx *Context, _ []byte) ([]byte, error) {
			return ctx.Storage().Get([]byte("k")), nil
		},
		"del": func(ctx *Context, _ []byte) ([]byte, error) {
			_, err := ctx.Storage().Delete([]byte("k"))
			return nil, err
		},
		"refund": func(ctx *Context, _ []byte) ([]byte, error) {
			ctx.Refund(ctx.Predecessor(), ctx.AttachedDeposit())
			ctx.Notify("Refunded", stackitem.Make(ctx.Predecessor()))
			return nil, nil
		},
		"panic": func(*Context, []byte) ([]byte, error) {
			panic("oops")
		},
	}, "get")
}

func newTestHost(t *testing.T, opts Options) *Host {
	opts.Logger = zaptest.NewLogger(t)
	h := New(storage.NewMemoryStore(), opts)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestHost_Deploy(t *testing.T) {
	h := newTestHost(t, Options{})

	require.NoError(t, h.Deploy("a", newKV()))
	require.NoError(t, h.Deploy("b", newKV()))

	_, err := h.Invoke(context.Background(), Tx{Contract: "b", Method: "put", Args: []byte("v"), Predecessor: "alice"})
	require.NoError(t, err)

	// rebinding keeps the storage
	require.NoError(t, h.Deploy("b", newKV()))
	v, err := h.View(context.Background(), "b", "get", nil)
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)

	v, err = h.View(context.Background(), "a", "get", nil)
	require.NoError(t, err)
	require.Nil(t, v)

	cs, err := h.Contracts()
	require.NoError(t, err)
	require.Len(t, cs, 2)
	require.Equal(t, "a", cs[0].Account)
	require.EqualValues(t, 0, cs[0].ID)
	require.Equal(t, "b", cs[1].Account)
	require.EqualValues(t, 1, cs[1].ID)

	ok, err := h.IsDeployed("a")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = h.IsDeployed("c")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = h.Invoke(context.Background(), Tx{Contract: "c", Method: "put"})
	require.ErrorIs(t, err, ErrUnknownContract)

	_, err = h.Invoke(context.Background(), Tx{Contract: "a", Method: "unknown"})
	require.ErrorIs(t, err, ErrUnknownMethod)
}

func TestHost_StorageUsage(t *testing.T) {
	h := newTestHost(t, Options{})
	require.NoError(t, h.Deploy("kv", newKV()))

	ctx := context.Background()
	usage := func() uint64 {
		u, err := h.StorageUsage("kv")
		require.NoError(t, err)
		return u
	}

	require.Zero(t, usage())

	_, err := h.Invoke(ctx, Tx{Contract: "kv", Method: "put", Args: []byte("abc"), Predecessor: "alice"})
	require.NoError(t, err)
	require.Equal(t, ItemSize([]byte("k"), []byte("abc")), usage())

	_, err = h.Invoke(ctx, Tx{Contract: "kv", Method: "put", Args: []byte("abcde"), Predecessor: "alice"})
	require.NoError(t, err)
	require.Equal(t, ItemSize([]byte("k"), []byte("abcde")), usage())

	t.Run("failed call is discarded", func(t *testing.T) {
		res, err := h.Invoke(ctx, Tx{Contract: "kv", Method: "putFail", Args: []byte("0123456789"), Predecessor: "alice"})
		require.ErrorIs(t, err, errBoom)
		require.Empty(t, res.Logs())
		require.Len(t, res.Receipts, 1)
		require.ErrorIs(t, res.Receipts[0].Err, errBoom)
		require.Equal(t, ItemSize([]byte("k"), []byte("abcde")), usage())

		v, err := h.View(ctx, "kv", "get", nil)
		require.NoError(t, err)
		require.Equal(t, []byte("abcde"), v)
	})

	t.Run("panic", func(t *testing.T) {
		_, err := h.Invoke(ctx, Tx{Contract: "kv", Method: "panic", Predecessor: "alice"})
		require.ErrorIs(t, err, ErrFault)
	})

	_, err = h.Invoke(ctx, Tx{Contract: "kv", Method: "del", Predecessor: "alice"})
	require.NoError(t, err)
	require.Zero(t, usage())

	height, err := h.Height()
	require.NoError(t, err)
	require.EqualValues(t, 3, height)
}

func TestHost_ReadOnly(t *testing.T) {
	h := newTestHost(t, Options{})

	c := newKV()
	c.handlers["getPut"] = func(ctx *Context, args []byte) ([]byte, error) {
		return nil, ctx.Storage().Put([]byte("k"), args)
	}
	c.m.ABI.Methods = append(c.m.ABI.Methods, manifest.Method{Name: "getPut", Safe: true})
	require.NoError(t, h.Deploy("kv", c))

	_, err := h.View(context.Background(), "kv", "put", []byte("v"))
	require.ErrorIs(t, err, ErrReadOnly)

	_, err = h.View(context.Background(), "kv", "getPut", []byte("v"))
	require.ErrorIs(t, err, ErrReadOnly)
}

func TestHost_Deposit(t *testing.T) {
	h := newTestHost(t, Options{})
	require.NoError(t, h.Deploy("kv", newKV()))
	require.NoError(t, h.Fund("alice", uint256.NewInt(100)))

	ctx := context.Background()
	balance := func(acc string) uint64 {
		b, err := h.NativeBalance(acc)
		require.NoError(t, err)
		return b.Uint64()
	}

	_, err := h.Invoke(ctx, Tx{Contract: "kv", Method: "put", Predecessor: "alice", Deposit: uint256.NewInt(30)})
	require.NoError(t, err)
	require.EqualValues(t, 70, balance("alice"))
	require.EqualValues(t, 30, balance("kv"))

	_, err = h.Invoke(ctx, Tx{Contract: "kv", Method: "putFail", Predecessor: "alice", Deposit: uint256.NewInt(30)})
	require.ErrorIs(t, err, errBoom)
	require.EqualValues(t, 70, balance("alice"))

	_, err = h.Invoke(ctx, Tx{Contract: "kv", Method: "put", Predecessor: "alice", Deposit: uint256.NewInt(71)})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	res, err := h.Invoke(ctx, Tx{Contract: "kv", Method: "refund", Predecessor: "alice", Deposit: uint256.NewInt(20)})
	require.NoError(t, err)
	require.EqualValues(t, 70, balance("alice"))
	require.EqualValues(t, 30, balance("kv"))
	require.Len(t, res.Refunds(), 1)
	require.Len(t, res.Notifications(), 1)
	require.Equal(t, "Refunded", res.Notifications()[0].Name)
}

const (
	calloutGas uint64 = 10 * DefaultMinCalloutGas
	pending           = "pending"
)

// newCaller returns a contract scheduling a callout to receiver.method with
// "done" callback, which returns promise status and value.
func newCaller(receiver, method string, gas uint64) *testContract {
	return newTestContract("caller", map[string]handler{
		"ping": func(ctx *Context, args []byte) ([]byte, error) {
			co, err := ctx.Call(receiver, method, args, ctx.AttachedDeposit(), gas)
			if err != nil {
				return nil, err
			}
			co.Then("done", []byte("cb"), DefaultMinCalloutGas)
			return nil, ctx.Storage().Put([]byte(pending), args)
		},
		"twice": func(ctx *Context, args []byte) ([]byte, error) {
			if _, err := ctx.Call(receiver, method, args, nil, gas); err != nil {
				return nil, err
			}
			_, err := ctx.Call(receiver, method, args, nil, gas)
			return nil, err
		},
		"done": func(ctx *Context, args []byte) ([]byte, error) {
			if ctx.Predecessor() != ctx.CurrentAccount() {
				return nil, errors.New("private")
			}
			if string(args) != "cb" {
				return nil, errors.New("wrong callback args")
			}
			if _, err := ctx.Storage().Delete([]byte(pending)); err != nil {
				return nil, err
			}
			rs := ctx.PromiseResults()
			if len(rs) != 1 {
				return nil, errors.New("no promise result")
			}
			if rs[0].Status == PromiseFailed {
				return []byte("failed"), nil
			}
			return append([]byte("ok:"), rs[0].Value...), nil
		},
	})
}

func newReceiver() *testContract {
	return newTestContract("receiver", map[string]handler{
		"echo": func(ctx *Context, args []byte) ([]byte, error) {
			ctx.Log("echo " + ctx.Predecessor() + " " + ctx.Signer())
			return args, nil
		},
		"fail": func(*Context, []byte) ([]byte, error) {
			return nil, errBoom
		},
		"hang": func(ctx *Context, _ []byte) ([]byte, error) {
			<-ctx.Context().Done()
			return nil, nil
		},
	})
}

func TestHost_Callout(t *testing.T) {
	ctx := context.Background()

	deploy := func(t *testing.T, method string, gas uint64) *Host {
		h := newTestHost(t, Options{CalloutTimeout: 100 * time.Millisecond})
		require.NoError(t, h.Deploy("caller", newCaller("receiver", method, gas)))
		require.NoError(t, h.Deploy("receiver", newReceiver()))
		return h
	}

	t.Run("success", func(t *testing.T) {
		h := deploy(t, "echo", calloutGas)
		require.NoError(t, h.Fund("alice", uint256.NewInt(10)))

		res, err := h.Invoke(ctx, Tx{Contract: "caller", Method: "ping", Args: []byte("hi"), Predecessor: "alice", Deposit: uint256.NewInt(10)})
		require.NoError(t, err)
		require.Equal(t, []byte("ok:hi"), res.Value)
		require.Equal(t, []string{"echo caller alice"}, res.Logs())
		require.Len(t, res.Receipts, 3)

		b, err := h.NativeBalance("receiver")
		require.NoError(t, err)
		require.EqualValues(t, 10, b.Uint64())

		ps, err := h.Pending()
		require.NoError(t, err)
		require.Empty(t, ps)

		usage, err := h.StorageUsage("caller")
		require.NoError(t, err)
		require.Zero(t, usage)
	})

	for _, tc := range []struct {
		name, method string
		gas          uint64
	}{
		{"receiver error", "fail", calloutGas},
		{"timeout", "hang", calloutGas},
		{"not enough gas", "echo", DefaultMinCalloutGas - 1},
		{"unknown method", "missing", calloutGas},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := deploy(t, tc.method, tc.gas)

			res, err := h.Invoke(ctx, Tx{Contract: "caller", Method: "ping", Args: []byte("hi"), Predecessor: "alice"})
			require.NoError(t, err)
			require.Equal(t, []byte("failed"), res.Value)
			require.Empty(t, res.Logs())

			ps, err := h.Pending()
			require.NoError(t, err)
			require.Empty(t, ps)
		})
	}

	t.Run("single callout per call", func(t *testing.T) {
		h := deploy(t, "echo", calloutGas)

		_, err := h.Invoke(ctx, Tx{Contract: "caller", Method: "twice", Predecessor: "alice"})
		require.ErrorIs(t, err, ErrCalloutScheduled)
	})
}

func TestHost_SubmitProcess(t *testing.T) {
	ctx := context.Background()
	h := newTestHost(t, Options{})
	require.NoError(t, h.Deploy("caller", newCaller("receiver", "echo", calloutGas)))
	require.NoError(t, h.Deploy("receiver", newReceiver()))

	res, err := h.Submit(ctx, Tx{Contract: "caller", Method: "ping", Args: []byte("1"), Predecessor: "alice"})
	require.NoError(t, err)
	require.Len(t, res.Pending, 1)
	id := res.Pending[0]

	ps, err := h.Pending()
	require.NoError(t, err)
	require.Len(t, ps, 1)
	require.Equal(t, id, ps[0].ID)
	require.Equal(t, PhaseAwaiting, ps[0].Phase)
	require.Equal(t, "caller", ps[0].Caller)
	require.Equal(t, "done", ps[0].Callback)

	res, err = h.Process(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []byte("ok:1"), res.Value)

	_, err = h.Process(ctx, id)
	require.ErrorIs(t, err, ErrCalloutNotFound)

	t.Run("recover", func(t *testing.T) {
		var ids = make(map[string]struct{})
		for _, arg := range []string{"2", "3"} {
			res, err := h.Submit(ctx, Tx{Contract: "caller", Method: "ping", Args: []byte(arg), Predecessor: "alice"})
			require.NoError(t, err)
			require.Len(t, res.Pending, 1)
			ids[FormatID(res.Pending[0])] = struct{}{}
		}

		rs, err := h.Recover(ctx)
		require.NoError(t, err)
		require.Len(t, rs, 2)
		for _, r := range rs {
			require.Equal(t, []byte("failed"), r.Value)
		}

		ps, err := h.Pending()
		require.NoError(t, err)
		require.Empty(t, ps)

		usage, err := h.StorageUsage("caller")
		require.NoError(t, err)
		require.Zero(t, usage)

		for s := range ids {
			id, err := ParseID(s)
			require.NoError(t, err)
			_, err = h.Process(ctx, id)
			require.ErrorIs(t, err, ErrCalloutNotFound)
		}
	})
}

func TestHost_Restore(t *testing.T) {
	ctx := context.Background()
	h := newTestHost(t, Options{})
	require.NoError(t, h.Deploy("caller", newCaller("receiver", "echo", calloutGas)))
	require.NoError(t, h.Deploy("kv", newKV()))
	require.NoError(t, h.Fund("alice", uint256.NewInt(5)))

	_, err := h.Invoke(ctx, Tx{Contract: "kv", Method: "put", Args: []byte("v"), Predecessor: "alice", Deposit: uint256.NewInt(2)})
	require.NoError(t, err)
	res, err := h.Submit(ctx, Tx{Contract: "caller", Method: "ping", Args: []byte("x"), Predecessor: "alice"})
	require.NoError(t, err)

	cs, err := h.Contracts()
	require.NoError(t, err)

	var items []Item
	collect := func(it Item) error {
		items = append(items, it)
		return nil
	}
	require.NoError(t, h.IterateSystem(collect))
	for i := range cs {
		require.NoError(t, h.IterateStorage(cs[i].Account, collect))
	}

	restored := newTestHost(t, Options{})
	require.NoError(t, restored.Restore(cs, items))
	require.ErrorIs(t, restored.Restore(cs, items), ErrNotEmpty)

	require.NoError(t, restored.Deploy("caller", newCaller("receiver", "echo", calloutGas)))
	require.NoError(t, restored.Deploy("kv", newKV()))
	require.NoError(t, restored.Deploy("receiver", newReceiver()))

	v, err := restored.View(ctx, "kv", "get", nil)
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)

	b, err := restored.NativeBalance("alice")
	require.NoError(t, err)
	require.EqualValues(t, 3, b.Uint64())

	for _, acc := range []string{"caller", "kv"} {
		exp, err := h.StorageUsage(acc)
		require.NoError(t, err)
		act, err := restored.StorageUsage(acc)
		require.NoError(t, err)
		require.Equal(t, exp, act)
	}

	res, err = restored.Process(ctx, res.Pending[0])
	require.NoError(t, err)
	require.Equal(t, []byte("ok:x"), res.Value)
}

func TestCalloutID(t *testing.T) {
	_, err := ParseID("not an ID")
	require.Error(t, err)

	h := newTestHost(t, Options{})
	require.NoError(t, h.Deploy("caller", newCaller("receiver", "echo", calloutGas)))
	res, err := h.Submit(context.Background(), Tx{Contract: "caller", Method: "ping", Predecessor: "alice"})
	require.NoError(t, err)

	id, err := ParseID(FormatID(res.Pending[0]))
	require.NoError(t, err)
	require.Equal(t, res.Pending[0], id)
}

func TestHost_CalloutIgnoresTimeout(t *testing.T) {
	ctx := context.Background()
	finished := make(chan struct{})

	h := newTestHost(t, Options{CalloutTimeout: 50 * time.Millisecond})
	require.NoError(t, h.Deploy("caller", newCaller("receiver", "sleep", calloutGas)))
	require.NoError(t, h.Deploy("receiver", newTestContract("receiver", map[string]handler{
		"sleep": func(ctx *Context, args []byte) ([]byte, error) {
			defer close(finished)
			err := ctx.Storage().Put([]byte("k"), args)
			ctx.Log("woke up")
			time.Sleep(500 * time.Millisecond)
			return args, err
		},
	})))

	start := time.Now()
	res, err := h.Invoke(ctx, Tx{Contract: "caller", Method: "ping", Args: []byte("hi"), Predecessor: "alice"})
	require.NoError(t, err)
	require.Equal(t, []byte("failed"), res.Value)
	require.Less(t, time.Since(start), 400*time.Millisecond)
	require.Empty(t, res.Logs())

	height, err := h.Height()
	require.NoError(t, err)
	require.EqualValues(t, 2, height)

	<-finished

	usage, err := h.StorageUsage("receiver")
	require.NoError(t, err)
	require.Zero(t, usage)

	height, err = h.Height()
	require.NoError(t, err)
	require.EqualValues(t, 2, height)
}

func TestHost_CallbackRetry(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		name  string
		retry func(*Host, Callout) (*Result, error)
	}{
		{"process", func(h *Host, co Callout) (*Result, error) {
			return h.Process(ctx, co.ID)
		}},
		{"recover", func(h *Host, _ Callout) (*Result, error) {
			rs, err := h.Recover(ctx)
			if len(rs) != 1 {
				return nil, errors.Join(err, errors.New("unexpected number of results"))
			}
			return rs[0], err
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var broken atomic.Bool
			broken.Store(true)

			caller := newCaller("receiver", "echo", calloutGas)
			done := caller.handlers["done"]
			caller.handlers["done"] = func(ctx *Context, args []byte) ([]byte, error) {
				if broken.Load() {
					return nil, errBoom
				}
				return done(ctx, args)
			}

			h := newTestHost(t, Options{})
			require.NoError(t, h.Deploy("caller", caller))
			require.NoError(t, h.Deploy("receiver", newReceiver()))

			_, err := h.Invoke(ctx, Tx{Contract: "caller", Method: "ping", Args: []byte("hi"), Predecessor: "alice"})
			require.ErrorIs(t, err, errBoom)

			ps, err := h.Pending()
			require.NoError(t, err)
			require.Len(t, ps, 1)
			require.Equal(t, PhaseSettled, ps[0].Phase)
			require.Equal(t, PromiseResult{Status: PromiseSuccessful, Value: []byte("hi")}, ps[0].Result)

			usage, err := h.StorageUsage("caller")
			require.NoError(t, err)
			require.NotZero(t, usage)

			_, err = tc.retry(h, ps[0])
			require.ErrorIs(t, err, errBoom)

			ps, err = h.Pending()
			require.NoError(t, err)
			require.Len(t, ps, 1)

			broken.Store(false)

			res, err := tc.retry(h, ps[0])
			require.NoError(t, err)
			require.Equal(t, []byte("ok:hi"), res.Value)
			require.Empty(t, res.Logs())
			require.Len(t, res.Receipts, 1)

			ps, err = h.Pending()
			require.NoError(t, err)
			require.Empty(t, ps)

			usage, err = h.StorageUsage("caller")
			require.NoError(t, err)
			require.Zero(t, usage)
		})
	}
}

func TestHost_RecoverUnboundCaller(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	h := New(store, Options{Logger: zaptest.NewLogger(t)})
	require.NoError(t, h.Deploy("caller", newCaller("receiver", "echo", calloutGas)))

	res, err := h.Submit(ctx, Tx{Contract: "caller", Method: "ping", Args: []byte("x"), Predecessor: "alice"})
	require.NoError(t, err)
	require.Len(t, res.Pending, 1)

	restarted := New(store, Options{Logger: zaptest.NewLogger(t)})
	t.Cleanup(func() { _ = restarted.Close() })

	rs, err := restarted.Recover(ctx)
	require.ErrorIs(t, err, ErrUnknownContract)
	require.Empty(t, rs)

	_, err = restarted.Process(ctx, res.Pending[0])
	require.ErrorIs(t, err, ErrUnknownContract)

	ps, err := restarted.Pending()
	require.NoError(t, err)
	require.Len(t, ps, 1)
	require.Equal(t, PhaseAwaiting, ps[0].Phase)

	require.NoError(t, restarted.Deploy("caller", newCaller("receiver", "echo", calloutGas)))

	rs, err = restarted.Recover(ctx)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	require.Equal(t, []byte("failed"), rs[0].Value)

	ps, err = restarted.Pending()
	require.NoError(t, err)
	require.Empty(t, ps)
}
