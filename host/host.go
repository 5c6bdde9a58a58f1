package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/ftledger/common"
	"github.com/nspcc-dev/neo-go/pkg/core/storage"
	"github.com/nspcc-dev/neo-go/pkg/smartcontract/manifest"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"go.uber.org/zap"
)

// Contract is a native Go contract executed by the host.
type Contract interface {
	// Manifest returns the contract ABI. Methods marked as safe are executed
	// read-only.
	Manifest() *manifest.Manifest
	// Call executes the method with JSON-encoded arguments and returns
	// JSON-encoded result.
	Call(ctx *Context, method string, args []byte) ([]byte, error)
}

// Tx describes a call.
type Tx struct {
	Contract string
	Method   string
	Args     []byte

	// Predecessor is the calling account. Attached deposit is taken from
	// its native balance.
	Predecessor string
	// Signer is the account originating the call chain, defaults to
	// Predecessor.
	Signer string

	Deposit *uint256.Int
	Gas     uint64
}

// Options groups optional Host parameters.
type Options struct {
	Logger *zap.Logger

	// Native currency cost of one storage byte. Defaults to
	// DefaultStorageBytePrice.
	StorageBytePrice *uint256.Int

	// Time limit for callout receivers. Defaults to DefaultCalloutTimeout.
	CalloutTimeout time.Duration

	// Callouts with less gas attached fail without reaching the receiver.
	// Defaults to DefaultMinCalloutGas.
	MinCalloutGas uint64

	// Maximum nesting of callouts. Defaults to DefaultMaxCallDepth.
	MaxCallDepth int
}

const (
	DefaultCalloutTimeout        = 5 * time.Second
	DefaultMinCalloutGas  uint64 = 1_000_000_000_000
	DefaultMaxCallDepth          = 16
)

// DefaultStorageBytePrice is the default native cost of one storage byte.
var DefaultStorageBytePrice = uint256.NewInt(10_000_000_000_000_000_000)

// Host executes contracts one call at a time.
type Host struct {
	mtx   sync.Mutex
	store storage.Store
	log   *zap.Logger

	price          *uint256.Int
	calloutTimeout time.Duration
	minCalloutGas  uint64
	maxDepth       int

	code     map[string]Contract
	inflight map[uuid.UUID]struct{}
}

// New returns Host working over the given persistent store.
func New(store storage.Store, opts Options) *Host {
	h := &Host{
		store:          store,
		log:            opts.Logger,
		price:          opts.StorageBytePrice,
		calloutTimeout: opts.CalloutTimeout,
		minCalloutGas:  opts.MinCalloutGas,
		maxDepth:       opts.MaxCallDepth,
		code:           make(map[string]Contract),
		inflight:       make(map[uuid.UUID]struct{}),
	}

	if h.log == nil {
		h.log = zap.NewNop()
	}
	if h.price == nil {
		h.price = DefaultStorageBytePrice.Clone()
	}
	if h.calloutTimeout <= 0 {
		h.calloutTimeout = DefaultCalloutTimeout
	}
	if h.minCalloutGas == 0 {
		h.minCalloutGas = DefaultMinCalloutGas
	}
	if h.maxDepth <= 0 {
		h.maxDepth = DefaultMaxCallDepth
	}

	return h
}

// Close closes the underlying store.
func (h *Host) Close() error {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	return h.store.Close()
}

// StorageBytePrice returns native currency cost of one storage byte.
func (h *Host) StorageBytePrice() *uint256.Int {
	return h.price.Clone()
}

// Deploy binds contract code to the account. Contract record with a new ID
// and empty storage is created if the account has none. Binding code to the
// account with an existing record (e.g. after restart) keeps its storage.
func (h *Host) Deploy(account string, c Contract) error {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	_, err := getContractState(h.store, account)
	if err == nil {
		h.code[account] = c
		return nil
	}
	if !errors.Is(err, ErrUnknownContract) {
		return err
	}

	cache := storage.NewMemCachedStore(h.store)

	id, err := getUint64(cache, keyNextID)
	if err != nil {
		return fmt.Errorf("read next contract ID: %w", err)
	}

	st := &ContractState{ID: int32(id), Account: account}
	if err = putSerialized(cache, contractKey(account), st); err != nil {
		return err
	}
	putUint64(cache, keyNextID, id+1)

	if _, err = cache.PersistSync(); err != nil {
		return fmt.Errorf("persist contract record: %w", err)
	}

	h.code[account] = c
	h.log.Info("contract deployed", zap.String("account", account), zap.Int32("id", st.ID))

	return nil
}

// IsDeployed checks whether there is a contract record for the account.
func (h *Host) IsDeployed(account string) (bool, error) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	_, err := getContractState(h.store, account)
	if errors.Is(err, ErrUnknownContract) {
		return false, nil
	}
	return err == nil, err
}

// Fund credits native currency to the account.
func (h *Host) Fund(account string, amount *uint256.Int) error {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	cache := storage.NewMemCachedStore(h.store)

	balance, err := getNative(cache, account)
	if err != nil {
		return err
	}
	balance, err = common.AddU128(balance, amount)
	if err != nil {
		return fmt.Errorf("native balance of %s: %w", account, err)
	}
	putNative(cache, account, balance)

	if _, err = cache.PersistSync(); err != nil {
		return fmt.Errorf("persist native balance: %w", err)
	}
	return nil
}

// NativeBalance returns native currency balance of the account.
func (h *Host) NativeBalance(account string) (*uint256.Int, error) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	return getNative(h.store, account)
}

// StorageUsage returns the number of storage bytes occupied by the contract.
func (h *Host) StorageUsage(account string) (uint64, error) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	st, err := getContractState(h.store, account)
	if err != nil {
		return 0, err
	}
	return st.Usage, nil
}

// Height returns the number of committed calls.
func (h *Host) Height() (uint64, error) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	return getUint64(h.store, keyHeight)
}

// View executes a safe contract method and returns its result.
func (h *Host) View(ctx context.Context, contract, method string, args []byte) ([]byte, error) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	code, ok := h.code[contract]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContract, contract)
	}
	if m := code.Manifest().ABI.GetMethod(method, -1); m != nil && !m.Safe {
		return nil, fmt.Errorf("%w: %s.%s is not safe", ErrReadOnly, contract, method)
	}

	_, value, _, err := h.execute(ctx, Tx{Contract: contract, Method: method, Args: args}, nil, nil, false)
	return value, err
}

// Invoke executes the call and the whole chain of callouts it initiates. The
// resulting value is the value returned by the last callback.
func (h *Host) Invoke(ctx context.Context, tx Tx) (*Result, error) {
	res := new(Result)
	value, err := h.run(ctx, tx, nil, nil, res, 0)
	res.Value = value
	return res, err
}

// Submit executes the call only. Callout scheduled by the call is left
// pending; its ID is returned in Result.Pending and it can be driven with
// Process or resolved with Recover.
func (h *Host) Submit(ctx context.Context, tx Tx) (*Result, error) {
	res := new(Result)

	value, co, err := h.step(ctx, tx, nil, nil, false, res)
	if err != nil {
		return res, err
	}
	if co != nil {
		res.Pending = append(res.Pending, co.ID)
		return res, nil
	}

	res.Value = value
	return res, nil
}

// Process runs the pending callout and its callback. Settled callout only
// gets its callback retried with the stored receiver result.
func (h *Host) Process(ctx context.Context, id uuid.UUID) (*Result, error) {
	co, err := h.claim(id)
	if err != nil {
		return nil, err
	}

	var (
		res   = new(Result)
		value []byte
	)
	if co.Phase == PhaseSettled {
		value, err = h.resolve(ctx, co, co.Result, res, 0)
	} else {
		value, err = h.settle(ctx, co, res, 0)
	}
	res.Value = value
	return res, err
}

// Recover resolves all pending callouts that are not being processed without
// calling receivers. Awaiting callouts get PromiseFailed result, settled ones
// get the stored receiver result. It's intended to be called on start after
// an interrupted run.
//
// Callouts of callers with no bound code are left untouched, as are the ones
// whose callback fails, so Recover can be repeated after the code is deployed.
// All such failures are joined in the returned error.
func (h *Host) Recover(ctx context.Context) ([]*Result, error) {
	pending, err := h.Pending()
	if err != nil {
		return nil, err
	}

	var (
		results []*Result
		errs    []error
	)
	for i := range pending {
		co, err := h.claim(pending[i].ID)
		if err != nil {
			if errors.Is(err, ErrCalloutNotFound) {
				continue
			}
			if errors.Is(err, ErrUnknownContract) {
				h.log.Warn("callout left pending", zap.Error(err))
			}
			errs = append(errs, err)
			continue
		}

		h.log.Info("resolving dropped callout",
			zap.String("callout", FormatID(co.ID)),
			zap.Stringer("phase", co.Phase),
			zap.String("caller", co.Caller),
			zap.String("receiver", co.Receiver))

		pr := PromiseResult{Status: PromiseFailed}
		if co.Phase == PhaseSettled {
			pr = co.Result
		}

		res := new(Result)
		res.Value, err = h.resolve(ctx, co, pr, res, 0)
		results = append(results, res)
		if err != nil {
			errs = append(errs, fmt.Errorf("resolve callout %s: %w", FormatID(co.ID), err))
		}
	}

	return results, errors.Join(errs...)
}

// Pending returns all stored callouts.
func (h *Host) Pending() ([]Callout, error) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	var (
		res []Callout
		err error
	)

	h.store.Seek(storage.SeekRange{Prefix: []byte{prefixCallout}}, func(k, v []byte) bool {
		var co Callout
		if err = decodeRecord(k, v, &co); err != nil {
			return false
		}
		res = append(res, co)
		return true
	})

	return res, err
}

// claim marks the pending callout as being processed.
func (h *Host) claim(id uuid.UUID) (*Callout, error) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	if _, ok := h.inflight[id]; ok {
		return nil, fmt.Errorf("%w: %s is being processed", ErrCalloutNotFound, FormatID(id))
	}

	var co Callout
	ok, err := getSerialized(h.store, calloutKey(id), &co)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCalloutNotFound, FormatID(id))
	}
	if _, ok = h.code[co.Caller]; !ok && co.Callback != "" {
		return nil, fmt.Errorf("%w: %s, caller of %s", ErrUnknownContract, co.Caller, FormatID(id))
	}

	h.inflight[id] = struct{}{}
	return &co, nil
}

func (h *Host) run(ctx context.Context, tx Tx, results []PromiseResult, resolves *uuid.UUID, res *Result, depth int) ([]byte, error) {
	value, co, err := h.step(ctx, tx, results, resolves, true, res)
	if err != nil || co == nil {
		return value, err
	}
	return h.settle(ctx, co, res, depth)
}

func (h *Host) step(ctx context.Context, tx Tx, results []PromiseResult, resolves *uuid.UUID, claim bool, res *Result) ([]byte, *Callout, error) {
	h.mtx.Lock()
	rcpt, value, co, err := h.execute(ctx, tx, results, resolves, claim)
	h.mtx.Unlock()

	res.Receipts = append(res.Receipts, rcpt)
	if err != nil {
		h.log.Debug("call failed",
			zap.String("contract", tx.Contract),
			zap.String("method", tx.Method),
			zap.String("predecessor", tx.Predecessor),
			zap.Error(err))
	}
	return value, co, err
}

// settle calls the callout receiver and resolves the callout with the result.
func (h *Host) settle(ctx context.Context, co *Callout, res *Result, depth int) ([]byte, error) {
	return h.resolve(ctx, co, h.callReceiver(ctx, co, res, depth), res, depth)
}

func (h *Host) callReceiver(ctx context.Context, co *Callout, res *Result, depth int) PromiseResult {
	log := h.log.With(
		zap.String("callout", FormatID(co.ID)),
		zap.String("receiver", co.Receiver),
		zap.String("method", co.Method))

	if depth+1 >= h.maxDepth {
		log.Warn("callout failed", zap.Error(ErrCallDepth))
		return PromiseResult{Status: PromiseFailed}
	}
	if co.Gas < h.minCalloutGas {
		log.Info("callout failed: not enough gas attached", zap.Uint64("gas", co.Gas))
		return PromiseResult{Status: PromiseFailed}
	}

	cctx, cancel := context.WithTimeout(ctx, h.calloutTimeout)
	defer cancel()

	value, err := h.run(cctx, Tx{
		Contract:    co.Receiver,
		Method:      co.Method,
		Args:        co.Args,
		Predecessor: co.Caller,
		Signer:      co.Signer,
		Deposit:     co.Deposit,
		Gas:         co.Gas,
	}, nil, nil, res, depth+1)
	if err != nil {
		log.Info("callout failed", zap.Error(err))
		return PromiseResult{Status: PromiseFailed}
	}

	return PromiseResult{Status: PromiseSuccessful, Value: value}
}

// resolve executes the callout callback. Callout record is removed in the
// same commit with the callback. If the callback fails, the record is kept
// settled with the receiver result, so the callback can be retried.
func (h *Host) resolve(ctx context.Context, co *Callout, pr PromiseResult, res *Result, depth int) ([]byte, error) {
	if co.Callback == "" {
		if err := h.drop(co.ID); err != nil {
			return nil, err
		}
		if pr.Status == PromiseFailed {
			return nil, fmt.Errorf("callout %s to %s failed", FormatID(co.ID), co.Receiver)
		}
		return pr.Value, nil
	}

	id := co.ID
	value, err := h.run(context.WithoutCancel(ctx), Tx{
		Contract:    co.Caller,
		Method:      co.Callback,
		Args:        co.CallbackArgs,
		Predecessor: co.Caller,
		Signer:      co.Signer,
		Gas:         co.CallbackGas,
	}, []PromiseResult{pr}, &id, res, depth)
	if err != nil {
		h.log.Error("callout callback failed",
			zap.String("callout", FormatID(co.ID)),
			zap.String("contract", co.Caller),
			zap.String("method", co.Callback),
			zap.Error(err))

		if keepErr := h.retain(co, pr); keepErr != nil {
			h.log.Error("failed to keep callout", zap.String("callout", FormatID(id)), zap.Error(keepErr))
		}
		return nil, err
	}

	return value, nil
}

// drop removes the callout record.
func (h *Host) drop(id uuid.UUID) error {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	delete(h.inflight, id)

	cache := storage.NewMemCachedStore(h.store)
	cache.Delete(calloutKey(id))
	if _, err := cache.PersistSync(); err != nil {
		return fmt.Errorf("remove callout %s: %w", FormatID(id), err)
	}
	return nil
}

// retain releases the callout claim and stores the receiver result in the
// record, if it still exists.
func (h *Host) retain(co *Callout, pr PromiseResult) error {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	delete(h.inflight, co.ID)

	cache := storage.NewMemCachedStore(h.store)

	ok, err := getSerialized(cache, calloutKey(co.ID), new(Callout))
	if err != nil || !ok {
		return err
	}

	settled := *co
	settled.Phase = PhaseSettled
	settled.Result = pr
	if err = putSerialized(cache, calloutKey(co.ID), &settled); err != nil {
		return err
	}
	if _, err = cache.PersistSync(); err != nil {
		return fmt.Errorf("keep callout %s: %w", FormatID(co.ID), err)
	}
	return nil
}

// execute runs a single call and commits its changes. Must be called with
// the host lock held.
func (h *Host) execute(ctx context.Context, tx Tx, results []PromiseResult, resolves *uuid.UUID, claim bool) (rcpt Receipt, value []byte, co *Callout, err error) {
	rcpt = Receipt{Contract: tx.Contract, Method: tx.Method, Predecessor: tx.Predecessor}
	defer func() { rcpt.Err = err }()

	code, ok := h.code[tx.Contract]
	if !ok {
		return rcpt, nil, nil, fmt.Errorf("%w: %s", ErrUnknownContract, tx.Contract)
	}

	m := code.Manifest().ABI.GetMethod(tx.Method, -1)
	if m == nil {
		return rcpt, nil, nil, fmt.Errorf("%w: %s.%s", ErrUnknownMethod, tx.Contract, tx.Method)
	}

	deposit := tx.Deposit
	if deposit == nil {
		deposit = new(uint256.Int)
	}
	if err = common.CheckU128(deposit); err != nil {
		return rcpt, nil, nil, fmt.Errorf("attached deposit: %w", err)
	}

	signer := tx.Signer
	if signer == "" {
		signer = tx.Predecessor
	}

	cache := storage.NewMemCachedStore(h.store)

	if resolves != nil {
		if ok, err = getSerialized(cache, calloutKey(*resolves), new(Callout)); err != nil {
			return rcpt, nil, nil, err
		}
		if !ok {
			return rcpt, nil, nil, fmt.Errorf("%w: %s", ErrCalloutNotFound, FormatID(*resolves))
		}
	}

	st, err := getContractState(cache, tx.Contract)
	if err != nil {
		return rcpt, nil, nil, err
	}

	if !m.Safe {
		if err = moveNative(cache, tx.Predecessor, tx.Contract, deposit); err != nil {
			return rcpt, nil, nil, fmt.Errorf("attach deposit: %w", err)
		}
	}

	c := &Context{
		ctx:         ctx,
		current:     tx.Contract,
		predecessor: tx.Predecessor,
		signer:      signer,
		deposit:     deposit,
		gas:         tx.Gas,
		price:       h.price,
		storage: &Storage{
			store:    cache,
			prefix:   storagePrefix(st.ID),
			state:    st,
			readOnly: m.Safe,
		},
		results: results,
		receipt: new(Receipt),
	}

	value, err = callWithDeadline(ctx, code, c, tx.Method, tx.Args)
	if errors.Is(err, errAbandoned) {
		// The contract still runs over the discarded cache and receipt.
		return rcpt, nil, nil, err
	}
	rcpt.Logs = c.receipt.Logs
	rcpt.Notifications = c.receipt.Notifications
	rcpt.Refunds = c.receipt.Refunds
	if err == nil {
		err = ctx.Err()
	}
	if err != nil || m.Safe {
		return rcpt, value, nil, err
	}

	if err = putSerialized(cache, contractKey(tx.Contract), st); err != nil {
		return rcpt, nil, nil, err
	}

	for _, r := range rcpt.Refunds {
		if err = moveNative(cache, tx.Contract, r.To, r.Amount); err != nil {
			return rcpt, nil, nil, fmt.Errorf("refund to %s: %w", r.To, err)
		}
	}

	if c.callout != nil {
		c.callout.Phase = PhaseAwaiting
		if err = putSerialized(cache, calloutKey(c.callout.ID), c.callout); err != nil {
			return rcpt, nil, nil, err
		}
	}

	if resolves != nil {
		cache.Delete(calloutKey(*resolves))
	}

	height, err := getUint64(cache, keyHeight)
	if err != nil {
		return rcpt, nil, nil, err
	}
	height++
	putUint64(cache, keyHeight, height)

	if _, err = cache.PersistSync(); err != nil {
		return rcpt, nil, nil, fmt.Errorf("persist call changes: %w", err)
	}

	if resolves != nil {
		delete(h.inflight, *resolves)
	}
	if c.callout != nil && claim {
		h.inflight[c.callout.ID] = struct{}{}
	}

	h.logReceipt(&rcpt, height)

	return rcpt, value, c.callout, nil
}

func (h *Host) logReceipt(r *Receipt, height uint64) {
	h.log.Debug("call committed",
		zap.String("contract", r.Contract),
		zap.String("method", r.Method),
		zap.Uint64("height", height))

	for _, msg := range r.Logs {
		h.log.Info("contract log", zap.String("contract", r.Contract), zap.String("msg", msg))
	}

	for i := range r.Notifications {
		payload, err := stackitem.ToJSON(r.Notifications[i].Item)
		if err != nil {
			h.log.Warn("can't encode notification", zap.String("name", r.Notifications[i].Name), zap.Error(err))
			continue
		}
		h.log.Debug("notification",
			zap.String("contract", r.Contract),
			zap.String("name", r.Notifications[i].Name),
			zap.ByteString("payload", payload))
	}
}

// errAbandoned is returned for calls not finished before the context is done.
var errAbandoned = errors.New("call abandoned")

// callWithDeadline runs the contract call, but returns as soon as ctx is done
// even if the contract ignores it.
func callWithDeadline(ctx context.Context, c Contract, cc *Context, method string, args []byte) ([]byte, error) {
	if ctx.Done() == nil {
		return callContract(c, cc, method, args)
	}

	type outcome struct {
		value []byte
		err   error
	}

	done := make(chan outcome, 1)
	go func() {
		value, err := callContract(c, cc, method, args)
		done <- outcome{value, err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", errAbandoned, ctx.Err())
	}
}

func callContract(c Contract, ctx *Context, method string, args []byte) (res []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("%w: %v", ErrFault, r)
		}
	}()

	return c.Call(ctx, method, args)
}
