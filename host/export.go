package host

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/nspcc-dev/neo-go/pkg/core/storage"
	"go.uber.org/zap"
)

// ErrNotEmpty is returned on restoring state into a host which has data.
var ErrNotEmpty = errors.New("host is not empty")

// Item is a raw storage record. Account is empty for host records (native
// balances, callouts and counters). For contract storage items it is the
// contract account and Key is relative to the contract storage.
type Item struct {
	Account string
	Key     []byte
	Value   []byte
}

// Contracts returns records of all deployed contracts ordered by ID.
func (h *Host) Contracts() ([]ContractState, error) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	var (
		res []ContractState
		err error
	)

	h.store.Seek(storage.SeekRange{Prefix: []byte{prefixContract}}, func(k, v []byte) bool {
		var st ContractState
		if err = decodeRecord(k, v, &st); err != nil {
			return false
		}
		res = append(res, st)
		return true
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(res, func(a, b ContractState) int { return cmp.Compare(a.ID, b.ID) })
	return res, nil
}

// IterateStorage passes all storage items of the contract to f until it
// returns an error.
func (h *Host) IterateStorage(account string, f func(Item) error) error {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	st, err := getContractState(h.store, account)
	if err != nil {
		return err
	}

	prefix := storagePrefix(st.ID)
	h.store.Seek(storage.SeekRange{Prefix: prefix}, func(k, v []byte) bool {
		err = f(Item{
			Account: account,
			Key:     slices.Clone(k[len(prefix):]),
			Value:   slices.Clone(v),
		})
		return err == nil
	})

	return err
}

// IterateSystem passes native balances, pending callouts and host counters to
// f until it returns an error. Contract records are not included, see
// Contracts.
func (h *Host) IterateSystem(f func(Item) error) error {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	var err error
	for _, p := range []byte{prefixNative, prefixCallout, keyHeight, keyNextID} {
		h.store.Seek(storage.SeekRange{Prefix: []byte{p}}, func(k, v []byte) bool {
			err = f(Item{Key: slices.Clone(k), Value: slices.Clone(v)})
			return err == nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// Restore writes previously exported state into an empty host. Contract code
// must be bound with Deploy afterwards.
func (h *Host) Restore(contracts []ContractState, items []Item) error {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	var empty = true
	for _, p := range []byte{prefixContract, prefixNative, prefixCallout, keyHeight, keyNextID} {
		h.store.Seek(storage.SeekRange{Prefix: []byte{p}}, func(_, _ []byte) bool {
			empty = false
			return false
		})
	}
	if !empty {
		return ErrNotEmpty
	}

	cache := storage.NewMemCachedStore(h.store)
	ids := make(map[string]int32, len(contracts))

	for i := range contracts {
		if err := putSerialized(cache, contractKey(contracts[i].Account), &contracts[i]); err != nil {
			return err
		}
		ids[contracts[i].Account] = contracts[i].ID
	}

	for _, it := range items {
		if it.Account == "" {
			if len(it.Key) == 0 || it.Key[0] == prefixContract || it.Key[0] >= prefixStorage {
				return fmt.Errorf("invalid host record key %x", it.Key)
			}
			cache.Put(it.Key, it.Value)
			continue
		}

		id, ok := ids[it.Account]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownContract, it.Account)
		}
		cache.Put(append(storagePrefix(id), it.Key...), it.Value)
	}

	if _, err := cache.PersistSync(); err != nil {
		return fmt.Errorf("persist restored state: %w", err)
	}

	h.log.Info("state restored", zap.Int("contracts", len(contracts)), zap.Int("items", len(items)))
	return nil
}
