package dump

import (
	"fmt"

	"github.com/nspcc-dev/ftledger/host"
)

// Create dumps the whole state of the host into the directory. The dump is
// labeled with the given label and the current host height.
func Create(h *host.Host, dir, label string) (ID, error) {
	height, err := h.Height()
	if err != nil {
		return ID{}, fmt.Errorf("get host height: %w", err)
	}

	id := ID{Label: label, Height: height}

	contracts, err := h.Contracts()
	if err != nil {
		return id, fmt.Errorf("list contracts: %w", err)
	}

	c, err := NewCreator(dir, id)
	if err != nil {
		return id, err
	}
	defer c.Close()

	write := func(w *StorageWriter) func(host.Item) error {
		return func(it host.Item) error { return w.Write(it.Key, it.Value) }
	}

	if err = h.IterateSystem(write(c.System())); err != nil {
		return id, fmt.Errorf("dump host records: %w", err)
	}

	for i := range contracts {
		err = h.IterateStorage(contracts[i].Account, write(c.AddContract(contracts[i])))
		if err != nil {
			return id, fmt.Errorf("dump storage of %s: %w", contracts[i].Account, err)
		}
	}

	return id, c.Flush()
}

// Restore writes the dumped state into the empty host.
func Restore(h *host.Host, r *Reader) error {
	var (
		contracts []host.ContractState
		items     []host.Item
	)

	r.IterateContractStates(func(st host.ContractState) { contracts = append(contracts, st) })
	r.IterateStorageItems(func(it host.Item) { items = append(items, it) })

	return h.Restore(contracts, items)
}
