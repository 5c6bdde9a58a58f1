package dump

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/nspcc-dev/ftledger/host"
)

// IterateDumps iterates over all dumps created by the Creator in the
// specified directory, and passes ID and Reader of each dump into f.
func IterateDumps(dir string, f func(ID, *Reader)) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, e error) error {
		if errors.Is(e, fs.ErrNotExist) {
			return nil
		}
		if e != nil {
			return e
		}

		if d.IsDir() {
			return nil
		}

		name := d.Name()
		if !strings.HasSuffix(name, statesFileSuffix) {
			return nil
		}

		var id ID

		err := id.decodeString(name)
		if err != nil {
			return fmt.Errorf("decode dump ID from file name '%s': %w", name, err)
		}

		r, err := Open(filepath.Dir(path), id)
		if err != nil {
			return fmt.Errorf("open dump '%s': %w", name, err)
		}

		f(id, r)

		return nil
	})
}

// Open reads the dump with the given ID from the directory.
func Open(dir string, id ID) (*Reader, error) {
	var streams dumpStreams

	err := initDumpStreams(&streams, dir, id, true)
	if err != nil {
		return nil, fmt.Errorf("init dump streams: %w", err)
	}
	defer streams.close()

	var r Reader

	err = r.fromDumpStreams(streams.contracts, streams.storageItems)
	if err != nil {
		return nil, fmt.Errorf("init dump reader: %w", err)
	}

	return &r, nil
}

// Reader reads host state collected in the superior dump.
type Reader struct {
	states []host.ContractState
	items  []host.Item
}

func (x *Reader) fromDumpStreams(rContracts, rStorageItems io.Reader) error {
	err := json.NewDecoder(rContracts).Decode(&x.states)
	if err != nil {
		return fmt.Errorf("decode contract states from JSON: %w", err)
	}

	var (
		rec []string
		it  host.Item
	)

	_csv := csv.NewReader(rStorageItems)
	_csv.FieldsPerRecord = 3
	_csv.ReuseRecord = true

	x.items = x.items[:0]

	for {
		rec, err = _csv.Read()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read next CSV record: %w", err)
		}

		// out-of-range safety guaranteed by csv settings
		it.Account = rec[0]

		it.Key, err = _encoding.DecodeString(rec[1])
		if err != nil {
			return fmt.Errorf("decode storage item key: %w", err)
		}

		it.Value, err = _encoding.DecodeString(rec[2])
		if err != nil {
			return fmt.Errorf("decode storage item value: %w", err)
		}

		x.items = append(x.items, it)
	}
}

// IterateContractStates passes all contract records from the superior dump
// into f.
func (x *Reader) IterateContractStates(f func(host.ContractState)) {
	for i := range x.states {
		f(x.states[i])
	}
}

// IterateStorageItems passes all storage items from the superior dump into f
// in the dumped order.
func (x *Reader) IterateStorageItems(f func(host.Item)) {
	for i := range x.items {
		f(x.items[i])
	}
}
