package dump

import (
	"encoding/csv"
	"encoding/json"
	"fmt"

	"github.com/nspcc-dev/ftledger/host"
)

// Creator dumps host states. Output file format:
//
//	'<label>-<height>-contracts.json': JSON array of contract records
//	'<label>-<height>-storage.csv': CSV of storage items
//
// Storage CSV are 'account,key,value' where account is empty for host
// records and binary key-value are base64-encoded.
//
// Use IterateDumps or Open to access existing dumps.
type Creator struct {
	dumpStreams

	contracts []host.ContractState

	storageItemsCSV *csv.Writer
}

// NewCreator returns Creator which dumps into given directory. The dump is
// identified by specified ID. Resulting Creator should be closed when
// finished working with it.
//
// NewCreator fails if dump with provided ID already exists.
func NewCreator(dir string, id ID) (*Creator, error) {
	var res Creator

	err := initDumpStreams(&res.dumpStreams, dir, id, false)
	if err != nil {
		return nil, err
	}

	res.storageItemsCSV = csv.NewWriter(res.dumpStreams.storageItems)

	return &res, nil
}

// AddContract adds the contract record to the resulting dump and returns
// StorageWriter for the contract storage. After all needed contracts are
// added, they should be flushed via Flush method.
func (x *Creator) AddContract(st host.ContractState) *StorageWriter {
	x.contracts = append(x.contracts, st)

	return &StorageWriter{
		account: st.Account,
		csv:     x.storageItemsCSV,
	}
}

// System returns StorageWriter for host records.
func (x *Creator) System() *StorageWriter {
	return &StorageWriter{csv: x.storageItemsCSV}
}

// Flush flushes accumulated dump to the file system.
func (x *Creator) Flush() error {
	jEnc := json.NewEncoder(x.dumpStreams.contracts)
	jEnc.SetIndent("", " ")

	err := jEnc.Encode(x.contracts)
	if err != nil {
		return fmt.Errorf("encode contract states to JSON: %w", err)
	}

	x.storageItemsCSV.Flush()

	err = x.storageItemsCSV.Error()
	if err != nil {
		return fmt.Errorf("flush CSV data: %w", err)
	}

	return nil
}

// Close releases underlying resources of the Creator and makes it unusable.
func (x *Creator) Close() {
	x.close()
}

// StorageWriter writes data into the superior storage dump.
type StorageWriter struct {
	account string
	csv     *csv.Writer
}

// Write saves given binary key-value into the dump as storage item.
func (x *StorageWriter) Write(key, value []byte) error {
	err := x.csv.Write([]string{
		x.account,
		_encoding.EncodeToString(key),
		_encoding.EncodeToString(value),
	})
	if err != nil {
		return fmt.Errorf("write storage item as CSV data: %w", err)
	}

	return nil
}
