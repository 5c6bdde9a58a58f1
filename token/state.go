package token

import (
	"github.com/nspcc-dev/ftledger/common"
	"github.com/nspcc-dev/ftledger/host"
	"github.com/nspcc-dev/neo-go/pkg/io"
)

var (
	balancePrefix = []byte{'a'}
	supplyKey     = []byte{'s'}
	stateKey      = []byte{'c'}
)

// maxAccountIDLen is the length of the account used to measure the storage
// cost of a balance entry.
const maxAccountIDLen = 64

// contractState is the ledger configuration fixed at initialization.
type contractState struct {
	Version int
	Owner   string
	// SessionVault is empty if not set.
	SessionVault string
	// AccountStorageUsage is the number of bytes a single balance entry
	// occupies.
	AccountStorageUsage uint64
	Metadata            Metadata
}

// EncodeBinary implements io.Serializable.
func (s *contractState) EncodeBinary(w *io.BinWriter) {
	w.WriteU32LE(uint32(s.Version))
	w.WriteString(s.Owner)
	w.WriteString(s.SessionVault)
	w.WriteU64LE(s.AccountStorageUsage)
	s.Metadata.EncodeBinary(w)
}

// DecodeBinary implements io.Serializable.
func (s *contractState) DecodeBinary(r *io.BinReader) {
	s.Version = int(r.ReadU32LE())
	s.Owner = r.ReadString()
	s.SessionVault = r.ReadString()
	s.AccountStorageUsage = r.ReadU64LE()
	s.Metadata.DecodeBinary(r)
}

func getState(st *host.Storage) (*contractState, error) {
	var s contractState
	ok, err := common.GetSerialized(st, stateKey, &s)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	if err = common.CheckVersion(s.Version); err != nil {
		return nil, err
	}
	return &s, nil
}

func putState(st *host.Storage, s *contractState) error {
	return common.SetSerialized(st, stateKey, s)
}
