package host

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/ftledger/common"
	"github.com/nspcc-dev/neo-go/pkg/core/storage"
	"github.com/nspcc-dev/neo-go/pkg/io"
)

const (
	prefixContract byte = 0x01
	prefixNative   byte = 0x02
	prefixCallout  byte = 0x03
	keyHeight      byte = 0x04
	keyNextID      byte = 0x05
	prefixStorage  byte = 0x70
)

// ContractState is a host record of the deployed contract.
type ContractState struct {
	ID      int32  `json:"id"`
	Account string `json:"account"`
	// Usage is the number of storage bytes occupied by the contract.
	Usage uint64 `json:"usage"`
}

// EncodeBinary implements io.Serializable.
func (c *ContractState) EncodeBinary(w *io.BinWriter) {
	w.WriteU32LE(uint32(c.ID))
	w.WriteString(c.Account)
	w.WriteU64LE(c.Usage)
}

// DecodeBinary implements io.Serializable.
func (c *ContractState) DecodeBinary(r *io.BinReader) {
	c.ID = int32(r.ReadU32LE())
	c.Account = r.ReadString()
	c.Usage = r.ReadU64LE()
}

func contractKey(account string) []byte {
	return append([]byte{prefixContract}, account...)
}

func nativeKey(account string) []byte {
	return append([]byte{prefixNative}, account...)
}

func calloutKey(id uuid.UUID) []byte {
	return append([]byte{prefixCallout}, id[:]...)
}

func storagePrefix(id int32) []byte {
	k := make([]byte, 5)
	k[0] = prefixStorage
	binary.LittleEndian.PutUint32(k[1:], uint32(id))
	return k
}

// kvReader is a read part of storage.Store and storage.MemCachedStore.
type kvReader interface {
	Get([]byte) ([]byte, error)
}

// kvWriter is implemented by storage.MemCachedStore.
type kvWriter interface {
	kvReader
	Put(key, value []byte)
	Delete(key []byte)
}

func get(s kvReader, key []byte) ([]byte, error) {
	v, err := s.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

func getSerialized(s kvReader, key []byte, v io.Serializable) (bool, error) {
	data, err := get(s, key)
	if err != nil || data == nil {
		return false, err
	}

	return true, decodeRecord(key, data, v)
}

func decodeRecord(key, data []byte, v io.Serializable) error {
	r := io.NewBinReaderFromBuf(data)
	v.DecodeBinary(r)
	if r.Err != nil {
		return fmt.Errorf("decode record %x: %w", key, r.Err)
	}
	return nil
}

func putSerialized(s kvWriter, key []byte, v io.Serializable) error {
	w := io.NewBufBinWriter()
	v.EncodeBinary(w.BinWriter)
	if w.Err != nil {
		return fmt.Errorf("encode record %x: %w", key, w.Err)
	}
	s.Put(key, w.Bytes())
	return nil
}

func getContractState(s kvReader, account string) (*ContractState, error) {
	var st ContractState
	ok, err := getSerialized(s, contractKey(account), &st)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContract, account)
	}
	return &st, nil
}

func getNative(s kvReader, account string) (*uint256.Int, error) {
	data, err := get(s, nativeKey(account))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return new(uint256.Int), nil
	}

	r := io.NewBinReaderFromBuf(data)
	v := common.DecodeU128(r)
	if r.Err != nil {
		return nil, fmt.Errorf("decode native balance of %s: %w", account, r.Err)
	}
	return v, nil
}

func putNative(s kvWriter, account string, v *uint256.Int) {
	if v.IsZero() {
		s.Delete(nativeKey(account))
		return
	}
	w := io.NewBufBinWriter()
	common.EncodeU128(w.BinWriter, v)
	s.Put(nativeKey(account), w.Bytes())
}

// moveNative transfers native currency between accounts.
func moveNative(s kvWriter, from, to string, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() || from == to {
		return nil
	}

	fromBalance, err := getNative(s, from)
	if err != nil {
		return err
	}
	if fromBalance.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from, fromBalance.Dec(), amount.Dec())
	}

	toBalance, err := getNative(s, to)
	if err != nil {
		return err
	}
	toBalance, err = common.AddU128(toBalance, amount)
	if err != nil {
		return fmt.Errorf("native balance of %s: %w", to, err)
	}

	putNative(s, from, fromBalance.Sub(fromBalance, amount))
	putNative(s, to, toBalance)
	return nil
}

func getUint64(s kvReader, key byte) (uint64, error) {
	data, err := get(s, []byte{key})
	if err != nil || data == nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("invalid record %x length %d", key, len(data))
	}
	return binary.LittleEndian.Uint64(data), nil
}

func putUint64(s kvWriter, key byte, v uint64) {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, v)
	s.Put([]byte{key}, data)
}
