package common

import (
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/io"
)

// KV is a contract storage view.
type KV interface {
	Get(key []byte) []byte
	Put(key, value []byte) error
}

// SetSerialized serializes data and puts it into contract storage.
func SetSerialized(kv KV, key []byte, value io.Serializable) error {
	w := io.NewBufBinWriter()
	value.EncodeBinary(w.BinWriter)
	if w.Err != nil {
		return fmt.Errorf("encode value: %w", w.Err)
	}
	return kv.Put(key, w.Bytes())
}

// GetSerialized reads the item stored by key into value. It returns false if
// there is no such item.
func GetSerialized(kv KV, key []byte, value io.Serializable) (bool, error) {
	data := kv.Get(key)
	if data == nil {
		return false, nil
	}

	r := io.NewBinReaderFromBuf(data)
	value.DecodeBinary(r)
	if r.Err != nil {
		return true, fmt.Errorf("decode value: %w", r.Err)
	}
	return true, nil
}
