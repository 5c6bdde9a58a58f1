package common

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/io"
)

// MaxU128 is the largest amount that fits into 128 bits.
var MaxU128 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

// ErrU128Overflow is returned when a value does not fit into 128 bits.
var ErrU128Overflow = errors.New("value overflows uint128")

// U128 is an unsigned 128-bit amount. In JSON it is encoded as a base-10
// string, e.g. "100".
type U128 uint256.Int

// NewU128 wraps x. The value is copied.
func NewU128(x *uint256.Int) U128 {
	return U128(*x)
}

// U128From64 returns U128 holding x.
func U128From64(x uint64) U128 {
	return NewU128(uint256.NewInt(x))
}

// Int returns a copy of the amount as uint256.Int.
func (u U128) Int() *uint256.Int {
	v := uint256.Int(u)
	return &v
}

// String returns base-10 representation of the amount.
func (u U128) String() string {
	return u.Int().Dec()
}

// MarshalJSON implements json.Marshaler.
func (u U128) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON implements json.Unmarshaler. Only quoted decimal strings are
// accepted.
func (u *U128) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("U128 must be a base-10 string: %w", err)
	}

	v, err := ParseU128(s)
	if err != nil {
		return err
	}

	*u = U128(*v)
	return nil
}

// ParseU128 parses base-10 string into the amount checking 128-bit bound.
func ParseU128(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount '%s': %w", s, err)
	}

	if err = CheckU128(v); err != nil {
		return nil, err
	}

	return v, nil
}

// CheckU128 returns ErrU128Overflow if x exceeds MaxU128.
func CheckU128(x *uint256.Int) error {
	if x.Gt(MaxU128) {
		return ErrU128Overflow
	}
	return nil
}

// EncodeU128 writes x as 16 little-endian bytes. x must fit into 128 bits.
func EncodeU128(w *io.BinWriter, x *uint256.Int) {
	w.WriteU64LE(x[0])
	w.WriteU64LE(x[1])
}

// DecodeU128 reads a value written by EncodeU128.
func DecodeU128(r *io.BinReader) *uint256.Int {
	lo := r.ReadU64LE()
	hi := r.ReadU64LE()
	return &uint256.Int{lo, hi, 0, 0}
}

// AddU128 returns x+y as a new value or ErrU128Overflow if the sum does not
// fit into 128 bits. Both arguments must fit into 128 bits.
func AddU128(x, y *uint256.Int) (*uint256.Int, error) {
	sum := new(uint256.Int).Add(x, y)
	if err := CheckU128(sum); err != nil {
		return nil, err
	}
	return sum, nil
}
