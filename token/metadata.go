package token

import (
	"encoding/base64"
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/io"
)

// MetadataSpec is the only supported metadata specification.
const MetadataSpec = "ft-1.0.0"

// Metadata describes the token. It has no effect on the ledger logic.
type Metadata struct {
	Spec          string  `json:"spec"`
	Name          string  `json:"name"`
	Symbol        string  `json:"symbol"`
	Icon          *string `json:"icon"`
	Reference     *string `json:"reference"`
	ReferenceHash []byte  `json:"reference_hash"`
	Decimals      uint8   `json:"decimals"`
}

// Validate checks metadata consistency.
func (m *Metadata) Validate() error {
	if m.Spec != MetadataSpec {
		return fmt.Errorf("%w: unsupported spec '%s'", ErrInvalidMetadata, m.Spec)
	}
	if (m.Reference == nil) != (m.ReferenceHash == nil) {
		return fmt.Errorf("%w: reference and reference hash must be set together", ErrInvalidMetadata)
	}
	if m.ReferenceHash != nil && len(m.ReferenceHash) != 32 {
		return fmt.Errorf("%w: reference hash must be 32 bytes, got %d", ErrInvalidMetadata, len(m.ReferenceHash))
	}
	return nil
}

// EncodeBinary implements io.Serializable.
func (m *Metadata) EncodeBinary(w *io.BinWriter) {
	w.WriteString(m.Spec)
	w.WriteString(m.Name)
	w.WriteString(m.Symbol)
	writeOptString(w, m.Icon)
	writeOptString(w, m.Reference)
	w.WriteBool(m.ReferenceHash != nil)
	if m.ReferenceHash != nil {
		w.WriteVarBytes(m.ReferenceHash)
	}
	w.WriteB(m.Decimals)
}

// DecodeBinary implements io.Serializable.
func (m *Metadata) DecodeBinary(r *io.BinReader) {
	m.Spec = r.ReadString()
	m.Name = r.ReadString()
	m.Symbol = r.ReadString()
	m.Icon = readOptString(r)
	m.Reference = readOptString(r)
	m.ReferenceHash = nil
	if r.ReadBool() {
		m.ReferenceHash = r.ReadVarBytes(32)
	}
	m.Decimals = r.ReadB()
}

func writeOptString(w *io.BinWriter, s *string) {
	w.WriteBool(s != nil)
	if s != nil {
		w.WriteString(*s)
	}
}

func readOptString(r *io.BinReader) *string {
	if !r.ReadBool() {
		return nil
	}
	s := r.ReadString()
	return &s
}

const (
	defaultName      = "Intellex AI Protocol Token"
	defaultSymbol    = "ITLX"
	defaultDecimals  = 24
	defaultReference = "https://raw.githubusercontent.com/brainstems/itlx_nep141_token/refs/heads/master/metadata.json"
	defaultRefHash   = "K29udivYwweOUnCZPFt/KhcMmm0DQLvzYoVdKXN41P8="
	defaultIcon      = "data:image/svg+xml,%3Csvg version='1.0' xmlns='http://www.w3.org/2000/svg' width='721.000000pt' height='399.000000pt' viewBox='0 0 721.000000 399.000000' preserveAspectRatio='xMidYMid meet'%3E%3Cg transform='translate(0.000000,399.000000) scale(0.100000,-0.100000)' fill='%23000000' stroke='none'%3E%3Cpath d='M0 1995 l0 -1995 3605 0 3605 0 0 1995 0 1995 -3605 0 -3605 0 0 -1995z m2888 1200 c110 -22 190 -64 252 -132 183 -200 178 -507 -15 -830 -75 -126 -101 -152 -50 -49 163 327 192 597 83 769 -58 91 -160 160 -277 187 -81 19 -231 15 -351 -10 -134 -27 -260 -74 -438 -161 l-143 -71 46 -50 c57 -63 109 -151 137 -231 32 -89 32 -263 1 -362 -70 -221 -249 -381 -473 -421 -129 -23 -268 -7 -325 38 -34 27 -65 92 -65 138 0 83 188 426 362 660 l33 45 -64 -50 c-342 -266 -660 -644 -817 -970 -168 -350 -171 -585 -9 -734 65 -59 135 -87 243 -100 307 -34 733 104 1261 408 60 34 45 14 -42 -57 -438 -358 -1180 -536 -1521 -365 -69 34 -140 111 -167 181 -34 85 -32 269 4 405 66 249 202 520 394 786 9 12 8 31 -3 81 -18 85 -17 229 1 309 38 159 150 298 298 370 178 87 378 93 570 16 l68 -28 97 46 c345 161 680 228 910 182z'/%3E%3C/g%3E%3C/svg%3E"
)

// DefaultMetadata returns metadata of the ITLX token used by
// initializeDefault.
func DefaultMetadata() Metadata {
	hash, err := base64.StdEncoding.DecodeString(defaultRefHash)
	if err != nil {
		panic(err)
	}

	icon, ref := defaultIcon, defaultReference
	return Metadata{
		Spec:          MetadataSpec,
		Name:          defaultName,
		Symbol:        defaultSymbol,
		Icon:          &icon,
		Reference:     &ref,
		ReferenceHash: hash,
		Decimals:      defaultDecimals,
	}
}
