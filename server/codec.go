package server

import (
	"github.com/chazu/jsbc/vm/dist"
)

// Codec is the connect codec for the compile service: canonical CBOR as
// defined by package dist. Unary requests travel as application/cbor.
type Codec struct{}

// Name implements connect.Codec.
func (Codec) Name() string { return "cbor" }

// Marshal implements connect.Codec.
func (Codec) Marshal(v any) ([]byte, error) {
	return dist.Marshal(v)
}

// Unmarshal implements connect.Codec.
func (Codec) Unmarshal(data []byte, v any) error {
	return dist.Unmarshal(data, v)
}
