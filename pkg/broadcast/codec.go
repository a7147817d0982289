package broadcast

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Codec encodes published payloads.
type Codec interface {
	Name() string
	ContentType() string
	Marshal(v interface{}) ([]byte, error)
}

const (
	FormatJSON = "json"
	FormatCBOR = "cbor"
)

type jsonCodec struct{}

func (jsonCodec) Name() string                          { return FormatJSON }
func (jsonCodec) ContentType() string                   { return "application/json" }
func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

type cborCodec struct {
	em cbor.EncMode
}

func (cborCodec) Name() string        { return FormatCBOR }
func (cborCodec) ContentType() string { return "application/cbor" }

func (c cborCodec) Marshal(v interface{}) ([]byte, error) {
	return c.em.Marshal(v)
}

func newCBORCodec() (Codec, error) {
	opts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	em, err := opts.EncMode()
	if err != nil {
		return nil, err
	}
	return cborCodec{em: em}, nil
}

// NewCodec returns the codec for format, json when empty.
func NewCodec(format string) (Codec, error) {
	switch format {
	case "", FormatJSON:
		return jsonCodec{}, nil
	case FormatCBOR:
		return newCBORCodec()
	default:
		return nil, fmt.Errorf("unsupported payload format %q", format)
	}
}
