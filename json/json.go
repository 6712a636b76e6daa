// Package json wraps json-iterator with struct-default handling so decoded
// documents (manifests, stored records, plugin settings) come back with
// their `default:` tags applied.
package json

import (
	"io"
	"reflect"

	"github.com/creasty/defaults"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// applyDefaults fills `default:` tags on struct targets. Maps, slices and
// other non-struct targets pass through untouched; defaults.Set only knows
// struct pointers.
func applyDefaults(v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return nil
	}
	return defaults.Set(v)
}

type Encoder struct {
	*jsoniter.Encoder
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		Encoder: json.NewEncoder(w),
	}
}

type Decoder struct {
	*jsoniter.Decoder
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		Decoder: json.NewDecoder(r),
	}
}

// Decode fills defaults before decoding so absent fields keep their tag value.
func (d *Decoder) Decode(v any) error {
	if err := applyDefaults(v); err != nil {
		return err
	}
	return d.Decoder.Decode(v)
}

func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func MarshalToString(v any) (string, error) {
	return json.MarshalToString(v)
}

func Unmarshal(data []byte, v any) error {
	if err := applyDefaults(v); err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func UnmarshalFromString(data string, v any) error {
	if err := applyDefaults(v); err != nil {
		return err
	}
	return json.UnmarshalFromString(data, v)
}

func Valid(data []byte) bool {
	return json.Valid(data)
}
