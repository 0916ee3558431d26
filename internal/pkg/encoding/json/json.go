// Package json wraps the json-iterator library, ordered map keys are guaranteed.
package json

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/gridrun/gridrun/internal/pkg/utils/errors"
)

// nolint: gochecknoglobals
var json = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

func Encode(v any, pretty bool) ([]byte, error) {
	var data []byte
	var err error
	if pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return nil, errors.Wrapf(err, `cannot encode "%T" to JSON`, v)
	}
	return data, nil
}

func EncodeString(v any, pretty bool) (string, error) {
	data, err := Encode(v, pretty)
	return string(data), err
}

func MustEncodeString(v any, pretty bool) string {
	data, err := EncodeString(v, pretty)
	if err != nil {
		panic(err)
	}
	return data
}

func Decode(data []byte, target any) error {
	if err := json.Unmarshal(data, target); err != nil {
		return errors.Wrapf(err, `cannot decode JSON to "%T"`, target)
	}
	return nil
}

func DecodeString(data string, target any) error {
	return Decode([]byte(data), target)
}
