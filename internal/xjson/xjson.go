package xjson

import (
	stdjson "encoding/json"

	gjson "github.com/goccy/go-json"
)

// Single import site for JSON codec selection; callers never import
// goccy/go-json or encoding/json directly.

func Marshal(v interface{}) ([]byte, error) {
	return gjson.Marshal(v)
}

func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gjson.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v interface{}) error {
	return gjson.Unmarshal(data, v)
}

// Roundtrip converts an arbitrary value through the codec. Used to
// normalize executor outputs into string-keyed maps before merging.
func Roundtrip(src interface{}, dst interface{}) error {
	data, err := gjson.Marshal(src)
	if err != nil {
		return err
	}
	return gjson.Unmarshal(data, dst)
}

// RawMessage is kept compatible with encoding/json's RawMessage type.
type RawMessage = stdjson.RawMessage
