package domain

import (
	"dario.cat/mergo"

	"github.com/eleven-am/weft/internal/xjson"
)

// MergeOutputs deep-merges one upstream result set into an accumulator.
// Later values win on key conflicts; slices are appended rather than
// replaced. Used by the fan-in "merge" aggregation.
func MergeOutputs(accumulated, next map[string]interface{}) (map[string]interface{}, error) {
	if accumulated == nil {
		return cloneOutputs(next)
	}
	if next == nil {
		return accumulated, nil
	}

	if err := mergo.Merge(&accumulated, next, mergo.WithOverride, mergo.WithAppendSlice); err != nil {
		return nil, err
	}
	return accumulated, nil
}

func cloneOutputs(src map[string]interface{}) (map[string]interface{}, error) {
	if src == nil {
		return map[string]interface{}{}, nil
	}

	data, err := xjson.Marshal(src)
	if err != nil {
		return nil, err
	}

	dst := make(map[string]interface{}, len(src))
	if err := xjson.Unmarshal(data, &dst); err != nil {
		return nil, err
	}
	return dst, nil
}
