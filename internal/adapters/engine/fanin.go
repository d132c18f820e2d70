package engine

import (
	"sort"

	"github.com/eleven-am/weft/internal/domain"
	"github.com/eleven-am/weft/internal/xjson"
)

const fanInAggregatedKey = "aggregated"

// parseFanInConfig extracts an optional fan-in declaration from a node's
// configuration block.
func parseFanInConfig(node *domain.Node) (domain.FanInConfig, bool) {
	var cfg domain.FanInConfig
	if node == nil || node.Configuration == nil {
		return cfg, false
	}
	raw, ok := node.Configuration["fan_in"]
	if !ok {
		return cfg, false
	}
	if err := xjson.Roundtrip(raw, &cfg); err != nil {
		return cfg, false
	}
	if cfg.Quorum.Type == "" {
		cfg.Quorum.Type = domain.QuorumAll
	}
	if cfg.Aggregation == "" {
		cfg.Aggregation = domain.AggregationMerge
	}
	return cfg, true
}

// quorumReached gates a fan-in node on its completed upstream count.
// Results arriving after the gate opens are not awaited.
func quorumReached(q domain.Quorum, completed, declared int) bool {
	if declared == 0 {
		return true
	}

	switch q.Type {
	case domain.QuorumAll:
		return completed == declared
	case domain.QuorumFirst:
		return completed >= 1
	case domain.QuorumMajority:
		return completed*2 > declared
	case domain.QuorumNOfM:
		if q.Threshold <= 0 {
			return completed == declared
		}
		threshold := q.Threshold
		if threshold > declared {
			threshold = declared
		}
		return completed >= threshold
	default:
		return completed == declared
	}
}

// aggregate combines the upstream results that had arrived when quorum was
// reached into a single value for the fan-in node's executor.
func aggregate(upstream []map[string]interface{}, cfg domain.FanInConfig) (interface{}, error) {
	switch cfg.Aggregation {
	case domain.AggregationConcat:
		combined := make([]interface{}, 0, len(upstream))
		for _, outputs := range upstream {
			combined = append(combined, outputs)
		}
		return combined, nil

	case domain.AggregationMerge:
		var merged map[string]interface{}
		var err error
		for _, outputs := range upstream {
			merged, err = domain.MergeOutputs(merged, outputs)
			if err != nil {
				return nil, err
			}
		}
		if merged == nil {
			merged = map[string]interface{}{}
		}
		return merged, nil

	case domain.AggregationReduce:
		// Left fold with later results overriding earlier keys; slices
		// accumulate. The executor applies any domain-specific fold on
		// top of this normalized form.
		acc := map[string]interface{}{}
		for _, outputs := range upstream {
			var err error
			acc, err = domain.MergeOutputs(acc, outputs)
			if err != nil {
				return nil, err
			}
		}
		return acc, nil

	case domain.AggregationRank:
		ranked := make([]map[string]interface{}, len(upstream))
		copy(ranked, upstream)
		sort.SliceStable(ranked, func(i, j int) bool {
			return rankScore(ranked[i], cfg.RankKey) > rankScore(ranked[j], cfg.RankKey)
		})
		combined := make([]interface{}, 0, len(ranked))
		for _, outputs := range ranked {
			combined = append(combined, outputs)
		}
		return combined, nil

	default:
		return nil, domain.NewValidationError("fan_in", "unknown aggregation strategy: "+string(cfg.Aggregation))
	}
}

func rankScore(outputs map[string]interface{}, key string) float64 {
	if key == "" {
		key = "score"
	}
	raw, ok := outputs[key]
	if !ok {
		return 0
	}
	switch v := raw.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
