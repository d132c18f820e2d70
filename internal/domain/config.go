package domain

import (
	"log/slog"
	"time"
)

type Config struct {
	DataDir string       `json:"data_dir" yaml:"data_dir"`
	Logger  *slog.Logger `json:"-" yaml:"-"`

	Execution ExecutionOptions `json:"execution" yaml:"execution"`
	Budget    CapabilityBudget `json:"budget" yaml:"budget"`

	// Services is an opaque bag of host dependencies handed to every node
	// executor through its ExecutionContext. Never serialized.
	Services map[string]interface{} `json:"-" yaml:"-"`
}

type ExecutionOptions struct {
	ParallelExecution   bool          `json:"parallel_execution" yaml:"parallel_execution"`
	MaxParallelNodes    int           `json:"max_parallel_nodes" yaml:"max_parallel_nodes"`
	StopOnFailure       bool          `json:"stop_on_failure" yaml:"stop_on_failure"`
	EnableCheckpointing bool          `json:"enable_checkpointing" yaml:"enable_checkpointing"`
	CheckpointInterval  time.Duration `json:"checkpoint_interval" yaml:"checkpoint_interval"`
	RetryConfig         RetryConfig   `json:"retry_config" yaml:"retry_config"`
	TimeoutConfig       TimeoutConfig `json:"timeout_config" yaml:"timeout_config"`
}

type RetryConfig struct {
	MaxRetries        int           `json:"max_retries" yaml:"max_retries"`
	BaseDelay         time.Duration `json:"base_delay" yaml:"base_delay"`
	MaxDelay          time.Duration `json:"max_delay" yaml:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier" yaml:"backoff_multiplier"`
	RetryableErrors   []string      `json:"retryable_errors,omitempty" yaml:"retryable_errors,omitempty"`
}

type TimeoutConfig struct {
	NodeTimeout     time.Duration `json:"node_timeout" yaml:"node_timeout"`
	WorkflowTimeout time.Duration `json:"workflow_timeout" yaml:"workflow_timeout"`
	GracePeriod     time.Duration `json:"grace_period" yaml:"grace_period"`
}

// CapabilityBudget is the ceiling on shared, finite resources for one run.
// Read-only while the run executes.
type CapabilityBudget struct {
	MaxConcurrentNodes int           `json:"max_concurrent_nodes" yaml:"max_concurrent_nodes"`
	MaxSessionHandles  int           `json:"max_session_handles" yaml:"max_session_handles"`
	MaxMemoryBytes     int64         `json:"max_memory_bytes" yaml:"max_memory_bytes"`
	MaxCost            float64       `json:"max_cost" yaml:"max_cost"`
	WallTimeLimit      time.Duration `json:"wall_time_limit" yaml:"wall_time_limit"`
}

type ResourceRequirements struct {
	SessionHandles int     `json:"session_handles" yaml:"session_handles"`
	MemoryBytes    int64   `json:"memory_bytes" yaml:"memory_bytes"`
	Cost           float64 `json:"cost" yaml:"cost"`
}

type ResourceAllocation struct {
	NodeID         string     `json:"node_id"`
	SessionHandles int        `json:"session_handles"`
	MemoryBytes    int64      `json:"memory_bytes"`
	Cost           float64    `json:"cost"`
	AllocatedAt    time.Time  `json:"allocated_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

type BackpressurePolicy string

const (
	BackpressureDropOldest BackpressurePolicy = "drop_oldest"
	BackpressureDropNewest BackpressurePolicy = "drop_newest"
	BackpressureReject     BackpressurePolicy = "reject"
)

type FanOutConfig struct {
	MaxConcurrency int                `json:"max_concurrency" yaml:"max_concurrency"`
	BatchSize      int                `json:"batch_size" yaml:"batch_size"`
	Backpressure   BackpressurePolicy `json:"backpressure" yaml:"backpressure"`
	PreserveOrder  bool               `json:"preserve_order" yaml:"preserve_order"`
}

type QuorumType string

const (
	QuorumAll      QuorumType = "all"
	QuorumFirst    QuorumType = "first"
	QuorumMajority QuorumType = "majority"
	QuorumNOfM     QuorumType = "n_of_m"
)

type AggregationType string

const (
	AggregationConcat AggregationType = "concat"
	AggregationMerge  AggregationType = "merge"
	AggregationReduce AggregationType = "reduce"
	AggregationRank   AggregationType = "rank"
)

type Quorum struct {
	Type      QuorumType `json:"type" yaml:"type"`
	Threshold int        `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

type FanInConfig struct {
	Quorum      Quorum          `json:"quorum" yaml:"quorum"`
	Aggregation AggregationType `json:"aggregation" yaml:"aggregation"`
	Ordering    string          `json:"ordering,omitempty" yaml:"ordering,omitempty"`
	RankKey     string          `json:"rank_key,omitempty" yaml:"rank_key,omitempty"`
}

type LoopConfig struct {
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`
}
