package domain

import (
	"fmt"
	"time"
)

const (
	DefaultMaxParallelNodes   = 5
	DefaultCheckpointInterval = 30 * time.Second
	DefaultNodeTimeout        = 300 * time.Second
	DefaultMaxRetries         = 3
	DefaultBaseDelay          = time.Second
	DefaultMaxDelay           = 30 * time.Second
	DefaultBackoffMultiplier  = 2.0
)

func DefaultExecutionOptions() ExecutionOptions {
	return ExecutionOptions{
		ParallelExecution:   true,
		MaxParallelNodes:    DefaultMaxParallelNodes,
		StopOnFailure:       false,
		EnableCheckpointing: true,
		CheckpointInterval:  DefaultCheckpointInterval,
		RetryConfig: RetryConfig{
			MaxRetries:        DefaultMaxRetries,
			BaseDelay:         DefaultBaseDelay,
			MaxDelay:          DefaultMaxDelay,
			BackoffMultiplier: DefaultBackoffMultiplier,
		},
		TimeoutConfig: TimeoutConfig{
			NodeTimeout: DefaultNodeTimeout,
		},
	}
}

func (o *ExecutionOptions) ApplyDefaults() {
	if o.MaxParallelNodes <= 0 {
		o.MaxParallelNodes = DefaultMaxParallelNodes
	}
	if !o.ParallelExecution {
		o.MaxParallelNodes = 1
	}
	if o.CheckpointInterval <= 0 {
		o.CheckpointInterval = DefaultCheckpointInterval
	}
	if o.RetryConfig.MaxRetries < 0 {
		o.RetryConfig.MaxRetries = 0
	}
	if o.RetryConfig.BaseDelay <= 0 {
		o.RetryConfig.BaseDelay = DefaultBaseDelay
	}
	if o.RetryConfig.MaxDelay <= 0 {
		o.RetryConfig.MaxDelay = DefaultMaxDelay
	}
	if o.RetryConfig.BackoffMultiplier <= 0 {
		o.RetryConfig.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if o.TimeoutConfig.NodeTimeout <= 0 {
		o.TimeoutConfig.NodeTimeout = DefaultNodeTimeout
	}
}

func (o *ExecutionOptions) Validate() error {
	if o.MaxParallelNodes <= 0 {
		return NewConfigError("MaxParallelNodes", ErrInvalidConfig)
	}
	if o.RetryConfig.BackoffMultiplier < 1 {
		return NewConfigError("RetryConfig.BackoffMultiplier", ErrInvalidConfig)
	}
	if o.RetryConfig.MaxDelay < o.RetryConfig.BaseDelay {
		return NewConfigError("RetryConfig.MaxDelay", ErrInvalidConfig)
	}
	if o.TimeoutConfig.NodeTimeout <= 0 {
		return NewConfigError("TimeoutConfig.NodeTimeout", ErrInvalidConfig)
	}
	return nil
}

type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config field %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func NewConfigError(field string, err error) *ConfigError {
	return &ConfigError{Field: field, Err: err}
}
