package weft

import (
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eleven-am/weft/internal/domain"
)

// Config carries everything needed to assemble a Runner.
type Config = domain.Config

func DefaultConfig() *Config {
	return &Config{
		Execution: domain.DefaultExecutionOptions(),
	}
}

// LoadConfig reads a YAML configuration file. Missing fields fall back to
// defaults when the Runner validates its first run.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, domain.NewValidationError("config", err.Error())
	}
	return config, nil
}

type ConfigBuilder struct {
	config *Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{config: DefaultConfig()}
}

func (cb *ConfigBuilder) WithDataDir(dataDir string) *ConfigBuilder {
	cb.config.DataDir = dataDir
	return cb
}

func (cb *ConfigBuilder) WithLogger(logger *slog.Logger) *ConfigBuilder {
	cb.config.Logger = logger
	return cb
}

func (cb *ConfigBuilder) WithParallelism(maxParallelNodes int) *ConfigBuilder {
	cb.config.Execution.ParallelExecution = maxParallelNodes > 1
	cb.config.Execution.MaxParallelNodes = maxParallelNodes
	return cb
}

func (cb *ConfigBuilder) WithRetryPolicy(maxRetries int, baseDelay, maxDelay time.Duration, retryableErrors ...string) *ConfigBuilder {
	cb.config.Execution.RetryConfig.MaxRetries = maxRetries
	cb.config.Execution.RetryConfig.BaseDelay = baseDelay
	cb.config.Execution.RetryConfig.MaxDelay = maxDelay
	cb.config.Execution.RetryConfig.RetryableErrors = retryableErrors
	return cb
}

func (cb *ConfigBuilder) WithTimeouts(nodeTimeout, workflowTimeout time.Duration) *ConfigBuilder {
	cb.config.Execution.TimeoutConfig.NodeTimeout = nodeTimeout
	cb.config.Execution.TimeoutConfig.WorkflowTimeout = workflowTimeout
	return cb
}

func (cb *ConfigBuilder) WithCheckpointing(enabled bool, interval time.Duration) *ConfigBuilder {
	cb.config.Execution.EnableCheckpointing = enabled
	cb.config.Execution.CheckpointInterval = interval
	return cb
}

func (cb *ConfigBuilder) WithStopOnFailure(stop bool) *ConfigBuilder {
	cb.config.Execution.StopOnFailure = stop
	return cb
}

func (cb *ConfigBuilder) WithBudget(budget CapabilityBudget) *ConfigBuilder {
	cb.config.Budget = budget
	return cb
}

func (cb *ConfigBuilder) WithService(name string, service interface{}) *ConfigBuilder {
	if cb.config.Services == nil {
		cb.config.Services = make(map[string]interface{})
	}
	cb.config.Services[name] = service
	return cb
}

func (cb *ConfigBuilder) Build() *Config {
	return cb.config
}
