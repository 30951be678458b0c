// Package config defines the provisioning inputs and validates them before any
// AWS resource is touched.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	EnvDev  = "dev"
	EnvProd = "prod"
)

// DefaultGitLayerARN points at the public git-lambda2 layer that bundles a git
// binary for the Lambda runtime.
const DefaultGitLayerARN = "arn:aws:lambda:us-east-1:553035198032:layer:git-lambda2:8"

const (
	DefaultRegion             = "us-east-1"
	DefaultBranch             = "main"
	DefaultFilePath           = "counter.txt"
	DefaultScheduleExpression = "rate(1 day)"
	DefaultTimeoutSeconds     = 300
	DefaultMemoryMB           = 512
	DefaultRecoveryWindowDays = 7
)

// Config is the full input surface for a provisioning run. The GitHub token is
// deliberately absent: it is supplied out-of-band via `commitron secret set`
// and only its Secrets Manager ARN flows through the rest of the system.
type Config struct {
	Region      string            `yaml:"region"`
	GitHubRepo  string            `yaml:"github_repo"`
	FilePath    string            `yaml:"file_path"`
	Branch      string            `yaml:"branch"`
	Environment string            `yaml:"environment"`
	GitLayerARN string            `yaml:"git_layer_arn"`
	CommonTags  map[string]string `yaml:"common_tags"`

	ScheduleExpression string `yaml:"schedule_expression"`
	TimeoutSeconds     int32  `yaml:"timeout_seconds"`
	MemoryMB           int32  `yaml:"memory_mb"`
	RecoveryWindowDays int32  `yaml:"recovery_window_days"`

	// ArtifactPath is the local zip containing the daily-commit handler.
	// The artifact is opaque to the provisioner; only its content hash is
	// inspected, to gate redeploys.
	ArtifactPath string `yaml:"artifact_path"`

	// ArtifactBucket receives zips too large for direct upload.
	ArtifactBucket string `yaml:"artifact_bucket"`

	Runtime string `yaml:"runtime"`
	Handler string `yaml:"handler"`
}

// Load reads a YAML config file and applies defaults. A missing file is not an
// error when path is empty; flags can supply everything.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills zero-valued optional fields. Required inputs (repo,
// environment) stay empty and are caught by Validate.
func (c *Config) ApplyDefaults() {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.Branch == "" {
		c.Branch = DefaultBranch
	}
	if c.FilePath == "" {
		c.FilePath = DefaultFilePath
	}
	if c.GitLayerARN == "" {
		c.GitLayerARN = DefaultGitLayerARN
	}
	if c.ScheduleExpression == "" {
		c.ScheduleExpression = DefaultScheduleExpression
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.MemoryMB == 0 {
		c.MemoryMB = DefaultMemoryMB
	}
	if c.RecoveryWindowDays == 0 {
		c.RecoveryWindowDays = DefaultRecoveryWindowDays
	}
	if c.Runtime == "" {
		c.Runtime = "provided.al2023"
	}
	if c.Handler == "" {
		c.Handler = "bootstrap"
	}
	if c.CommonTags == nil {
		c.CommonTags = map[string]string{}
	}
	if _, ok := c.CommonTags["ManagedBy"]; !ok {
		c.CommonTags["ManagedBy"] = "commitron"
	}
}

// LogLevel returns the log verbosity delivered to the function: verbose for
// non-production, terse for production.
func (c *Config) LogLevel() string {
	if c.Environment == EnvProd {
		return "INFO"
	}
	return "DEBUG"
}

// Resource names are derived from the environment so that dev and prod stacks
// coexist in one account.

func (c *Config) FunctionName() string {
	return fmt.Sprintf("commitron-%s-daily-commit", c.Environment)
}

func (c *Config) RoleName() string {
	return fmt.Sprintf("commitron-%s-exec", c.Environment)
}

func (c *Config) RuleName() string {
	return fmt.Sprintf("commitron-%s-daily", c.Environment)
}

func (c *Config) SecretNamePrefix() string {
	return fmt.Sprintf("commitron/%s/github-token", c.Environment)
}

// FunctionEnvironment builds the environment variable block delivered to the
// function. The secret is passed by ARN only; the value is resolved by the
// handler at invocation time. GIT_PYTHON_REFRESH quiets the artifact's git
// startup probe.
func (c *Config) FunctionEnvironment(secretARN string) map[string]string {
	return map[string]string{
		"GITHUB_REPO":        c.GitHubRepo,
		"FILE_PATH":          c.FilePath,
		"BRANCH":             c.Branch,
		"AWS_SECRET_ID":      secretARN,
		"LOG_LEVEL":          c.LogLevel(),
		"GIT_PYTHON_REFRESH": "quiet",
	}
}
