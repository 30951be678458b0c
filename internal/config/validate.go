package config

import (
	"fmt"
	"regexp"

	"github.com/commitron/commitron/internal/errors"
)

var (
	repoPattern     = regexp.MustCompile(`^\w+/\w+$`)
	pathPattern     = regexp.MustCompile(`^[\w\-./]+$`)
	layerARNPattern = regexp.MustCompile(`^arn:aws:lambda:[a-z0-9-]+:\d{12}:layer:[A-Za-z0-9\-_]+:\d+$`)
)

// ValidationError reports which input violated which constraint. Validation is
// fail-fast: the first failing input aborts the provisioning run before any
// resource call is made.
type ValidationError struct {
	Input      string
	Value      string
	Constraint string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Input, e.Value, e.Constraint)
}

// ValidateGitHubRepo accepts only "owner/name" with exactly one slash and two
// non-empty word-character segments.
func ValidateGitHubRepo(s string) error {
	if !repoPattern.MatchString(s) {
		return &ValidationError{
			Input:      "github_repo",
			Value:      s,
			Constraint: "must be in the format owner/name",
		}
	}
	return nil
}

// ValidateFilePath restricts paths to word characters, '-', '.', and '/'.
func ValidateFilePath(s string) error {
	if !pathPattern.MatchString(s) {
		return &ValidationError{
			Input:      "file_path",
			Value:      s,
			Constraint: "must be non-empty and contain only alphanumerics, '-', '_', '.', or '/'",
		}
	}
	return nil
}

// ValidateBranch applies the same character set as file paths.
func ValidateBranch(s string) error {
	if !pathPattern.MatchString(s) {
		return &ValidationError{
			Input:      "branch",
			Value:      s,
			Constraint: "must be non-empty and contain only alphanumerics, '-', '_', '.', or '/'",
		}
	}
	return nil
}

// ValidateEnvironment accepts only members of the closed environment set.
func ValidateEnvironment(s string) error {
	switch s {
	case EnvDev, EnvProd:
		return nil
	}
	return &ValidationError{
		Input:      "environment",
		Value:      s,
		Constraint: fmt.Sprintf("must be one of %q or %q", EnvDev, EnvProd),
	}
}

// ValidateLayerARN requires a fully-qualified versioned Lambda layer ARN.
func ValidateLayerARN(s string) error {
	if !layerARNPattern.MatchString(s) {
		return &ValidationError{
			Input:      "git_layer_arn",
			Value:      s,
			Constraint: "must be a versioned Lambda layer ARN (arn:aws:lambda:<region>:<account>:layer:<name>:<version>)",
		}
	}
	return nil
}

// ValidateSecretValue rejects an empty token value.
func ValidateSecretValue(s string) error {
	if s == "" {
		return errors.ErrSecretValueEmpty
	}
	return nil
}

// Validate checks every input against its pattern. It has no side effects and
// is run once per provisioning cycle; a failure is fatal to the whole run.
func (c *Config) Validate() error {
	if err := ValidateGitHubRepo(c.GitHubRepo); err != nil {
		return err
	}
	if err := ValidateFilePath(c.FilePath); err != nil {
		return err
	}
	if err := ValidateBranch(c.Branch); err != nil {
		return err
	}
	if err := ValidateEnvironment(c.Environment); err != nil {
		return err
	}
	if err := ValidateLayerARN(c.GitLayerARN); err != nil {
		return err
	}
	return nil
}
