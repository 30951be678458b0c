// Package provisioner converges the daily-commit infrastructure toward the
// validated configuration: secret, execution role, function, and schedule, in
// dependency order.
package provisioner

import (
	"context"
	"fmt"

	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/rs/zerolog"

	"github.com/commitron/commitron/internal/config"
	"github.com/commitron/commitron/internal/services"
)

// The provisioner depends on narrow capabilities rather than concrete service
// types so convergence order and fail-fast behavior are testable in isolation.

type SecretHolder interface {
	EnsureSecret(ctx context.Context, name string, tags map[string]string) (string, error)
	ScheduleDeletion(ctx context.Context, secretID string, recoveryWindowDays int32) error
}

type IdentityBinder interface {
	GetAWSAccountID(ctx context.Context) (string, error)
	EnsureRole(ctx context.Context, roleName string, tags map[string]string) (string, error)
	AttachPermissions(ctx context.Context, roleName, secretARN, region, accountID string) error
	DeleteRole(ctx context.Context, roleName string) error
}

type FunctionDeployer interface {
	Deploy(ctx context.Context, spec services.FunctionSpec) (*services.Deployment, error)
	Delete(ctx context.Context, name string) error
}

type Scheduler interface {
	EnsureRule(ctx context.Context, name, scheduleExpression string, tags map[string]string) (string, error)
	Arm(ctx context.Context, ruleName, ruleARN, functionName, functionARN string) error
	DeleteRule(ctx context.Context, ruleName, functionName string) error
}

type ArtifactStager interface {
	Stage(ctx context.Context, functionName string, artifact *services.Artifact) (bucket, key string, err error)
}

type OutputsStore interface {
	Save(ctx context.Context, outputs *services.Outputs) error
}

// Result reports what a provisioning run produced and what it changed.
type Result struct {
	Outputs    services.Outputs
	Deployment services.Deployment
}

type Provisioner struct {
	cfg       *config.Config
	secrets   SecretHolder
	roles     IdentityBinder
	functions FunctionDeployer
	scheduler Scheduler
	stager    ArtifactStager
	outputs   OutputsStore
}

func New(cfg *config.Config, secrets SecretHolder, roles IdentityBinder, functions FunctionDeployer, scheduler Scheduler, stager ArtifactStager, outputs OutputsStore) *Provisioner {
	return &Provisioner{
		cfg:       cfg,
		secrets:   secrets,
		roles:     roles,
		functions: functions,
		scheduler: scheduler,
		stager:    stager,
		outputs:   outputs,
	}
}

// Provision runs one single-threaded convergence pass. Validation gates
// everything: an invalid input aborts before any resource call. Re-running
// with unchanged inputs and an unchanged artifact changes nothing.
func (p *Provisioner) Provision(ctx context.Context) (*Result, error) {
	logger := zerolog.Ctx(ctx)

	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}

	artifact, err := services.LoadArtifact(p.cfg.ArtifactPath)
	if err != nil {
		return nil, err
	}

	secretARN, err := p.secrets.EnsureSecret(ctx, p.cfg.SecretNamePrefix(), p.cfg.CommonTags)
	if err != nil {
		return nil, err
	}

	accountID, err := p.roles.GetAWSAccountID(ctx)
	if err != nil {
		return nil, err
	}

	roleARN, err := p.roles.EnsureRole(ctx, p.cfg.RoleName(), p.cfg.CommonTags)
	if err != nil {
		return nil, err
	}
	if err := p.roles.AttachPermissions(ctx, p.cfg.RoleName(), secretARN, p.cfg.Region, accountID); err != nil {
		return nil, err
	}

	spec := services.FunctionSpec{
		Name:           p.cfg.FunctionName(),
		RoleARN:        roleARN,
		Handler:        p.cfg.Handler,
		Runtime:        lambdatypes.Runtime(p.cfg.Runtime),
		TimeoutSeconds: p.cfg.TimeoutSeconds,
		MemoryMB:       p.cfg.MemoryMB,
		Layers:         []string{p.cfg.GitLayerARN},
		Environment:    p.cfg.FunctionEnvironment(secretARN),
		Tags:           p.cfg.CommonTags,
		CodeSHA256:     artifact.SHA256,
	}

	if artifact.NeedsStaging() {
		if p.stager == nil {
			return nil, fmt.Errorf("artifact %s exceeds the direct-upload limit and no artifact bucket is configured", artifact.Path)
		}
		bucket, key, err := p.stager.Stage(ctx, spec.Name, artifact)
		if err != nil {
			return nil, err
		}
		spec.S3Bucket = bucket
		spec.S3Key = key
	} else {
		spec.ZipFile = artifact.Data
	}

	deployment, err := p.functions.Deploy(ctx, spec)
	if err != nil {
		return nil, err
	}

	ruleARN, err := p.scheduler.EnsureRule(ctx, p.cfg.RuleName(), p.cfg.ScheduleExpression, p.cfg.CommonTags)
	if err != nil {
		return nil, err
	}
	if err := p.scheduler.Arm(ctx, p.cfg.RuleName(), ruleARN, deployment.FunctionName, deployment.FunctionARN); err != nil {
		return nil, err
	}

	result := &Result{
		Outputs: services.Outputs{
			FunctionARN:  deployment.FunctionARN,
			FunctionName: deployment.FunctionName,
			RoleARN:      roleARN,
			SecretARN:    secretARN,
			RuleARN:      ruleARN,
		},
		Deployment: *deployment,
	}

	if err := p.outputs.Save(ctx, &result.Outputs); err != nil {
		return nil, err
	}

	logger.Info().
		Str("function", deployment.FunctionName).
		Bool("code_updated", deployment.CodeUpdated).
		Bool("config_updated", deployment.ConfigUpdated).
		Msg("Provisioning converged")
	return result, nil
}

// Plan validates the inputs and describes what a run would converge, without
// touching any resource.
func (p *Provisioner) Plan(ctx context.Context) ([]string, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}

	artifact, err := services.LoadArtifact(p.cfg.ArtifactPath)
	if err != nil {
		return nil, err
	}

	steps := []string{
		fmt.Sprintf("secret %s (recovery window %dd)", p.cfg.SecretNamePrefix(), p.cfg.RecoveryWindowDays),
		fmt.Sprintf("role %s with secret-read and log-write statements", p.cfg.RoleName()),
		fmt.Sprintf("function %s (%s, %dMB, %ds, code sha256 %s)", p.cfg.FunctionName(), p.cfg.Runtime, p.cfg.MemoryMB, p.cfg.TimeoutSeconds, artifact.SHA256),
		fmt.Sprintf("rule %s (%s), armed against %s", p.cfg.RuleName(), p.cfg.ScheduleExpression, p.cfg.FunctionName()),
		fmt.Sprintf("outputs under /%s/commitron", p.cfg.Environment),
	}
	return steps, nil
}

// Teardown removes the provisioned resources in reverse dependency order. The
// secret is soft-deleted with the configured recovery window.
func (p *Provisioner) Teardown(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	if err := p.scheduler.DeleteRule(ctx, p.cfg.RuleName(), p.cfg.FunctionName()); err != nil {
		return err
	}
	if err := p.functions.Delete(ctx, p.cfg.FunctionName()); err != nil {
		return err
	}
	if err := p.roles.DeleteRole(ctx, p.cfg.RoleName()); err != nil {
		return err
	}
	if err := p.secrets.ScheduleDeletion(ctx, p.cfg.SecretNamePrefix(), p.cfg.RecoveryWindowDays); err != nil {
		return err
	}

	logger.Info().Str("environment", p.cfg.Environment).Msg("Teardown complete")
	return nil
}
