// Package commands wires the provisioning services into the CLI surface.
package commands

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/commitron/commitron/internal/config"
	"github.com/commitron/commitron/internal/di"
	"github.com/commitron/commitron/internal/policy"
	"github.com/commitron/commitron/internal/provisioner"
	"github.com/commitron/commitron/internal/services"
	"github.com/urfave/cli/v2"
)

// configFlags are the input flags shared by every command that needs a full
// configuration. Flag values override whatever the YAML file supplies.
func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to YAML config file",
		},
		&cli.StringFlag{
			Name:  "region",
			Usage: "AWS region",
		},
		&cli.StringFlag{
			Name:  "github-repo",
			Usage: "GitHub repository in owner/name form",
		},
		&cli.StringFlag{
			Name:  "file-path",
			Usage: "Path of the counter file within the repository",
		},
		&cli.StringFlag{
			Name:  "branch",
			Usage: "Branch the counter is committed to",
		},
		&cli.StringFlag{
			Name:  "environment",
			Usage: "Deployment environment (dev or prod)",
		},
		&cli.StringFlag{
			Name:  "git-layer-arn",
			Usage: "ARN of the Lambda layer providing a git binary",
		},
		&cli.StringFlag{
			Name:  "artifact-path",
			Usage: "Local path to the function deployment zip",
		},
		&cli.StringFlag{
			Name:  "artifact-bucket",
			Usage: "S3 bucket for staging large deployment zips",
		},
	}
}

// loadConfig merges the YAML file with any per-input flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("region") {
		cfg.Region = c.String("region")
	}
	if c.IsSet("github-repo") {
		cfg.GitHubRepo = c.String("github-repo")
	}
	if c.IsSet("file-path") {
		cfg.FilePath = c.String("file-path")
	}
	if c.IsSet("branch") {
		cfg.Branch = c.String("branch")
	}
	if c.IsSet("environment") {
		cfg.Environment = c.String("environment")
	}
	if c.IsSet("git-layer-arn") {
		cfg.GitLayerARN = c.String("git-layer-arn")
	}
	if c.IsSet("artifact-path") {
		cfg.ArtifactPath = c.String("artifact-path")
	}
	if c.IsSet("artifact-bucket") {
		cfg.ArtifactBucket = c.String("artifact-bucket")
	}

	return cfg, nil
}

// newContainer builds the dependency injection container for a command run,
// registering the service constructors on top of the core AWS clients.
func newContainer(cfg *config.Config) (di.Container, error) {
	container, err := di.New(cfg.Environment,
		di.WithRegion(cfg.Region),
		di.WithProviders(
			provideSecretHolder,
			provideIdentityBinder,
			provideFunctionDeployer,
			provideScheduler,
			func(client *s3.Client) *services.ArtifactStore {
				return services.NewArtifactStore(client, cfg.ArtifactBucket)
			},
			func(client *ssm.Client) *services.OutputsStore {
				return services.NewOutputsStore(client, cfg.Environment)
			},
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build container: %w", err)
	}
	return container, nil
}

func provideSecretHolder(client *secretsmanager.Client) *services.SecretHolder {
	return services.NewSecretHolder(client)
}

func provideIdentityBinder(iamClient *iam.Client, stsClient *sts.Client) (*services.IdentityBinder, error) {
	validator, err := policy.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to build policy validator: %w", err)
	}
	return services.NewIdentityBinder(iamClient, stsClient, validator), nil
}

func provideFunctionDeployer(client *lambda.Client) *services.FunctionDeployer {
	return services.NewFunctionDeployer(client)
}

func provideScheduler(events *eventbridge.Client, lambdaClient *lambda.Client) *services.Scheduler {
	return services.NewScheduler(events, lambdaClient)
}

// buildProvisioner assembles the full convergence pipeline from the container.
func buildProvisioner(cfg *config.Config, container di.Container) *provisioner.Provisioner {
	return provisioner.New(cfg,
		di.MustGet[*services.SecretHolder](container),
		di.MustGet[*services.IdentityBinder](container),
		di.MustGet[*services.FunctionDeployer](container),
		di.MustGet[*services.Scheduler](container),
		di.MustGet[*services.ArtifactStore](container),
		di.MustGet[*services.OutputsStore](container),
	)
}
