package commands

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// ProvisionCommand returns the command that converges the full stack: secret,
// role, function, and schedule.
func ProvisionCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "provision",
		Usage: "Converge the daily-commit stack to the configured state",
		Description: `Provision (or update) every resource the daily commit function needs:

  - the Secrets Manager secret holding the GitHub token
  - the least-privilege execution role
  - the Lambda function, redeployed only when the artifact hash changes
  - the EventBridge rule that fires it once a day

Re-running against an already-provisioned environment is a no-op.`,
		Flags: append(configFlags(),
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Show the convergence plan without changing anything",
			},
		),
		Action: func(c *cli.Context) error {
			ctx := c.Context
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			container, err := newContainer(cfg)
			if err != nil {
				return err
			}
			p := buildProvisioner(cfg, container)

			if c.Bool("dry-run") {
				steps, err := p.Plan(ctx)
				if err != nil {
					return err
				}
				for _, step := range steps {
					fmt.Println(step)
				}
				return nil
			}

			result, err := p.Provision(ctx)
			if err != nil {
				return err
			}

			logger.Info().
				Str("function_arn", result.Outputs.FunctionARN).
				Str("rule_arn", result.Outputs.RuleARN).
				Bool("code_updated", result.Deployment.CodeUpdated).
				Msg("Provisioning complete")

			fmt.Printf("function: %s\n", result.Outputs.FunctionARN)
			fmt.Printf("role:     %s\n", result.Outputs.RoleARN)
			fmt.Printf("secret:   %s\n", result.Outputs.SecretARN)
			fmt.Printf("rule:     %s\n", result.Outputs.RuleARN)
			return nil
		},
	}
}
