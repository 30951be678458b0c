package commands

import (
	"fmt"

	"github.com/commitron/commitron/internal/config"
	"github.com/commitron/commitron/internal/di"
	"github.com/commitron/commitron/internal/services"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// InvokeCommand returns the command that triggers the deployed function once,
// synchronously, as a smoke test outside the daily schedule.
func InvokeCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "invoke",
		Usage: "Invoke the daily-commit function once and print its response",
		Flags: configFlags(),
		Action: func(c *cli.Context) error {
			ctx := c.Context
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if err := config.ValidateEnvironment(cfg.Environment); err != nil {
				return err
			}

			container, err := newContainer(cfg)
			if err != nil {
				return err
			}
			deployer := di.MustGet[*services.FunctionDeployer](container)

			payload, err := deployer.Invoke(ctx, cfg.FunctionName())
			if err != nil {
				return err
			}

			logger.Info().Str("function", cfg.FunctionName()).Msg("Invocation succeeded")
			fmt.Println(string(payload))
			return nil
		},
	}
}
