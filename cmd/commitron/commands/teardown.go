package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/commitron/commitron/internal/config"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// TeardownCommand returns the command that removes the provisioned stack. The
// secret is soft-deleted with the configured recovery window rather than
// destroyed immediately.
func TeardownCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "teardown",
		Usage: "Remove the schedule, function, role, and secret",
		Flags: append(configFlags(),
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Skip the confirmation prompt",
			},
		),
		Action: func(c *cli.Context) error {
			ctx := c.Context
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if err := config.ValidateEnvironment(cfg.Environment); err != nil {
				return err
			}

			if !c.Bool("force") {
				fmt.Printf("Tear down the %s environment? [y/N]: ", cfg.Environment)
				reader := bufio.NewReader(os.Stdin)
				answer, err := reader.ReadString('\n')
				if err != nil {
					return fmt.Errorf("failed to read confirmation: %w", err)
				}
				if !strings.EqualFold(strings.TrimSpace(answer), "y") {
					fmt.Println("aborted")
					return nil
				}
			}

			container, err := newContainer(cfg)
			if err != nil {
				return err
			}
			p := buildProvisioner(cfg, container)

			if err := p.Teardown(ctx); err != nil {
				return err
			}

			logger.Info().Str("environment", cfg.Environment).Msg("Teardown complete")
			return nil
		},
	}
}
