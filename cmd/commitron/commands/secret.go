package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/commitron/commitron/internal/config"
	"github.com/commitron/commitron/internal/di"
	"github.com/commitron/commitron/internal/services"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// SecretCommand returns the command group for managing the GitHub token. The
// token never transits a config file: it arrives via flag or stdin and leaves
// the process only toward Secrets Manager.
func SecretCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "secret",
		Usage: "Manage the GitHub token secret",
		Subcommands: []*cli.Command{
			{
				Name:  "set",
				Usage: "Store a GitHub token, creating the secret if needed",
				Flags: append(configFlags(),
					&cli.StringFlag{
						Name:  "value",
						Usage: "Token value (reads stdin when omitted)",
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

					value := c.String("value")
					if value == "" {
						data, err := io.ReadAll(os.Stdin)
						if err != nil {
							return fmt.Errorf("failed to read token from stdin: %w", err)
						}
						value = strings.TrimSpace(string(data))
					}
					if err := config.ValidateSecretValue(value); err != nil {
						return err
					}

					container, err := newContainer(cfg)
					if err != nil {
						return err
					}
					holder := di.MustGet[*services.SecretHolder](container)

					arn, err := holder.EnsureSecret(ctx, cfg.SecretNamePrefix(), cfg.CommonTags)
					if err != nil {
						return err
					}
					versionID, err := holder.PutValue(ctx, arn, value)
					if err != nil {
						return err
					}

					logger.Info().
						Str("secret_arn", arn).
						Str("version_id", versionID).
						Msg("Secret value stored")
					return nil
				},
			},
		},
	}
}
