package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/commitron/commitron/internal/config"
	"github.com/commitron/commitron/internal/di"
	"github.com/commitron/commitron/internal/services"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// OutputsCommand returns the command that prints the provisioned resource
// identifiers recorded in Parameter Store. Only identifiers are stored there,
// never the secret value.
func OutputsCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "outputs",
		Usage: "Print the identifiers of the provisioned resources",
		Flags: append(configFlags(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Emit outputs as JSON",
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

			container, err := newContainer(cfg)
			if err != nil {
				return err
			}
			store := di.MustGet[*services.OutputsStore](container)

			outputs, err := store.Load(ctx)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(outputs)
			}

			fmt.Printf("function_arn:  %s\n", outputs.FunctionARN)
			fmt.Printf("function_name: %s\n", outputs.FunctionName)
			fmt.Printf("role_arn:      %s\n", outputs.RoleARN)
			fmt.Printf("secret_arn:    %s\n", outputs.SecretARN)
			fmt.Printf("rule_arn:      %s\n", outputs.RuleARN)
			return nil
		},
	}
}
