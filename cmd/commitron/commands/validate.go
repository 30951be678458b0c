package commands

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// ValidateCommand returns the command that checks the configuration without
// touching any AWS resource.
func ValidateCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Validate the configuration without provisioning anything",
		Flags: configFlags(),
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Println("configuration is valid")
			return nil
		},
	}
}
