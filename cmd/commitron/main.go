package main

import (
	"context"
	"os"

	"github.com/commitron/commitron/cmd/commitron/commands"
	"github.com/commitron/commitron/internal/di"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := di.ProvideLogger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:  "commitron",
		Usage: "Provision the daily GitHub commit function",
		Description: `Commitron converges the AWS resources behind a small scheduled function
that increments a counter file in a GitHub repository once a day.

This tool provides commands for:
  - Provisioning the secret, execution role, function, and daily schedule
  - Storing the GitHub token in Secrets Manager
  - Inspecting provisioned resource identifiers
  - Smoke-testing the function and tearing the stack down`,
		Commands: []*cli.Command{
			commands.ProvisionCommand(&logger),
			commands.SecretCommand(&logger),
			commands.OutputsCommand(&logger),
			commands.ValidateCommand(&logger),
			commands.InvokeCommand(&logger),
			commands.TeardownCommand(&logger),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
