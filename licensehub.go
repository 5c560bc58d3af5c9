package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/licensehub/cmd"
)

const (
	version = "0.1.0"
)

func main() {
	app := &cli.App{
		Name:    "licensehub",
		Usage:   "License issuing and clinic back office",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"LICENSEHUB_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from `FILE` before anything else",
			},
		},
		Before: func(c *cli.Context) error {
			if f := c.String("env-file"); f != "" {
				return cmd.LoadEnvFile(f)
			}
			return nil
		},
		Commands: []*cli.Command{
			cmd.APICommand(),
			cmd.ConfigCommand(),
			cmd.CreateAdminCommand(),
			cmd.LicenseCommand(version),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
