package cmd

import (
	"fmt"
	"net/url"

	"github.com/urfave/cli/v2"

	"github.com/licensehub/internal/config"
)

// ConfigCommand returns the config command
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write a sample configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
						Value:   "licensehub.toml",
					},
				},
				Action: runConfigInit,
			},
			{
				Name:   "validate",
				Usage:  "Load the configuration with env overrides applied and check it",
				Action: runConfigValidate,
			},
			{
				Name:   "env",
				Usage:  "Report which LICENSEHUB_* variables are set",
				Action: runConfigEnv,
			},
		},
	}
}

func runConfigInit(c *cli.Context) error {
	outputPath := c.String("output")
	if err := config.InitConfig(outputPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	fmt.Printf("Created configuration file at %s\n", outputPath)
	return nil
}

func runConfigValidate(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Printf("port:           %d\n", cfg.Server.Port)
	fmt.Printf("database:       %s\n", redactURL(cfg.Database.URL))
	fmt.Printf("access ttl:     %s\n", cfg.Auth.AccessTTL)
	fmt.Printf("refresh ttl:    %s\n", cfg.Auth.RefreshTTL)
	fmt.Printf("jobs enabled:   %t\n", cfg.Jobs.Enabled)
	fmt.Printf("public limit:   %.1f req/s\n", cfg.Server.PublicRateLimit)
	fmt.Println("Configuration is valid")
	return nil
}

func runConfigEnv(c *cli.Context) error {
	result := CheckRequiredConfig()
	PrintConfigCheck(result)
	if len(result.Missing) > 0 {
		return cli.Exit("required configuration is missing", 1)
	}
	return nil
}

// redactURL hides the password of a connection string
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
