package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/licensehub/internal/license"
	"github.com/licensehub/internal/retry"
)

// LicenseCommand returns the device-side license commands. They talk to a
// running licensehub server over HTTP.
func LicenseCommand(appVersion string) *cli.Command {
	serverFlag := &cli.StringFlag{
		Name:    "server",
		Usage:   "Base URL of the licensehub server",
		Value:   "http://localhost:8080",
		EnvVars: []string{"LICENSEHUB_SERVER_URL"},
	}
	timeoutFlag := &cli.DurationFlag{
		Name:  "timeout",
		Usage: "HTTP timeout",
		Value: 10 * time.Second,
	}

	return &cli.Command{
		Name:  "license",
		Usage: "Activate or validate a license from this machine",
		Subcommands: []*cli.Command{
			{
				Name:      "activate",
				Usage:     "Bind this machine to a license serial",
				ArgsUsage: "SERIAL",
				Flags: []cli.Flag{
					serverFlag,
					timeoutFlag,
					&cli.StringFlag{Name: "hardware-id", Usage: "Override the computed hardware ID"},
					&cli.StringFlag{Name: "device-name", Usage: "Device name to report (defaults to the hostname)"},
				},
				Action: func(c *cli.Context) error {
					serial := c.Args().First()
					if serial == "" {
						return cli.Exit("a serial is required", 2)
					}
					hwid := c.String("hardware-id")
					if hwid == "" {
						hwid = license.HardwareFingerprint()
					}
					name := c.String("device-name")
					if name == "" {
						name, _ = os.Hostname()
					}

					client := license.NewClient(license.ClientConfig{BaseURL: c.String("server"), Timeout: c.Duration("timeout")})
					res, err := client.Activate(c.Context, license.ActivateRequest{
						Serial:     serial,
						HardwareID: hwid,
						DeviceName: name,
						AppVersion: appVersion,
					})
					if err != nil {
						return fmt.Errorf("activation failed: %w", err)
					}
					fmt.Printf("%s (hardware id %s, activated %s)\n", res.Message, hwid, res.ActivationDate.Format(time.RFC3339))
					return nil
				},
			},
			{
				Name:      "validate",
				Usage:     "Check whether a serial is currently valid",
				ArgsUsage: "SERIAL",
				Flags:     []cli.Flag{serverFlag, timeoutFlag},
				Action: func(c *cli.Context) error {
					serial := c.Args().First()
					if serial == "" {
						return cli.Exit("a serial is required", 2)
					}
					client := license.NewClient(license.ClientConfig{
						BaseURL: c.String("server"),
						Timeout: c.Duration("timeout"),
						Retry:   retry.DefaultRetryConfig(),
					})
					res, err := client.Validate(c.Context, serial)
					if err != nil {
						return fmt.Errorf("validation failed: %w", err)
					}
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					if err := enc.Encode(res); err != nil {
						return err
					}
					if !res.Valid {
						return cli.Exit("", 1)
					}
					return nil
				},
			},
			{
				Name:  "hardware-id",
				Usage: "Print the hardware ID this machine presents",
				Action: func(c *cli.Context) error {
					fmt.Println(license.HardwareFingerprint())
					return nil
				},
			},
		},
	}
}
