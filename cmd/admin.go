package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/licensehub/internal/api/users"
	"github.com/licensehub/internal/database"
	"github.com/licensehub/pkg/models"
)

// CreateAdminCommand bootstraps the first admin account
func CreateAdminCommand() *cli.Command {
	return &cli.Command{
		Name:  "create-admin",
		Usage: "Create an admin user",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "password", Usage: "At least 8 characters", EnvVars: []string{"LICENSEHUB_ADMIN_PASSWORD"}},
			&cli.StringFlag{Name: "name", Value: "Administrator"},
		},
		Action: runCreateAdmin,
	}
}

func runCreateAdmin(c *cli.Context) error {
	if c.String("password") == "" {
		return errors.New("--password or LICENSEHUB_ADMIN_PASSWORD is required")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	db, err := database.NewDB(c.Context, cfg.Database.URL, database.Options{MaxOpenConns: 2})
	if err != nil {
		return err
	}
	defer db.Close()

	svc := users.NewUserService(users.NewStorage(db))
	u, err := svc.Create(c.Context, models.Actor{IP: "cli"}, users.CreateUserRequest{
		Email:    c.String("email"),
		Password: c.String("password"),
		Name:     c.String("name"),
		Role:     models.RoleAdmin,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}
	fmt.Printf("Created admin %s (id %d)\n", u.Email, u.ID)
	return nil
}
