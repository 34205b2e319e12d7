package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/JonMunkholm/ledgerimport/internal/database"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"
)

func migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	cmd.AddCommand(migrateDirectionCommand("up", "Applied", migrate.Up))
	cmd.AddCommand(migrateDirectionCommand("down", "Rolled back", migrate.Down))

	return cmd
}

func migrateDirectionCommand(use, verb string, dir migrate.MigrationDirection) *cobra.Command {
	var max int

	cmd := &cobra.Command{
		Use:   use,
		Short: verb + " migrations using DATABASE_URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := databaseURL()
			if err != nil {
				return err
			}

			n, err := database.Migrate(dsn, dir, max)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d migrations on %q\n", verb, n, database.Name(dsn))
			return nil
		},
	}
	cmd.Flags().IntVar(&max, "max", 0, "maximum number of migrations to run (0 = all)")

	return cmd
}

// databaseURL reads the connection string the server uses. Only the URL is
// needed here, so the rest of the server config is not loaded.
func databaseURL() (string, error) {
	for _, name := range []string{"DATABASE_URL", "DB_URL"} {
		if v := os.Getenv(name); v != "" {
			return v, nil
		}
	}
	return "", errors.New("DATABASE_URL is not set")
}
