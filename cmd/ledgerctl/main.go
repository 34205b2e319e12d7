// Command ledgerctl runs schema migrations and checks CSV files against
// the import mapping rules without starting the server.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/JonMunkholm/ledgerimport/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Ledger import maintenance tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(logLevel, "text")
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "debug, info, warn or error")

	cmd.AddCommand(migrateCommand())
	cmd.AddCommand(proposeCommand())
	cmd.AddCommand(validateCommand())

	return cmd
}

func main() {
	// Load .env file if it exists; real environment variables win
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env file")
	}

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
