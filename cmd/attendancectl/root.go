package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"attendguard/internal/attendance"
	"attendguard/internal/config"
	"attendguard/internal/store"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "attendancectl",
		Short: "Operator tools for the attendance worker",
		Long: `attendancectl talks to the attendance store and the shared code secret.
It prints the current presence code, lists the roster, lists attendance
records and builds the daily report.`,
		SilenceUsage: true,
	}
	root.AddCommand(newCodeCmd(), newRosterCmd(), newRecordsCmd(), newReportCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// mustGetString gets a string flag value or panics if the flag doesn't exist.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// openStore loads config and opens the migrated attendance database.
func openStore(ctx context.Context) (config.App, *store.DB, *attendance.Repository, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.App{}, nil, nil, err
	}
	db, err := store.NewDB(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return cfg, nil, nil, err
	}
	return cfg, db, attendance.NewRepository(db), nil
}
