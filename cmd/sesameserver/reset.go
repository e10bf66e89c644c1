package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-sesame/internal/audit"
	"github.com/nerrad567/gray-logic-sesame/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sesame/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-sesame/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-sesame/internal/preferences"
)

var errNotConfirmed = errors.New("reset not confirmed, pass --yes")

func newResetCmd(opts *options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Erase the pairing secret so the server starts unregistered",
		Long: "Erase the stored pairing secret. Run it while the server is stopped;\n" +
			"a running server is reset through POST /api/v1/server/reset instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errNotConfirmed
			}
			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if err := resetSecret(cmd.Context(), cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "pairing secret erased")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the reset")
	return cmd
}

// resetSecret erases the stored secret and records the outcome in the
// audit trail.
func resetSecret(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // read-mostly handle, nothing to flush
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	log := logging.New(cfg.Logging, version)
	rec := audit.NewRecorder(audit.NewSQLiteRepository(db.DB), log)

	if err := preferences.NewStore(db).Erase(ctx); err != nil {
		rec.Record(ctx, audit.ActionResetFailed, audit.EntityServer, "", "", audit.SourceCLI,
			map[string]any{"error": err.Error()})
		return fmt.Errorf("erasing secret: %w", err)
	}
	rec.Record(ctx, audit.ActionReset, audit.EntityServer, "", "", audit.SourceCLI, nil)
	log.Info("pairing secret erased", "database", cfg.Database.Path)
	return nil
}
