package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newMigrateCmd(app *adminApp) *cobra.Command {
	var status bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withRuntime(cmd, connectOptions{}, func(ctx context.Context, rt *runtime) error {
				if status {
					return printPending(ctx, cmd.OutOrStdout(), rt.Migrations)
				}
				if err := rt.Migrations.Migrate(ctx); err != nil {
					return err
				}
				return writef(cmd.OutOrStdout(), "migrations applied\n")
			})
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "List pending migrations without applying them")
	return cmd
}

func printPending(ctx context.Context, out io.Writer, m migrator) error {
	pending, err := m.Pending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return writef(out, "schema is up to date\n")
	}
	if err := writef(out, "%d pending migration(s):\n", len(pending)); err != nil {
		return err
	}
	for _, v := range pending {
		if err := writef(out, "  %s\n", v); err != nil {
			return fmt.Errorf("print pending migration: %w", err)
		}
	}
	return nil
}
