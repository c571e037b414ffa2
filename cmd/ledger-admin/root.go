package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/target/engagement-ledger/config"
	"github.com/target/engagement-ledger/internal/bootstrap"
)

const defaultCommandTimeout = 2 * time.Minute

// adminApp carries state shared by every subcommand. connect is swapped out in tests.
type adminApp struct {
	logger  *slog.Logger
	cfg     config.AppConfig
	timeout time.Duration
	connect func(ctx context.Context, app *adminApp, opts connectOptions) (*runtime, error)
}

type connectOptions struct {
	// Services builds the domain services on top of the database handle.
	Services bool
}

func newRootCmd(app *adminApp) *cobra.Command {
	root := &cobra.Command{
		Use:           "ledger-admin",
		Short:         "Operator tooling for the engagement ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations["skip-config"] == "true" {
				return nil
			}
			cfg, err := bootstrap.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			app.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().DurationVar(&app.timeout, "timeout", defaultCommandTimeout, "Deadline for the whole command")

	root.AddCommand(
		newMigrateCmd(app),
		newReconcileCmd(app),
		newRefundCandidatesCmd(app),
		newJobsCmd(app),
		newReapCmd(app),
		newSignCallbackCmd(app),
	)
	return root
}

// withRuntime opens the infrastructure a command needs and closes it afterwards.
func (a *adminApp) withRuntime(
	cmd *cobra.Command,
	opts connectOptions,
	fn func(ctx context.Context, rt *runtime) error,
) error {
	if a.connect == nil {
		return errors.New("no runtime connector configured")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
	defer cancel()

	rt, err := a.connect(ctx, a, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			a.logger.WarnContext(ctx, "close runtime failed", "error", cerr)
		}
	}()
	return fn(ctx, rt)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
