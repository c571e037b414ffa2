package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/target/engagement-ledger/internal/domain/auth"
	"github.com/target/engagement-ledger/internal/domain/model"
)

type reconcileOptions struct {
	PaymentID string
	Ref       string
	Outcome   string
	Amount    int64
	Reason    string
	JSON      bool
}

func (o reconcileOptions) request() (*model.ReconcileRequest, error) {
	outcome := model.GatewayOutcome(strings.ToLower(strings.TrimSpace(o.Outcome)))
	if !outcome.Valid() {
		return nil, fmt.Errorf("--outcome must be one of success, failure, refund (got %q)", o.Outcome)
	}
	if o.PaymentID == "" && o.Ref == "" {
		return nil, errors.New("one of --payment or --ref is required")
	}
	return &model.ReconcileRequest{
		PaymentID:   strings.TrimSpace(o.PaymentID),
		GatewayRef:  strings.TrimSpace(o.Ref),
		Outcome:     outcome,
		AmountCents: model.Cents(o.Amount),
		Reason:      o.Reason,
	}, nil
}

func newReconcileCmd(app *adminApp) *cobra.Command {
	var opts reconcileOptions
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Apply a gateway outcome to a payment by hand",
		Long: "Apply a gateway outcome to a payment. Use this when a callback was lost; " +
			"replaying an outcome that already applied is a no-op.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := opts.request()
			if err != nil {
				return err
			}
			return app.withRuntime(cmd, connectOptions{Services: true}, func(ctx context.Context, rt *runtime) error {
				res, err := rt.Settlement.Reconcile(ctx, req)
				if err != nil {
					return err
				}
				if opts.JSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(res)
				}
				return printReconcileResult(cmd, res)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.PaymentID, "payment", "", "Payment id")
	f.StringVar(&opts.Ref, "ref", "", "Gateway reference")
	f.StringVar(&opts.Outcome, "outcome", "", "Gateway outcome: success, failure or refund")
	f.Int64Var(&opts.Amount, "amount", 0, "Amount in cents reported by the gateway")
	f.StringVar(&opts.Reason, "reason", "", "Failure or refund reason")
	f.BoolVar(&opts.JSON, "json", false, "Print the result as JSON")
	_ = cmd.MarkFlagRequired("outcome")
	return cmd
}

func printReconcileResult(cmd *cobra.Command, res *model.ReconcileResult) error {
	verb := "applied"
	if !res.Applied {
		verb = "already applied"
	}
	return writef(cmd.OutOrStdout(), "payment %s %s: status=%s amount=%s\n",
		res.Payment.ID, verb, res.Payment.Status, res.Payment.AmountCents)
}

func newRefundCandidatesCmd(app *adminApp) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "refund-candidates",
		Short: "List completed payments that need a manual refund",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withRuntime(cmd, connectOptions{Services: true}, func(ctx context.Context, rt *runtime) error {
				payments, err := rt.Refunds.ListRefundCandidates(ctx, auth.System("ledger-admin"), limit, offset)
				if err != nil {
					return err
				}
				return printRefundCandidates(cmd, payments)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	return cmd
}

func printRefundCandidates(cmd *cobra.Command, payments []model.Payment) error {
	out := cmd.OutOrStdout()
	if len(payments) == 0 {
		return writef(out, "no refund candidates\n")
	}
	tw := newTable(out)
	if err := writef(tw, "PAYMENT\tCONTRACT\tPAYEE\tAMOUNT\tGATEWAY REF\tCOMPLETED\n"); err != nil {
		return err
	}
	for _, p := range payments {
		ref := "-"
		if p.GatewayRef != nil {
			ref = *p.GatewayRef
		}
		completed := "-"
		if p.CompletedAt != nil {
			completed = p.CompletedAt.UTC().Format("2006-01-02T15:04:05Z")
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.ContractID, p.PayeeID, p.AmountCents, ref, completed); err != nil {
			return err
		}
	}
	return tw.Flush()
}
