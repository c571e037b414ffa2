package main

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/target/engagement-ledger/internal/adapters/gateway"
)

type signOptions struct {
	reconcileOptions
	Secret  string
	Issuer  string
	TokenID string
	TTL     time.Duration
}

// newSignCallbackCmd prints a callback token the way the payment gateway would sign
// it, for exercising POST /api/gateway/callback in staging.
func newSignCallbackCmd(app *adminApp) *cobra.Command {
	var opts signOptions
	cmd := &cobra.Command{
		Use:   "sign-callback",
		Short: "Print a signed gateway callback token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := opts.request()
			if err != nil {
				return err
			}
			secret := opts.Secret
			if secret == "" {
				secret = app.cfg.Gateway.CallbackSecret
			}
			if secret == "" {
				return errors.New("--secret or GATEWAY_CALLBACK_SECRET is required")
			}
			issuer := opts.Issuer
			if issuer == "" {
				issuer = app.cfg.Gateway.CallbackIssuer
			}
			jti := opts.TokenID
			if jti == "" {
				jti = uuid.NewString()
			}

			now := time.Now()
			token, err := gateway.Sign(secret, gateway.CallbackClaims{
				RegisteredClaims: jwt.RegisteredClaims{
					ID:        jti,
					Issuer:    issuer,
					IssuedAt:  jwt.NewNumericDate(now),
					ExpiresAt: jwt.NewNumericDate(now.Add(opts.TTL)),
				},
				PaymentID:   req.PaymentID,
				GatewayRef:  req.GatewayRef,
				Outcome:     req.Outcome,
				AmountCents: req.AmountCents,
				Reason:      req.Reason,
			})
			if err != nil {
				return err
			}
			return writef(cmd.OutOrStdout(), "%s\n", token)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.PaymentID, "payment", "", "Payment id")
	f.StringVar(&opts.Ref, "ref", "", "Gateway reference")
	f.StringVar(&opts.Outcome, "outcome", "", "Gateway outcome: success, failure or refund")
	f.Int64Var(&opts.Amount, "amount", 0, "Amount in cents")
	f.StringVar(&opts.Reason, "reason", "", "Failure or refund reason")
	f.StringVar(&opts.Secret, "secret", "", "Signing secret (defaults to GATEWAY_CALLBACK_SECRET)")
	f.StringVar(&opts.Issuer, "issuer", "", "iss claim (defaults to GATEWAY_CALLBACK_ISSUER)")
	f.StringVar(&opts.TokenID, "jti", "", "Token id (random when empty)")
	f.DurationVar(&opts.TTL, "ttl", 5*time.Minute, "Token lifetime")
	_ = cmd.MarkFlagRequired("outcome")
	return cmd
}
