package gateway

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/target/engagement-ledger/internal/domain/model"
)

const callbackLeeway = 30 * time.Second

// CallbackClaims is the signed body of a gateway callback.
type CallbackClaims struct {
	jwt.RegisteredClaims
	PaymentID   string               `json:"payment_id,omitempty"`
	GatewayRef  string               `json:"gateway_ref"`
	Outcome     model.GatewayOutcome `json:"outcome"`
	AmountCents model.Cents          `json:"amount_cents"`
	Reason      string               `json:"reason,omitempty"`
}

// Callback is a verified gateway callback.
type Callback struct {
	// TokenID is the jti claim, unique per delivery attempt of an outcome.
	TokenID string
	Request model.ReconcileRequest
}

// ErrInvalidCallback wraps every verification failure.
var ErrInvalidCallback = errors.New("invalid gateway callback")

// CallbackVerifier checks HS256 callback tokens signed with the shared secret.
type CallbackVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewCallbackVerifier constructs a verifier. issuer may be empty to accept any iss.
func NewCallbackVerifier(secret, issuer string) (*CallbackVerifier, error) {
	if secret == "" {
		return nil, errors.New("callback secret is required")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(callbackLeeway),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &CallbackVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(opts...),
	}, nil
}

// Verify parses and validates a compact callback token.
func (v *CallbackVerifier) Verify(raw string) (*Callback, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidCallback)
	}

	claims := &CallbackClaims{}
	token, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCallback, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCallback, jwt.ErrTokenSignatureInvalid)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrInvalidCallback)
	}

	return &Callback{
		TokenID: claims.ID,
		Request: model.ReconcileRequest{
			PaymentID:   claims.PaymentID,
			GatewayRef:  claims.GatewayRef,
			Outcome:     claims.Outcome,
			AmountCents: claims.AmountCents,
			Reason:      claims.Reason,
		},
	}, nil
}

// Sign produces a callback token. The gateway simulator in the admin CLI and the
// tests use it; production tokens come from the processor.
func Sign(secret string, claims CallbackClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
