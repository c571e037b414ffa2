package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/target/engagement-ledger/internal/adapters/gateway"
	"github.com/target/engagement-ledger/internal/core"
	"github.com/target/engagement-ledger/internal/domain/model"
	apperrors "github.com/target/engagement-ledger/internal/errors"
)

const maxCallbackBytes = 16 * 1024

// CallbackVerifier authenticates a gateway callback token.
type CallbackVerifier interface {
	Verify(raw string) (*gateway.Callback, error)
}

// Reconciler applies an authoritative gateway outcome to the ledger.
type Reconciler interface {
	Reconcile(ctx context.Context, req *model.ReconcileRequest) (*model.ReconcileResult, error)
}

// GatewayHandlers receives payment outcomes from the gateway.
type GatewayHandlers struct {
	Verifier   CallbackVerifier
	Reconciler Reconciler
	Replay     core.ReplayGuard // Optional: drops replayed deliveries before the ledger sees them
	ReplayTTL  time.Duration
	Logger     *slog.Logger
}

// Callback handles POST /api/gateway/callback. The body is a compact JWS signed
// with the shared callback secret, either raw or as {"token": "..."}.
func (h *GatewayHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	raw, err := readCallbackToken(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_callback", err.Error())
		return
	}

	cb, err := h.Verifier.Verify(raw)
	if err != nil {
		recordError(r, err)
		WriteError(w, http.StatusUnauthorized, "invalid_callback", "callback signature or claims rejected")
		return
	}

	if h.Replay != nil && h.ReplayTTL > 0 {
		first, rerr := h.Replay.FirstSeen(r.Context(), cb.TokenID, h.ReplayTTL)
		switch {
		case rerr != nil:
			// The ledger is idempotent on its own; the guard only saves work.
			h.logger().WarnContext(r.Context(), "replay guard unavailable", "error", rerr)
		case !first:
			WriteJSON(w, http.StatusOK, map[string]any{"applied": false, "duplicate": true})
			return
		}
	}

	res, err := h.Reconciler.Reconcile(r.Context(), &cb.Request)
	if err != nil {
		if h.Replay != nil && retryable(err) {
			if ferr := h.Replay.Forget(context.WithoutCancel(r.Context()), cb.TokenID); ferr != nil {
				h.logger().WarnContext(r.Context(), "forget callback token", "token_id", cb.TokenID, "error", ferr)
			}
		}
		WriteAppError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

func (h *GatewayHandlers) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// retryable reports whether the gateway should deliver the same callback again.
func retryable(err error) bool {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeInternal, apperrors.ErrCodeTimeout, apperrors.ErrCodeCanceled, "":
		return true
	}
	return false
}

func readCallbackToken(r *http.Request) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBytes+1))
	if err != nil {
		return "", err
	}
	if len(body) > maxCallbackBytes {
		return "", errors.New("callback body too large")
	}
	text := strings.TrimSpace(string(body))
	if strings.HasPrefix(text, "{") {
		var env struct {
			Token string `json:"token"`
		}
		if err := decodeStrict(text, &env); err != nil {
			return "", err
		}
		text = env.Token
	}
	if text == "" {
		return "", errors.New("callback token is required")
	}
	return text, nil
}

// decodeStrict decodes a small JSON document, rejecting unknown fields.
func decodeStrict(text string, dst any) error {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Join(errors.New("invalid callback envelope"), err)
	}
	return nil
}
