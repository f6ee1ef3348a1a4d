package controllers

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/proofpulse/proofpulse-backend/api/responses"
	"github.com/proofpulse/proofpulse-backend/internal/webhooks"
	pkgerrors "github.com/proofpulse/proofpulse-backend/pkg/errors"
	"github.com/proofpulse/proofpulse-backend/pkg/logger"
	"github.com/proofpulse/proofpulse-backend/pkg/types"
)

// Provider payloads are small; anything this large is hostile.
const maxWebhookBodyBytes = 1 << 20

type WebhookService interface {
	HandleWebhook(ctx context.Context, in webhooks.Inbound) (*webhooks.Result, error)
}

// ProviderWebhook ingests one provider order webhook. The body is read raw
// before any parsing because the signature covers the exact wire bytes.
func ProviderWebhook(svc WebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		desc, err := webhooks.DescriptorFor(chi.URLParam(r, "provider"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		result, err := svc.HandleWebhook(ctx, webhooks.Inbound{
			Provider:  desc.Source,
			RawBody:   payload,
			Signature: r.Header.Get(desc.SignatureHeader),
			StoreKey:  r.Header.Get(desc.StoreKeyHeader),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteJSON(w, http.StatusOK, types.WebhookAck{
			Success:   true,
			EventID:   result.EventID,
			Duplicate: result.Duplicate,
		})
	}
}
