package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/proofpulse/proofpulse-backend/api/responses"
	"github.com/proofpulse/proofpulse-backend/api/validators"
	"github.com/proofpulse/proofpulse-backend/internal/sites"
	"github.com/proofpulse/proofpulse-backend/pkg/enums"
	pkgerrors "github.com/proofpulse/proofpulse-backend/pkg/errors"
	"github.com/proofpulse/proofpulse-backend/pkg/logger"
)

type SiteRegistrar interface {
	Create(ctx context.Context, site *sites.Site) error
}

type registerSiteRequest struct {
	ShopDomain string `json:"shop_domain" validate:"required,min=3"`
	Provider   string `json:"provider" validate:"required,oneof=shopify woocommerce generic"`
	Verified   bool   `json:"verified"`
}

type registerSiteResponse struct {
	SiteID     string `json:"site_id"`
	ShopDomain string `json:"shop_domain"`
	Provider   string `json:"provider"`
	Status     string `json:"status"`
}

// RegisterSite seeds a directory entry mapping a store to a new site id.
func RegisterSite(registrar SiteRegistrar, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if registrar == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "site registrar unavailable"))
			return
		}

		var req registerSiteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		provider, err := enums.ParseEventSource(req.Provider)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid provider"))
			return
		}

		status := enums.SiteStatusPendingVerification
		if req.Verified {
			status = enums.SiteStatusVerified
		}
		site := &sites.Site{
			ID:         "s_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
			ShopDomain: req.ShopDomain,
			Provider:   provider,
			Status:     status,
		}
		if err := registrar.Create(ctx, site); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, registerSiteResponse{
			SiteID:     site.ID,
			ShopDomain: site.ShopDomain,
			Provider:   site.Provider.String(),
			Status:     site.Status.String(),
		})
	}
}
