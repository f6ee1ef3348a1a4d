package controllers

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/proofpulse/proofpulse-backend/api/responses"
	"github.com/proofpulse/proofpulse-backend/internal/stream"
	pkgerrors "github.com/proofpulse/proofpulse-backend/pkg/errors"
	"github.com/proofpulse/proofpulse-backend/pkg/logger"
)

// NotificationStream hands the connection to the fan-out server. Errors can
// only happen before the first frame, so the JSON error path is safe.
func NotificationStream(server *stream.Server, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		siteID := chi.URLParam(r, "siteID")
		if err := server.ServeNotifications(w, r, siteID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
		}
	}
}

// NotificationStreamRedirect accepts the query-parameter form and redirects
// to the canonical path form.
func NotificationStreamRedirect(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		siteID := r.URL.Query().Get("site_id")
		if siteID == "" {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "site_id query parameter is required"))
			return
		}
		http.Redirect(w, r, "/notifications/stream/"+url.PathEscape(siteID), http.StatusTemporaryRedirect)
	}
}
