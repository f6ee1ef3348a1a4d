package middleware

import (
	"fmt"
	"net/http"

	"github.com/proofpulse/proofpulse-backend/api/responses"
	pkgerrors "github.com/proofpulse/proofpulse-backend/pkg/errors"
	"github.com/proofpulse/proofpulse-backend/pkg/logger"
)

func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					err := fmt.Errorf("panic: %v", rec)
					ctx := r.Context()
					if logg != nil {
						ctx = logg.WithFields(ctx, map[string]any{"panic": rec, "path": r.URL.Path})
						logg.Error(ctx, "panic.recovered", err)
					}
					// On an open event stream the headers are gone; the
					// write below is best effort and the transport closes.
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "panic"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
