package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/proofpulse/proofpulse-backend/pkg/logger"
)

const requestIDHeader = "X-Request-Id"

// Provider delivery IDs, when present, become the request ID so a log line
// can be matched against the provider's own delivery log on redelivery.
var deliveryIDHeaders = []string{
	"X-Shopify-Webhook-Id",
	"X-WC-Webhook-Delivery-ID",
	"X-Webhook-Delivery-Id",
}

func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(requestIDHeader)
			if reqID == "" {
				for _, h := range deliveryIDHeaders {
					if v := r.Header.Get(h); v != "" {
						reqID = v
						break
					}
				}
			}
			if reqID == "" {
				reqID = uuid.NewString()
			}

			w.Header().Set(requestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
