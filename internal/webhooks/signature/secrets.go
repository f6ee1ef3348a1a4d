package signature

import (
	"strings"

	"github.com/proofpulse/proofpulse-backend/pkg/config"
	"github.com/proofpulse/proofpulse-backend/pkg/enums"
)

// SecretStore resolves the shared signing secret for a provider. An empty
// string means no secret is known and verification must fail.
type SecretStore interface {
	GetSecret(provider enums.EventSource) string
}

// ConfigSecretStore serves secrets from process configuration. Outside
// production an unset provider secret falls back to the dev secret so local
// integrations work without real credentials; in production config loading
// already refused empty secrets.
type ConfigSecretStore struct {
	cfg        config.WebhookConfig
	production bool
}

// NewConfigSecretStore builds the config-backed secret store.
func NewConfigSecretStore(cfg config.WebhookConfig, app config.AppConfig) *ConfigSecretStore {
	return &ConfigSecretStore{cfg: cfg, production: app.IsProd()}
}

// GetSecret implements SecretStore.
func (s *ConfigSecretStore) GetSecret(provider enums.EventSource) string {
	var secret string
	switch provider {
	case enums.EventSourceShopify:
		secret = s.cfg.ShopifySecret
	case enums.EventSourceWooCommerce:
		secret = s.cfg.WooCommerceSecret
	case enums.EventSourceGeneric:
		secret = s.cfg.GenericSecret
	default:
		return ""
	}
	secret = strings.TrimSpace(secret)
	if secret == "" && !s.production {
		return s.cfg.DevFallbackSecret
	}
	return secret
}
