package admission

import (
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TenantFox/internal/pkg/env"
	"github.com/ManuelReschke/TenantFox/internal/pkg/ipallow"
)

// Config holds the webhook credentials and the optional IP allowlist.
type Config struct {
	SharedSecret string
	SigningKey   string
	Allowlist    *ipallow.Allowlist
}

// ConfigFromEnv reads BILLING_WEBHOOK_SECRET, BILLING_WEBHOOK_SIGNING_KEY and
// BILLING_WEBHOOK_IP_ALLOWLIST.
func ConfigFromEnv() Config {
	rawList := env.GetEnv("BILLING_WEBHOOK_IP_ALLOWLIST", "")
	cfg := Config{
		SharedSecret: env.GetEnv("BILLING_WEBHOOK_SECRET", ""),
		SigningKey:   env.GetEnv("BILLING_WEBHOOK_SIGNING_KEY", ""),
		Allowlist:    ipallow.ParseList(rawList),
	}

	if strings.TrimSpace(rawList) != "" && !cfg.Allowlist.Enabled() {
		log.Warnf("admission: BILLING_WEBHOOK_IP_ALLOWLIST has no valid address, allowlist disabled")
	}
	if cfg.SharedSecret == "" {
		log.Warn("admission: BILLING_WEBHOOK_SECRET is not set, webhooks will be rejected")
	}
	if cfg.SigningKey == "" {
		log.Warn("admission: BILLING_WEBHOOK_SIGNING_KEY is not set, webhooks will be rejected")
	}
	return cfg
}
