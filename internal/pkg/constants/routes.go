package constants

// Static route constants
const (
	BillingWebhookRoute = "/webhooks/billing"
	APIRoute            = "/api"
	APIv1Route          = "/v1"
	MetricsRoute        = "/metrics"
	// Swagger UI lives under DocsRoute + "v1"
	DocsRoute = "/docs/api/"
)
