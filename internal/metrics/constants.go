package metrics

// ============================================================================
// Metric Names
// ============================================================================

// HTTP metric names
const (
	MetricNameHTTPRequestsTotal    = "http_requests_total"
	MetricNameHTTPRequestDuration  = "http_request_duration_seconds"
	MetricNameHTTPRequestsInFlight = "http_requests_in_flight"
)

// Token lifecycle metric names
const (
	MetricNameTokenExchanges       = "token_exchanges_total"
	MetricNameTokenRefreshes       = "token_refreshes_total"
	MetricNameRevocations          = "revocations_total"
	MetricNameMaintenanceSweeps    = "maintenance_sweeps_total"
	MetricNameMaintenanceProcessed = "maintenance_integrations_processed_total"
)

// Webhook metric names
const (
	MetricNameWebhookEvents = "webhook_events_total"
)

// ============================================================================
// Metric Help Text
// ============================================================================

// HTTP metric help text
const (
	HelpTextHTTPRequestsTotal    = "Total number of HTTP requests"
	HelpTextHTTPRequestDuration  = "HTTP request latency in seconds"
	HelpTextHTTPRequestsInFlight = "Current number of HTTP requests being served"
)

// Token lifecycle metric help text
const (
	HelpTextTokenExchanges       = "Total number of authorization code exchanges by provider and outcome"
	HelpTextTokenRefreshes       = "Total number of token refreshes by provider and outcome"
	HelpTextRevocations          = "Total number of provider revocation attempts by provider and outcome"
	HelpTextMaintenanceSweeps    = "Total number of maintenance sweep runs"
	HelpTextMaintenanceProcessed = "Total number of integrations processed by the maintenance sweep, by result"
)

// Webhook metric help text
const (
	HelpTextWebhookEvents = "Total number of inbound webhook events by provider and correlation result"
)

// ============================================================================
// Label Names
// ============================================================================

const (
	LabelMethod      = "method"
	LabelPath        = "path"
	LabelStatus      = "status"
	LabelProvider    = "provider"
	LabelOutcome     = "outcome"
	LabelResult      = "result"
	LabelCorrelation = "correlation"
)

// Outcome label values
const (
	OutcomeSuccess   = "success"
	OutcomeTerminal  = "terminal"
	OutcomeTransient = "transient"
	OutcomeFailure   = "failure"
)

// Correlation label values
const (
	CorrelationMatched  = "matched"
	CorrelationOrphaned = "orphaned"
)

// HTTPLatencyBuckets are the histogram buckets for request latency
var HTTPLatencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
