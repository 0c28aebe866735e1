package headers

// Request Identification Headers
const (
	// HeaderXRequestID is used to uniquely identify individual HTTP requests
	// for logging, debugging, and tracking purposes across the application
	HeaderXRequestID = "x-request-id"

	// HeaderXCorrelationID carries the opaque token identifying one logical
	// request across all log and metric emissions. Generated by the
	// observability middleware when absent from the inbound request, and
	// echoed on every outbound response.
	HeaderXCorrelationID = "x-correlation-id"

	// HeaderXUserID carries the authenticated user's identifier when the
	// host's auth layer chooses to expose it to the observability core.
	HeaderXUserID = "x-user-id"
)

// Authentication Headers
const (
	// HeaderAuthorization is the standard HTTP header used to carry authentication
	// credentials such as Bearer tokens, Basic auth, or API keys
	// Format examples: "Bearer <token>", "Basic <base64-encoded-credentials>"
	HeaderAuthorization = "authorization"

	// HeaderXAPIKey authenticates callers of the monitoring API. The same key
	// may alternatively be supplied via the QueryParamAPIKey query parameter.
	HeaderXAPIKey = "x-api-key"
)

// Rate Limiting Headers, attached to responses by the rate-limit middleware
const (
	HeaderRetryAfter          = "retry-after"
	HeaderXRateLimitLimit     = "x-ratelimit-limit"
	HeaderXRateLimitRemaining = "x-ratelimit-remaining"
)

// QueryParamAPIKey is the query-string fallback for HeaderXAPIKey.
const QueryParamAPIKey = "api_key"
