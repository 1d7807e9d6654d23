// internal/app/system/limits/limits.go
package limits

// Size limits for request bodies and upstream responses.
// These limits help prevent memory exhaustion from oversized payloads.
const (
	// MaxJSONBodySize is the maximum size of an API request body.
	MaxJSONBodySize = 64 << 10 // 64 KB

	// MaxUpstreamResponseSize bounds what we read from the identity
	// provider's userinfo and directory endpoints.
	MaxUpstreamResponseSize = 1 << 20 // 1 MB
)
