package interfaces

// BasicConfiguration is the subset of client configuration that is passed to
// factory methods when subcomponents are being constructed.
type BasicConfiguration struct {
	// APIKey is the configured Crunch API key, if any.
	APIKey string

	// ServiceEndpoints is the configured or default service base URI.
	ServiceEndpoints ServiceEndpoints
}
