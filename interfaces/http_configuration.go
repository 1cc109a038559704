package interfaces

import (
	"net/http"
)

// HTTPConfiguration encapsulates top-level HTTP configuration that applies to
// all requests made by the client.
//
// See crcomponents.HTTPConfigurationBuilder for more details on these properties.
type HTTPConfiguration struct {
	// DefaultHeaders contains the basic headers that should be added to all HTTP
	// requests to Crunch services, based on the current configuration. This map
	// is never modified once created.
	DefaultHeaders http.Header

	// CreateHTTPClient is a function that returns a new HTTP client instance
	// based on the configuration.
	//
	// The client will ensure that this field is non-nil before using it.
	CreateHTTPClient func() *http.Client
}

// HTTPConfigurationFactory is an interface for a factory that creates an
// HTTPConfiguration.
type HTTPConfigurationFactory interface {
	// CreateHTTPConfiguration is called internally by Connect to obtain the
	// configuration.
	//
	// This happens only when the client is being constructed. The factory should
	// not retain the BasicConfiguration.
	CreateHTTPConfiguration(basicConfiguration BasicConfiguration) (HTTPConfiguration, error)
}
