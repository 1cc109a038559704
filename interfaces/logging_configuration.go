package interfaces

import (
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// LoggingConfiguration encapsulates the client's general logging configuration.
//
// See crcomponents.LoggingConfigurationBuilder for more details on these properties.
type LoggingConfiguration struct {
	// Loggers is a configured ldlog.Loggers instance for general client logging.
	Loggers ldlog.Loggers

	// LogRequestBodies is true if the JSON bodies of outgoing requests may be
	// included in debug-level log output. Bodies can contain dataset metadata,
	// so this is off by default.
	LogRequestBodies bool
}

// LoggingConfigurationFactory is an interface for a factory that creates a
// LoggingConfiguration.
type LoggingConfigurationFactory interface {
	// CreateLoggingConfiguration is called internally by Connect to obtain the
	// configuration.
	CreateLoggingConfiguration(basicConfiguration BasicConfiguration) (LoggingConfiguration, error)
}
