package scrunch

import (
	"time"

	"github.com/Crunch-io/scrunch/interfaces"
)

// Config exposes advanced configuration options for the Crunch client.
//
// All of these settings are optional, so an empty Config struct is always
// valid. See Connect for how credentials are resolved when the credential
// fields here are left empty.
type Config struct {
	// APIKey is the Crunch API key used to authenticate requests.
	//
	// If set, it takes precedence over Username and Password. If left empty,
	// Connect falls back to the CRUNCH_API_KEY environment variable and then
	// to the crunch.ini file.
	APIKey string

	// Username and Password authenticate with a site login instead of an API
	// key. The session cookie obtained from the login endpoint is used for
	// all subsequent requests.
	Username string
	Password string

	// HTTP is a factory object that creates an HTTP configuration.
	//
	// Set this to crcomponents.HTTPConfiguration() to specify custom options
	// such as a connect timeout or proxy URL. If nil, a default configuration
	// is used.
	HTTP interfaces.HTTPConfigurationFactory

	// Logging is a factory object that creates a logging configuration.
	//
	// Set this to crcomponents.Logging() to customize logging behavior, or to
	// crcomponents.NoLogging() to disable logging. If nil, a default
	// configuration is used.
	Logging interfaces.LoggingConfigurationFactory

	// ServiceEndpoints points the client at a private Crunch instance.
	//
	// Set this with crcomponents.PrivateInstanceEndpoints. If unset, Connect
	// uses the CRUNCH_URL environment variable, the crunch.ini file, and
	// finally the public app.crunch.io endpoint, in that order.
	ServiceEndpoints interfaces.ServiceEndpoints

	// ProgressInterval is the polling interval for asynchronous server tasks.
	// If zero, a one-second default is used.
	ProgressInterval time.Duration

	// ProgressTimeout is the maximum time to wait for an asynchronous server
	// task before giving up. If zero, a five-minute default is used.
	ProgressTimeout time.Duration
}
