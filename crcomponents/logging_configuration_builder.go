package crcomponents

import (
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/Crunch-io/scrunch/interfaces"
)

// LoggingConfigurationBuilder contains methods for configuring the client's
// logging behavior.
//
// If you want to set non-default values for any of these properties, create a
// builder with crcomponents.Logging(), change its properties with the
// LoggingConfigurationBuilder methods, and store it in Config.Logging:
//
//	config := scrunch.Config{
//	    Logging: crcomponents.Logging().MinLevel(ldlog.Warn),
//	}
type LoggingConfigurationBuilder struct {
	config interfaces.LoggingConfiguration
}

// Logging returns a configuration builder for the client's logging configuration.
//
// The default configuration has logging enabled with default settings.
func Logging() *LoggingConfigurationBuilder {
	return &LoggingConfigurationBuilder{
		config: interfaces.LoggingConfiguration{Loggers: ldlog.NewDefaultLoggers()},
	}
}

// Loggers specifies an instance of ldlog.Loggers to use for client logging. The
// ldlog package contains methods for customizing the destination and level
// filtering of log output.
func (b *LoggingConfigurationBuilder) Loggers(loggers ldlog.Loggers) *LoggingConfigurationBuilder {
	b.config.Loggers = loggers
	return b
}

// MinLevel specifies the minimum level for log output, where ldlog.Debug is the
// lowest and ldlog.Error is the highest. Log messages at a level lower than
// this will be suppressed. The default is ldlog.Info.
//
// This is equivalent to creating an ldlog.Loggers instance, calling
// SetMinLevel() on it, and then passing it to LoggingConfigurationBuilder.Loggers().
func (b *LoggingConfigurationBuilder) MinLevel(level ldlog.LogLevel) *LoggingConfigurationBuilder {
	b.config.Loggers.SetMinLevel(level)
	return b
}

// LogRequestBodies sets whether debug-level log output may include the JSON
// bodies of outgoing requests. Bodies can contain dataset metadata, so this is
// false by default.
func (b *LoggingConfigurationBuilder) LogRequestBodies(logRequestBodies bool) *LoggingConfigurationBuilder {
	b.config.LogRequestBodies = logRequestBodies
	return b
}

// CreateLoggingConfiguration is called internally by Connect.
func (b *LoggingConfigurationBuilder) CreateLoggingConfiguration(
	basic interfaces.BasicConfiguration,
) (interfaces.LoggingConfiguration, error) {
	return b.config, nil
}

// NoLogging returns a configuration object that disables logging.
//
//	config := scrunch.Config{
//	    Logging: crcomponents.NoLogging(),
//	}
func NoLogging() interfaces.LoggingConfigurationFactory {
	return noLoggingConfigurationFactory{}
}

type noLoggingConfigurationFactory struct{}

func (f noLoggingConfigurationFactory) CreateLoggingConfiguration(
	basic interfaces.BasicConfiguration,
) (interfaces.LoggingConfiguration, error) {
	return interfaces.LoggingConfiguration{Loggers: ldlog.NewDisabledLoggers()}, nil
}
