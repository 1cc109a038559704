package crcomponents

import (
	"testing"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldlogtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Crunch-io/scrunch/interfaces"
)

func TestLoggingConfigurationBuilder(t *testing.T) {
	basicConfig := interfaces.BasicConfiguration{}

	t.Run("defaults", func(t *testing.T) {
		c, err := Logging().CreateLoggingConfiguration(basicConfig)
		require.NoError(t, err)
		assert.False(t, c.LogRequestBodies)
	})

	t.Run("Loggers", func(t *testing.T) {
		mockLoggers := ldlogtest.NewMockLog()
		c, err := Logging().Loggers(mockLoggers.Loggers).CreateLoggingConfiguration(basicConfig)
		require.NoError(t, err)
		assert.Equal(t, mockLoggers.Loggers, c.Loggers)
	})

	t.Run("MinLevel", func(t *testing.T) {
		mockLoggers := ldlogtest.NewMockLog()
		c, err := Logging().Loggers(mockLoggers.Loggers).MinLevel(ldlog.Error).
			CreateLoggingConfiguration(basicConfig)
		require.NoError(t, err)
		c.Loggers.Info("suppress this message")
		c.Loggers.Error("log this message")
		assert.Len(t, mockLoggers.GetOutput(ldlog.Info), 0)
		assert.Equal(t, []string{"log this message"}, mockLoggers.GetOutput(ldlog.Error))
	})

	t.Run("LogRequestBodies", func(t *testing.T) {
		c, err := Logging().LogRequestBodies(true).CreateLoggingConfiguration(basicConfig)
		require.NoError(t, err)
		assert.True(t, c.LogRequestBodies)
	})

	t.Run("NoLogging", func(t *testing.T) {
		c, err := NoLogging().CreateLoggingConfiguration(basicConfig)
		require.NoError(t, err)
		assert.Equal(t, ldlog.NewDisabledLoggers(), c.Loggers)
	})
}
