package astiavlogger

import (
	"testing"

	logger "github.com/facebookincubator/go-belt/tool/logger/types"
	"github.com/stretchr/testify/require"
)

func TestLogLevelMappingRoundtrip(t *testing.T) {
	for _, level := range []logger.Level{
		logger.LevelPanic,
		logger.LevelFatal,
		logger.LevelError,
		logger.LevelWarning,
		logger.LevelInfo,
		logger.LevelDebug,
		logger.LevelTrace,
	} {
		require.Equal(t, level, LogLevelFromAstiav(LogLevelToAstiav(level)), level.String())
	}
}
