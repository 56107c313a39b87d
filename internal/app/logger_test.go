package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	testCases := []struct {
		env, level string
		debug      bool
		warnOnly   bool
	}{
		{env: "development", level: "debug", debug: true},
		{env: "production", level: "info"},
		{env: "production", level: "warn", warnOnly: true},
		{env: "development", level: "nonsense"},
	}

	for _, tc := range testCases {
		t.Run(tc.env+"/"+tc.level, func(t *testing.T) {
			logger := NewLogger(tc.env, tc.level)
			assert.Equal(t, tc.debug, logger.Core().Enabled(zap.DebugLevel))
			assert.Equal(t, !tc.warnOnly, logger.Core().Enabled(zap.InfoLevel))
			assert.True(t, logger.Core().Enabled(zap.WarnLevel))
		})
	}
}
