package applog

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "")
	require.NoError(t, err)
	require.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}

func TestNewParsesDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "debug")
	require.NoError(t, err)
	require.Equal(t, zerolog.DebugLevel, logger.GetLevel())

	logger.Debug().Msg("frame evicted")
	require.Contains(t, buf.String(), "frame evicted")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	_, err := New(&buf, "verbose")
	require.Error(t, err)
}

func TestInfoLevelSuppressesDebugLines(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "info")
	require.NoError(t, err)

	logger.Debug().Msg("should not appear")
	require.Empty(t, buf.String())
}
