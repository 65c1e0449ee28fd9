package quicmux

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quicmux/quicmux/internal/protocol"
)

func TestConfigDefaults(t *testing.T) {
	for _, config := range []*Config{nil, {}} {
		populated := populateConfig(config)
		require.Equal(t, protocol.DefaultConnectionIDLength, populated.ConnectionIDLength)
		require.Equal(t, protocol.DefaultMaxTokenLength, populated.MaxTokenLength)
		require.Equal(t, defaultFlushPackets, populated.FlushPackets)
		require.Equal(t, defaultFlushBytes, populated.FlushBytes)
		require.NotNil(t, populated.FlushStrategy)
		require.NotNil(t, populated.HeaderParser)
	}
}

func TestConfigPopulateDoesNotMutate(t *testing.T) {
	config := &Config{FlushPackets: 42}
	populated := populateConfig(config)
	require.Equal(t, 42, populated.FlushPackets)
	require.NotSame(t, config, populated)
	require.Zero(t, config.FlushBytes)
}

func TestConfigValidation(t *testing.T) {
	require.NoError(t, validateConfig(nil))
	require.NoError(t, validateConfig(&Config{}))
	require.Error(t, validateConfig(&Config{ConnectionIDLength: 21}))
	require.Error(t, validateConfig(&Config{ConnectionIDLength: -1}))
	require.Error(t, validateConfig(&Config{MaxTokenLength: -1}))
	require.Error(t, validateConfig(&Config{FlushPackets: -1}))
	require.Error(t, validateConfig(&Config{FlushBytes: -1}))
}

func TestConfigThresholdsFeedTheDefaultStrategy(t *testing.T) {
	populated := populateConfig(&Config{FlushPackets: 2, FlushBytes: 100})
	require.False(t, populated.FlushStrategy(1, 99))
	require.True(t, populated.FlushStrategy(2, 0))
	require.True(t, populated.FlushStrategy(0, 100))
}
