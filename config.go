package quicmux

import (
	"errors"

	"github.com/quicmux/quicmux/internal/protocol"
)

// Config contains the tunables of a Dispatcher.
// The zero value (and nil) is valid and uses the defaults.
type Config struct {
	// ConnectionIDLength is the length of the connection IDs this endpoint
	// issues. It is needed to parse the destination connection ID out of
	// short header packets. Defaults to 4.
	ConnectionIDLength int
	// MaxTokenLength is the maximum length of a token accepted in an Initial
	// packet header. Longer tokens make the packet unparseable. Defaults to 256.
	MaxTokenLength int

	// FlushPackets and FlushBytes are the thresholds of the default flush
	// strategy: pending writes are flushed as soon as either is reached.
	// Defaults: 10 packets, 10 full-size datagrams worth of bytes.
	FlushPackets int
	FlushBytes   ByteCount
	// FlushStrategy overrides the threshold strategy entirely if set.
	FlushStrategy FlushStrategy

	// HeaderParser overrides the header parser shipped with this package.
	HeaderParser HeaderParser

	// Tracer observes dispatcher events. May be nil.
	Tracer Tracer
}

// Clone clones a Config
func (c *Config) Clone() *Config {
	copy := *c
	return &copy
}

func validateConfig(config *Config) error {
	if config == nil {
		return nil
	}
	if config.ConnectionIDLength < 0 || config.ConnectionIDLength > 20 {
		return errors.New("invalid value for Config.ConnectionIDLength")
	}
	if config.MaxTokenLength < 0 {
		return errors.New("invalid value for Config.MaxTokenLength")
	}
	if config.FlushPackets < 0 || config.FlushBytes < 0 {
		return errors.New("invalid value for Config flush thresholds")
	}
	return nil
}

// populateConfig populates fields in the Config with their default values, if none are set.
// It may be called with nil.
func populateConfig(config *Config) *Config {
	if config == nil {
		config = &Config{}
	} else {
		config = config.Clone()
	}
	if config.ConnectionIDLength == 0 {
		config.ConnectionIDLength = protocol.DefaultConnectionIDLength
	}
	if config.MaxTokenLength == 0 {
		config.MaxTokenLength = protocol.DefaultMaxTokenLength
	}
	if config.FlushPackets == 0 {
		config.FlushPackets = defaultFlushPackets
	}
	if config.FlushBytes == 0 {
		config.FlushBytes = defaultFlushBytes
	}
	if config.FlushStrategy == nil {
		config.FlushStrategy = NewThresholdFlushStrategy(config.FlushPackets, config.FlushBytes)
	}
	if config.HeaderParser == nil {
		config.HeaderParser = &headerParser{
			connIDLen:      config.ConnectionIDLength,
			maxTokenLength: config.MaxTokenLength,
		}
	}
	return config
}

const (
	defaultFlushPackets = 10
	defaultFlushBytes   = 10 * protocol.MaxPacketBufferSize
)
