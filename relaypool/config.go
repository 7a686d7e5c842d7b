package relaypool

import (
	"time"

	"github.com/nostrforge/corenostr/relay"
)

// Config governs pool-wide defaults.
type Config struct {
	DefaultRelayConfig        relay.Config
	MaxDeduplicationCacheSize int
	DeduplicationCacheTTL     time.Duration
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		DefaultRelayConfig:        relay.DefaultConfig(),
		MaxDeduplicationCacheSize: 10000,
		DeduplicationCacheTTL:     300 * time.Second,
	}
}
