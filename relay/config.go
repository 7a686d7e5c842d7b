package relay

import "time"

// Config holds the per-connection timing and reconnect policy.
type Config struct {
	ConnectionTimeout          time.Duration
	OperationTimeout           time.Duration
	AutoReconnect              bool
	MaxReconnectAttempts       int // 0 = unlimited
	InitialReconnectDelay      time.Duration
	MaxReconnectDelay          time.Duration
	ReconnectBackoffMultiplier float64
}

// DefaultConfig returns the default timing and reconnect policy.
func DefaultConfig() Config {
	return Config{
		ConnectionTimeout:          10 * time.Second,
		OperationTimeout:           30 * time.Second,
		AutoReconnect:              true,
		MaxReconnectAttempts:       0,
		InitialReconnectDelay:      1 * time.Second,
		MaxReconnectDelay:          60 * time.Second,
		ReconnectBackoffMultiplier: 2.0,
	}
}
