// Package config holds the runtime settings for the aesdsocket server:
// listen port, log file path, ring capacity, and ticker interval.
//
// Ground: internal/config/config.go's DefaultConfig()/package-level-
// default pattern, trimmed down — this process persists nothing to disk
// itself (its only durable artifact is the log file spec.md describes),
// so there is no Load/Save pair, only flag-populated defaults.
package config

import "time"

const (
	// DefaultPort is the TCP port the reference binds (PORT "9000").
	DefaultPort = 9000
	// DefaultLogPath matches DATA_FILE in the reference.
	DefaultLogPath = "/var/tmp/aesdsocketdata"
	// DefaultTickInterval matches TIMESTAMP_INTERVAL_S.
	DefaultTickInterval = 10 * time.Second
	// DefaultBacklog matches BACKLOG.
	DefaultBacklog = 10
	// DefaultRingCapacity matches AESDCHAR_MAX_WRITE_OPERATIONS_SUPPORTED.
	DefaultRingCapacity = 10
)

// Config holds everything the supervisor needs to start serving.
type Config struct {
	Port         int
	LogPath      string
	TickInterval time.Duration
	Backlog      int
	RingCapacity int
	Daemonize    bool
}

// Default returns a Config matching the reference's compiled-in
// constants.
func Default() *Config {
	return &Config{
		Port:         DefaultPort,
		LogPath:      DefaultLogPath,
		TickInterval: DefaultTickInterval,
		Backlog:      DefaultBacklog,
		RingCapacity: DefaultRingCapacity,
	}
}
