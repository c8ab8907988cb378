package tailer

import "time"

// Config tunes the main loop.
type Config struct {
	// BatchSize is the number of versions fetched per iteration.
	BatchSize uint64
	// StartingVersion is where a processor without any status row begins. Processors
	// that already have rows always resume after their highest version.
	StartingVersion *uint64
	// RetryBatchSize caps the number of versions re-processed together.
	RetryBatchSize uint64
	// MaxRetryVersions caps the error versions retried per processor per iteration.
	MaxRetryVersions uint64
	// EmptyBackoff is the pause after an iteration that found nothing new upstream.
	EmptyBackoff time.Duration
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		BatchSize:        500,
		RetryBatchSize:   100,
		MaxRetryVersions: 1000,
		EmptyBackoff:     time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BatchSize == 0 {
		c.BatchSize = def.BatchSize
	}
	if c.RetryBatchSize == 0 {
		c.RetryBatchSize = def.RetryBatchSize
	}
	if c.MaxRetryVersions == 0 {
		c.MaxRetryVersions = def.MaxRetryVersions
	}
	if c.EmptyBackoff <= 0 {
		c.EmptyBackoff = def.EmptyBackoff
	}
	return c
}
