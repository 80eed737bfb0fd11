package ingestion_engine

import "time"

// IngestConfig sizes the background ingestor.
type IngestConfig struct {
	Workers     int
	QueueSize   int
	Parallelism int // documents ingested concurrently within one dataset
	MaxRetries  int
	RetryDelay  time.Duration
}

func (c IngestConfig) withDefaults() IngestConfig {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 1
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}
