// Package resource throttles background work.
//
// The Controller bounds concurrent background jobs with a weighted
// semaphore and background IO throughput with a token-bucket limiter.
// Snapshot capture wraps its file writer in a RateLimitedWriter so backups
// do not starve foreground ingestion.
package resource
