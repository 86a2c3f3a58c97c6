// Package loadgen drives a running benchtrack server with synthetic CI runs
// and checks that injected regressions are flagged.
package loadgen

import "time"

// Config holds configuration for a simulation.
type Config struct {
	BaseURL       string        // Base URL of the service
	Suites        int           // Number of benchmark suites
	Benches       int           // Benchmarks per suite
	Commits       int           // Commits (runs) per suite
	Workers       int           // Suites submitted concurrently
	Noise         float64       // Relative jitter of each measurement, e.g. 0.05
	RegressFactor float64       // Slowdown applied to the last commit of the first bench of every suite; <= 1 disables
	Seed          uint64        // Seed for reproducible values
	Timeout       time.Duration // HTTP request timeout
	Verbose       bool          // Enable verbose logging
}

// Stats holds simulation statistics.
type Stats struct {
	RunsGenerated   int
	RunsSubmitted   int
	RunsFailed      int
	RecordsInserted int
	Duplicates      int
	Expected        int // regressions injected
	Detected        int // regressions reported by the service
	Missed          []string
	Unexpected      []string
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}
