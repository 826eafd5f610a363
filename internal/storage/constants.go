package db

import "time"

const (
	// ConnectionRetrySleep is the first delay between connection attempts;
	// it doubles up to maxConnectionRetrySleep.
	ConnectionRetrySleep    = 2 * time.Second
	maxConnectionRetrySleep = 30 * time.Second
	maxConnectionRetries    = 10
)

// Pool defaults used by DefaultPoolOptions.
const (
	defaultMaxConns          int32 = 10
	defaultMinConns          int32 = 2
	defaultMaxConnIdleTime         = 30 * time.Minute
	defaultMaxConnLifetime         = time.Hour
	defaultHealthCheckPeriod       = time.Minute
)

// DefaultSearchLimit caps similarity search results when not configured.
const DefaultSearchLimit = 200

const errFmtScanRow = "scan %s row: %w"
