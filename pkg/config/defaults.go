package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "fixly"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultRateLimitRequests = 30
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Bid windows are per tier: priority bookings auto-accept the first bid,
	// so their window only bounds how long a submission stays actionable.
	DefaultBidWindow         = 30 * time.Minute
	DefaultBidWindowPriority = 15 * time.Minute
	DefaultBidSweepInterval  = 30 * time.Second

	DefaultFeedRetryBase  = 500 * time.Millisecond
	DefaultFeedMaxRetries = 6

	DefaultPaymentURL     = "http://localhost:9090"
	DefaultPaymentTimeout = 10 * time.Second

	DefaultPaginationLimit = 100
)
