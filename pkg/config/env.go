package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvBidWindow         = "BID_WINDOW"
	EnvBidWindowPriority = "BID_WINDOW_PRIORITY"
	EnvBidSweepInterval  = "BID_SWEEP_INTERVAL"

	EnvFeedRetryBase  = "FEED_RETRY_BASE"
	EnvFeedMaxRetries = "FEED_MAX_RETRIES"

	EnvPaymentURL     = "PAYMENT_URL"
	EnvPaymentTimeout = "PAYMENT_TIMEOUT"
)
