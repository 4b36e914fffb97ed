package realtime

import (
	"context"
	"errors"
	"time"

	apperrors "fixly/pkg/errors"
	"fixly/pkg/kafka"
	kafka_config "fixly/pkg/kafka/config"
	"fixly/pkg/logger"
)

// Feed is one change-feed topic consumed on behalf of the bridge. Transport
// loss retries with exponential backoff up to a bounded attempt count; after
// that the feed surfaces Disconnected instead of retrying forever.
type Feed struct {
	kafkaCfg   *kafka_config.Config
	topic      string
	groupID    string
	dlqTopic   string
	retryBase  time.Duration
	maxRetries int
	log        *logger.Logger
}

func NewFeed(
	kafkaCfg *kafka_config.Config,
	topic, groupID, dlqTopic string,
	retryBase time.Duration,
	maxRetries int,
	log *logger.Logger,
) *Feed {
	return &Feed{
		kafkaCfg:   kafkaCfg,
		topic:      topic,
		groupID:    groupID,
		dlqTopic:   dlqTopic,
		retryBase:  retryBase,
		maxRetries: maxRetries,
		log:        log,
	}
}

func (f *Feed) Topic() string {
	return f.topic
}

// Run consumes the topic until the context is cancelled or reconnection is
// exhausted.
func (f *Feed) Run(ctx context.Context, handler kafka.MessageHandler) error {
	attempts := 0

	for {
		err := f.consumeOnce(ctx, handler)
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ctx.Err()
		}

		var feedErr *kafka.FeedError
		if errors.As(err, &feedErr) && feedErr.Type != kafka.ErrorTypeTransient {
			return err
		}

		attempts++
		if attempts > f.maxRetries {
			f.log.Error("Change feed gave up reconnecting",
				"topic", f.topic,
				"attempts", attempts-1,
				"error", err,
			)
			return apperrors.Disconnected(attempts-1, err)
		}

		backoff := f.retryBase << (attempts - 1)
		f.log.Warn("Change feed lost, reconnecting",
			"topic", f.topic,
			"attempt", attempts,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// consumeOnce runs one consumer session. Returning nil means the session
// made progress before stopping; the caller resets its failure count.
func (f *Feed) consumeOnce(ctx context.Context, handler kafka.MessageHandler) error {
	consumer, err := kafka.NewConsumer(f.kafkaCfg, f.topic, f.groupID, f.dlqTopic, handler, f.log)
	if err != nil {
		return kafka.NewTransientError("creating change-feed consumer failed", err)
	}
	defer func() {
		if closeErr := consumer.Close(); closeErr != nil {
			f.log.Error("Failed to close change-feed consumer", "topic", f.topic, "error", closeErr)
		}
	}()

	return consumer.Start(ctx)
}
