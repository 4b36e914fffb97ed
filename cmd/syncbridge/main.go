package main

import (
	"context"

	"fixly/internal/realtime"
	"fixly/pkg/app"
	"fixly/pkg/config"
	kafka_config "fixly/pkg/kafka/config"
)

const ServiceName = "syncbridge"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Sync Bridge service")

	bridge := realtime.NewBridge(realtime.NewSnapshotStore(), cfg.Log)
	closeSubs := subscribe(cfg, bridge)

	serverApp := app.NewApplication(cfg)
	serverApp.AddWorker(closeSubs)
	serverApp.SetApp(realtime.NewSnapshotHandler(bridge, cfg.Log))
	serverApp.Run()
}

// subscribe wires the bridge to both change-feed topics and returns a stop
// function that releases the subscriptions.
func subscribe(cfg *config.Config, bridge *realtime.Bridge) func() {
	kafkaCfg := kafka_config.Load()
	ctx := context.Background()

	topics := []string{realtime.TopicBookingChanges, realtime.TopicBidChanges}
	subs := make([]*realtime.Subscription, 0, len(topics))

	for _, topic := range topics {
		feed := realtime.NewFeed(
			kafkaCfg,
			topic,
			ServiceName,
			topic+".dlq",
			cfg.FeedRetryBase,
			cfg.FeedMaxRetries,
			cfg.Log,
		)

		sub, err := bridge.Subscribe(ctx, feed)
		if err != nil {
			cfg.Log.Fatal("Failed to subscribe to change feed", "topic", topic, "error", err)
		}
		subs = append(subs, sub)
	}

	cfg.Log.Info("Sync bridge subscribed", "topics", topics)
	return func() {
		for _, sub := range subs {
			sub.Close()
		}
	}
}
