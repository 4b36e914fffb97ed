package main

import (
	"context"

	bidhandler "fixly/internal/bids/handler"
	bidrepository "fixly/internal/bids/repository"
	bidservice "fixly/internal/bids/service"
	bidvalidator "fixly/internal/bids/validator"
	bookingrepository "fixly/internal/bookings/repository"
	bookingservice "fixly/internal/bookings/service"
	bookingvalidator "fixly/internal/bookings/validator"
	"fixly/internal/realtime"
	"fixly/pkg/app"
	"fixly/pkg/config"
	"fixly/pkg/kafka"
	kafka_config "fixly/pkg/kafka/config"
	"fixly/pkg/payment"
)

const ServiceName = "bids"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Bids service")
	bidService, closeProducers := initServices(cfg)

	stopSweeper := bidService.StartSweeper(context.Background())

	serverApp := app.NewApplication(cfg)
	serverApp.AddWorker(stopSweeper)
	serverApp.AddWorker(closeProducers)
	serverApp.SetApp(bidhandler.NewBidHandler(bidService, cfg.Log))
	serverApp.Run()
}

func initServices(cfg *config.Config) (bidservice.BidService, func()) {
	kafkaCfg := kafka_config.Load()

	bookingProducer, err := kafka.NewProducer(kafkaCfg, realtime.TopicBookingChanges, realtime.TopicBookingChanges+".dlq", cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create booking change producer", "error", err)
	}
	bidProducer, err := kafka.NewProducer(kafkaCfg, realtime.TopicBidChanges, realtime.TopicBidChanges+".dlq", cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create bid change producer", "error", err)
	}

	publisher := realtime.NewKafkaPublisher(bookingProducer, bidProducer, ServiceName, cfg.Log)
	gateway := payment.NewHTTPGateway(cfg.PaymentURL, cfg.PaymentTimeout, cfg.Log)

	bookingRepo := bookingrepository.NewMongoBookingRepository(cfg)
	bookingService := bookingservice.NewBookingService(
		bookingRepo,
		bookingvalidator.NewBookingValidator(cfg.Log),
		publisher,
		gateway,
		cfg,
	)

	bidRepo := bidrepository.NewMongoBidRepository(cfg)
	bidService := bidservice.NewBidService(
		bidRepo,
		bookingService,
		bidvalidator.NewBidValidator(cfg.Log),
		publisher,
		cfg,
	)

	closeProducers := func() {
		if err := bookingProducer.Close(); err != nil {
			cfg.Log.Error("Failed to close booking change producer", "error", err)
		}
		if err := bidProducer.Close(); err != nil {
			cfg.Log.Error("Failed to close bid change producer", "error", err)
		}
	}

	cfg.Log.Info("Bid service initialized", "database", cfg.MongoDatabaseName)
	return bidService, closeProducers
}
