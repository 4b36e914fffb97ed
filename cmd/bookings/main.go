package main

import (
	"fixly/internal/bookings/handler"
	"fixly/internal/bookings/repository"
	"fixly/internal/bookings/service"
	"fixly/internal/bookings/validator"
	"fixly/internal/realtime"
	"fixly/pkg/app"
	"fixly/pkg/config"
	"fixly/pkg/kafka"
	kafka_config "fixly/pkg/kafka/config"
	"fixly/pkg/payment"
)

const ServiceName = "bookings"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Bookings service")
	bookingService, closeProducers := initServices(cfg)

	serverApp := app.NewApplication(cfg)
	serverApp.AddWorker(closeProducers)
	serverApp.SetApp(handler.NewBookingHandler(bookingService, cfg.Log))
	serverApp.Run()
}

func initServices(cfg *config.Config) (service.BookingService, func()) {
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

	bookingValidator := validator.NewBookingValidator(cfg.Log)
	bookingRepo := repository.NewMongoBookingRepository(cfg)
	bookingService := service.NewBookingService(
		bookingRepo,
		bookingValidator,
		publisher,
		gateway,
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

	cfg.Log.Info("Booking service initialized", "database", cfg.MongoDatabaseName)
	return bookingService, closeProducers
}
