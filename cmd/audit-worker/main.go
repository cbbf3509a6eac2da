package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	mongoadapter "github.com/roomstay/booking-service/internal/adapters/mongo"
	"github.com/roomstay/booking-service/internal/adapters/rabbit"
	"github.com/roomstay/booking-service/internal/config"
	"github.com/roomstay/booking-service/internal/observability"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditLogger(mongoClient.Database("rbs"), logger)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	consumer, err := rabbit.NewConsumer(conn, "audit.q", "booking.*")
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}

	worker := NewAuditWorker(consumer, audit, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := worker.Run(ctx); err != nil {
			logger.WithError(err).Error("audit worker stopped")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown audit worker")
}

type AuditWorker struct {
	consumer *rabbit.Consumer
	audit    *mongoadapter.AuditLogger
	logger   observability.Logger
}

func NewAuditWorker(consumer *rabbit.Consumer, audit *mongoadapter.AuditLogger, logger observability.Logger) *AuditWorker {
	return &AuditWorker{consumer: consumer, audit: audit, logger: logger}
}

func (w *AuditWorker) Run(ctx context.Context) error {
	deliveries, err := w.consumer.Consume(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, open := <-deliveries:
			if !open {
				return nil
			}
			if err := w.process(ctx, d); err != nil {
				w.logger.WithError(err).Error("failed to audit booking event")
				d.Nack(false, true)
				continue
			}
			d.Ack(false)
		}
	}
}

func (w *AuditWorker) process(ctx context.Context, d amqp.Delivery) error {
	var payload struct {
		BookingID uuid.UUID `json:"booking_id"`
		UserID    uuid.UUID `json:"user_id"`
		RoomID    uuid.UUID `json:"room_id"`
		Status    string    `json:"status"`
	}
	if err := json.Unmarshal(d.Body, &payload); err != nil {
		// Unparseable messages are dropped, not requeued.
		w.logger.WithError(err).Warn("discarding malformed booking event")
		return nil
	}
	return w.audit.LogBookingEvent(ctx, d.RoutingKey, payload.BookingID, map[string]interface{}{
		"user_id": payload.UserID.String(),
		"room_id": payload.RoomID.String(),
		"status":  payload.Status,
	})
}
