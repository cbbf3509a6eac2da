package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/roomstay/booking-service/internal/adapters/crdb"
	mongoadapter "github.com/roomstay/booking-service/internal/adapters/mongo"
	"github.com/roomstay/booking-service/internal/adapters/rabbit"
	redisadapter "github.com/roomstay/booking-service/internal/adapters/redis"
	"github.com/roomstay/booking-service/internal/booking"
	"github.com/roomstay/booking-service/internal/config"
	httphandler "github.com/roomstay/booking-service/internal/http"
	"github.com/roomstay/booking-service/internal/idempotency"
	"github.com/roomstay/booking-service/internal/observability"
	"github.com/roomstay/booking-service/internal/outbox"
	"github.com/roomstay/booking-service/internal/rateLimit"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestIntegration_BookConflictApprove(t *testing.T) {
	ctx := context.Background()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer crdbContainer.Terminate(ctx)

	mongoContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForExec([]string{"mongosh", "--eval", "db.runCommand('ping').ok"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer mongoContainer.Terminate(ctx)

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForExec([]string{"redis-cli", "ping"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer redisContainer.Terminate(ctx)

	rabbitContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3.13-management",
			ExposedPorts: []string{"5672/tcp", "15672/tcp"},
			WaitingFor:   wait.ForHTTP("/api/health").WithPort("15672"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer rabbitContainer.Terminate(ctx)

	crdbHost, err := crdbContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	crdbPort, err := crdbContainer.MappedPort(ctx, "26257")
	if err != nil {
		t.Fatal(err)
	}
	mongoHost, err := mongoContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	mongoPort, err := mongoContainer.MappedPort(ctx, "27017")
	if err != nil {
		t.Fatal(err)
	}
	redisHost, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	redisPort, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatal(err)
	}
	rabbitHost, err := rabbitContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	rabbitPort, err := rabbitContainer.MappedPort(ctx, "5672")
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		CRDBDSN:         "postgresql://root@" + crdbHost + ":" + crdbPort.Port() + "/rbs?sslmode=disable",
		MongoURI:        "mongodb://" + mongoHost + ":" + mongoPort.Port(),
		RedisAddr:       redisHost + ":" + redisPort.Port(),
		RabbitURL:       "amqp://guest:guest@" + rabbitHost + ":" + rabbitPort.Port() + "/",
		HTTPAddr:        ":8080",
		IdempotencyTTL:  time.Hour,
		CatalogCacheTTL: 5 * time.Minute,
		OTLPEndpoint:    "", // Skip otel for test
	}

	// Setup dependencies
	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()
	_, err = pool.Exec(ctx, `
		CREATE DATABASE IF NOT EXISTS rbs;
		CREATE TABLE IF NOT EXISTS rbs.bookings (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL,
			room_id UUID NOT NULL,
			start_date TIMESTAMPTZ NOT NULL,
			end_date TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('booked', 'approved', 'cancelled')),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS rbs.outbox (
			id UUID PRIMARY KEY,
			aggregate_type TEXT,
			aggregate_id UUID,
			event_type TEXT,
			payload_json JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			published_at TIMESTAMPTZ,
			status TEXT NOT NULL DEFAULT 'NEW',
			dedupe_key TEXT
		);
	`)
	if err != nil {
		t.Fatal(err)
	}
	repo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		t.Fatal(err)
	}
	defer mongoClient.Disconnect(ctx)
	logger := observability.NewLogger()
	catalog := mongoadapter.NewCatalogRepository(mongoClient.Database("rbs"), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	notifier := redisadapter.NewNotifier(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, cfg.IdempotencyTTL)
	rl := rateLimit.NewRateLimiter(redisCache)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		t.Fatal(err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		t.Fatal(err)
	}
	consumer, err := rabbit.NewConsumer(rabbitConn, "audit.q", "booking.*")
	if err != nil {
		t.Fatal(err)
	}
	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}

	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()
	go outbox.NewPublisher(repo, rabbitPub, logger).Run(relayCtx, 200*time.Millisecond)

	detector := booking.NewDetector(repo)
	bookings := booking.NewService(repo, detector, catalog, redisCache, cfg.CatalogCacheTTL, notifier, logger)

	handlers := httphandler.NewHandlers(bookings, notifier, idemp)
	r := httphandler.SetupRouter(handlers, logger, rl, idemp)

	// Start server
	srv := &http.Server{Addr: ":8080", Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Error(err)
		}
	}()
	defer srv.Shutdown(ctx)
	time.Sleep(200 * time.Millisecond)

	// Test scenario
	roomID := uuid.New()
	userID := uuid.New()

	err = catalog.CreateRoom(ctx, booking.Room{
		ID:       roomID,
		Title:    "Seaview Studio",
		Rent:     120,
		Location: "Valencia",
	})
	if err != nil {
		t.Fatal(err)
	}
	err = catalog.CreateUser(ctx, booking.User{
		ID:    userID,
		Name:  "Nadia",
		Email: "nadia@example.com",
	})
	if err != nil {
		t.Fatal(err)
	}

	// Listen for realtime events before touching the booking.
	sub := notifier.Subscribe(ctx, userID)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatal(err)
	}
	events := sub.Channel()

	start := time.Now().Add(24 * time.Hour).Truncate(time.Second).UTC()
	end := start.Add(72 * time.Hour)

	// Test create
	createReq := map[string]interface{}{
		"userId":    userID.String(),
		"roomId":    roomID.String(),
		"startDate": start.Format(time.RFC3339),
		"endDate":   end.Format(time.RFC3339),
	}
	createBody, _ := json.Marshal(createReq)
	req, _ := http.NewRequest("POST", "http://localhost:8080/v1/bookings", bytes.NewReader(createBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.New().String())
	req.Header.Set("Authorization", "Bearer mock")
	resp, err := http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("create failed: %v, status: %d", err, resp.StatusCode)
	}

	var createResp struct {
		Data struct {
			Booking struct {
				ID uuid.UUID `json:"id"`
			} `json:"booking"`
		} `json:"data"`
	}
	json.NewDecoder(resp.Body).Decode(&createResp)
	bookingID := createResp.Data.Booking.ID
	if bookingID == uuid.Nil {
		t.Fatal("create returned no booking id")
	}

	// Test conflict
	conflictReq := map[string]interface{}{
		"userId":    userID.String(),
		"roomId":    roomID.String(),
		"startDate": start.Add(24 * time.Hour).Format(time.RFC3339),
		"endDate":   end.Add(24 * time.Hour).Format(time.RFC3339),
	}
	conflictBody, _ := json.Marshal(conflictReq)
	req, _ = http.NewRequest("POST", "http://localhost:8080/v1/bookings", bytes.NewReader(conflictBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.New().String())
	req.Header.Set("Authorization", "Bearer mock")
	resp, err = http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected conflict rejection, err: %v, status: %d", err, resp.StatusCode)
	}

	// Test approve
	req, _ = http.NewRequest("PATCH", "http://localhost:8080/v1/bookings/"+bookingID.String()+"/approve", nil)
	req.Header.Set("Authorization", "Bearer mock")
	resp, err = http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("approve failed: %v, status: %d", err, resp.StatusCode)
	}

	select {
	case msg := <-events:
		var event struct {
			Event     string    `json:"event"`
			BookingID uuid.UUID `json:"bookingId"`
		}
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			t.Fatal(err)
		}
		if event.Event != "approved" || event.BookingID != bookingID {
			t.Errorf("unexpected event: %+v", event)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no approval notification received")
	}

	// The relay must push both outbox rows to the exchange and the queue
	// bound to booking.* must see them.
	want := map[string]bool{"booking.created": false, "booking.approved": false}
	deadline := time.After(15 * time.Second)
	for received := 0; received < len(want); {
		select {
		case d := <-deliveries:
			seen, known := want[d.RoutingKey]
			if !known {
				t.Fatalf("unexpected routing key %q", d.RoutingKey)
			}
			if !seen {
				want[d.RoutingKey] = true
				received++
			}
			var event struct {
				BookingID uuid.UUID `json:"booking_id"`
			}
			if err := json.Unmarshal(d.Body, &event); err != nil {
				t.Fatal(err)
			}
			if event.BookingID != bookingID {
				t.Errorf("event %s carries booking %s, want %s", d.RoutingKey, event.BookingID, bookingID)
			}
			d.Ack(false)
		case <-deadline:
			t.Fatalf("timed out waiting for outbox events, got %v", want)
		}
	}

	// Published rows must be marked so they are never relayed twice.
	var publishedRows int
	for i := 0; i < 50; i++ {
		if err := pool.QueryRow(ctx, `SELECT count(*) FROM outbox WHERE status = 'PUBLISHED'`).Scan(&publishedRows); err != nil {
			t.Fatal(err)
		}
		if publishedRows == 2 {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}
	if publishedRows != 2 {
		t.Fatalf("expected 2 published outbox rows, got %d", publishedRows)
	}
	var newRows int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM outbox WHERE status = 'NEW'`).Scan(&newRows); err != nil {
		t.Fatal(err)
	}
	if newRows != 0 {
		t.Fatalf("expected no unpublished outbox rows, got %d", newRows)
	}

	// Verify listing
	req, _ = http.NewRequest("GET", "http://localhost:8080/v1/bookings/user/"+userID.String(), nil)
	req.Header.Set("Authorization", "Bearer mock")
	resp, err = http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("list failed: %v, status: %d", err, resp.StatusCode)
	}
	var listResp struct {
		Count    int `json:"count"`
		Bookings []struct {
			Booking struct {
				Status string `json:"status"`
			} `json:"booking"`
			Room *struct {
				Title string `json:"title"`
			} `json:"room"`
		} `json:"bookings"`
	}
	json.NewDecoder(resp.Body).Decode(&listResp)
	if listResp.Count != 1 {
		t.Fatalf("expected 1 booking, got %d", listResp.Count)
	}
	if listResp.Bookings[0].Booking.Status != "approved" {
		t.Errorf("expected approved booking, got %s", listResp.Bookings[0].Booking.Status)
	}
	if listResp.Bookings[0].Room == nil || listResp.Bookings[0].Room.Title != "Seaview Studio" {
		t.Error("expected room projection on listing")
	}
}
