package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"log/slog"

	"github.com/gorilla/mux"
	"github.com/hashicorp/consul/api"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"fadedreams/roadassist/domain"
	"fadedreams/roadassist/events"
	"fadedreams/roadassist/handlers"
	"fadedreams/roadassist/logging"
	"fadedreams/roadassist/service"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// logLevel reads LOG_LEVEL (debug, info, warn, error), defaulting to info.
func logLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(envOr("LOG_LEVEL", "info"))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// initTracer initializes OpenTelemetry tracer
func initTracer(logger *slog.Logger) (func(), error) {
	endpoint := envOr("OTLP_ENDPOINT", "jaeger:4318")
	logger.Info("Initializing tracer", "otlp_endpoint", endpoint)

	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithURLPath("/v1/traces"),
	)
	if err != nil {
		logger.Error("Failed to create OTLP exporter", "error", err)
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	resources := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String("roadassist"),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter, sdktrace.WithExportTimeout(5*time.Second))),
		sdktrace.WithResource(resources),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return func() {
		logger.Info("Shutting down tracer provider")
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Error("Error shutting down tracer provider", "error", err)
		}
	}, nil
}

func connectToMongoDB(uri string, retries int, delay time.Duration, logger *slog.Logger) (*mongo.Client, error) {
	var client *mongo.Client
	var err error

	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err = mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err == nil {
			err = client.Ping(ctx, nil)
			if err == nil {
				cancel()
				logger.Info("Connected to MongoDB", "uri", uri)
				return client, nil
			}
		}
		cancel()
		logger.Error("Failed to connect to MongoDB", "attempt", i+1, "max_attempts", retries, "error", err)
		if i < retries-1 {
			time.Sleep(delay)
		}
	}
	return nil, fmt.Errorf("failed to connect to MongoDB after %d retries: %w", retries, err)
}

// resolveKafka asks Consul for the Kafka service and falls back to the
// configured bootstrap servers when discovery is unavailable.
func resolveKafka(consulClient *api.Client, logger *slog.Logger) string {
	fallback := envOr("KAFKA_BOOTSTRAP_SERVERS", "kafka:9094")
	services, _, err := consulClient.Agent().Service("kafka-9094", nil)
	if err != nil || services == nil {
		logger.Warn("Kafka not found in Consul, using fallback", "fallback", fallback, "error", err)
		return fallback
	}
	bootstrap := fmt.Sprintf("%s:%d", services.Address, services.Port)
	logger.Info("Resolved Kafka service from Consul", "bootstrapServers", bootstrap)
	return bootstrap
}

func main() {
	// Initialize structured logging
	logger, logFile, err := logging.NewLogger(envOr("LOG_PATH", "roadassist.log"), logLevel())
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	defer logFile.Close()
	slog.SetDefault(logger)

	logger.Info("Starting roadassist", "app", "roadassist", "timestamp", time.Now().Unix())

	shutdown, err := initTracer(logger)
	if err != nil {
		logger.Error("Failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer shutdown()

	mongoURI := envOr("MONGO_URI", "mongodb://mongodb:27017/roadassist?replicaSet=rs0")
	client, err := connectToMongoDB(mongoURI, 5, 2*time.Second, logger)
	if err != nil {
		logger.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}

	repo := domain.NewMongoRepository(client, envOr("MONGO_DB", "roadassist"))
	if err := repo.EnsureIndexes(context.Background()); err != nil {
		logger.Error("Failed to ensure indexes", "error", err)
		os.Exit(1)
	}

	// Initialize Consul client and register the service
	consulConfig := api.DefaultConfig()
	consulConfig.Address = envOr("CONSUL_ADDRESS", "consul:8500")
	consulClient, err := api.NewClient(consulConfig)
	if err != nil {
		logger.Error("Failed to create Consul client", "error", err)
		os.Exit(1)
	}
	serviceName := envOr("SERVICE_NAME", "roadassist")
	servicePort := envOr("SERVICE_PORT", "8082")
	portNum, err := strconv.Atoi(servicePort)
	if err != nil {
		logger.Error("Invalid SERVICE_PORT", "value", servicePort, "error", err)
		os.Exit(1)
	}
	registration := &api.AgentServiceRegistration{
		ID:      serviceName + "-" + servicePort,
		Name:    serviceName,
		Port:    portNum,
		Address: serviceName,
		Check: &api.AgentServiceCheck{
			HTTP:     fmt.Sprintf("http://%s:%s/health", serviceName, servicePort),
			Interval: "10s",
			Timeout:  "5s",
		},
	}
	if err := consulClient.Agent().ServiceRegister(registration); err != nil {
		logger.Warn("Failed to register with Consul", "error", err)
	}

	// Business services
	bookingSvc := service.NewBookingService(repo, repo, repo, repo, logger)
	matcherSvc := service.NewMatcherService(repo, logger)
	mechanicSvc := service.NewMechanicService(repo, logger)
	gateway := service.NewSimulatedGateway(2*time.Second, 0.9)
	paymentSvc := service.NewPaymentService(repo, bookingSvc, gateway, logger)

	// Outbox publication to Kafka
	producer, err := events.NewProducer(
		resolveKafka(consulClient, logger),
		envOr("SCHEMA_REGISTRY_URL", "http://schema-registry:8081"),
		envOr("KAFKA_TOPIC", "booking-events"),
		envOr("SCHEMA_PATH", "booking_event.avsc"),
		logger,
	)
	if err != nil {
		logger.Error("Failed to initialize Kafka producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	processor := events.NewOutboxProcessor(repo, producer, logger)
	go func() {
		if err := processor.Start(context.Background()); err != nil {
			logger.Error("Outbox processor stopped with error", "error", err)
		}
	}()

	// Dashboard push hub over the bookings change stream
	hub := events.NewHub(repo, logger)
	go func() {
		if err := hub.Run(context.Background()); err != nil {
			logger.Error("Websocket hub stopped with error", "error", err)
		}
	}()

	// Initialize router
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("roadassist"))
	handler := handlers.NewHandler(bookingSvc, matcherSvc, mechanicSvc, paymentSvc, logger)
	handler.Register(r)
	r.HandleFunc("/ws", hub.HandleWebSocket).Methods("GET")

	logger.Info("roadassist running", "port", servicePort)
	if err := http.ListenAndServe(":"+servicePort, r); err != nil {
		logger.Error("Failed to start server", "error", err)
		os.Exit(1)
	}
}
