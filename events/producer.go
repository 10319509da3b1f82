package events

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/hamba/avro/v2"
	"github.com/riferrei/srclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BookingEvent mirrors the Avro schema in booking_event.avsc.
type BookingEvent struct {
	BookingID     string `avro:"booking_id"`
	EventType     string `avro:"event_type"`
	Event         string `avro:"event"`
	FromStatus    string `avro:"from_status"`
	ToStatus      string `avro:"to_status"`
	ActorID       string `avro:"actor_id"`
	ActorRole     string `avro:"actor_role"`
	VehicleType   string `avro:"vehicle_type"`
	ServiceID     string `avro:"service_id"`
	City          string `avro:"city"`
	EstimatedCost int64  `avro:"estimated_cost"`
	OccurredAtMS  int64  `avro:"occurred_at_unix_ms"`
}

// Producer publishes booking lifecycle events to Kafka with schema-registry
// framing.
type Producer struct {
	kafkaProducer *kafka.Producer
	srClient      *srclient.SchemaRegistryClient
	schema        avro.Schema
	SchemaID      int
	topic         string
	logger        *slog.Logger
	tracer        trace.Tracer
}

// NewProducer connects to Kafka, registers the booking event schema and
// returns a ready producer.
func NewProducer(bootstrapServers, schemaRegistryURL, topic, schemaPath string, logger *slog.Logger) (*Producer, error) {
	config := &kafka.ConfigMap{
		"bootstrap.servers": bootstrapServers,
		"compression.type":  "snappy",
	}
	p, err := kafka.NewProducer(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	srClient := srclient.CreateSchemaRegistryClient(schemaRegistryURL)

	schemaBytes, err := os.ReadFile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	schemaStr := string(schemaBytes)
	schema, err := avro.Parse(schemaStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	schemaObj, err := srClient.CreateSchema(topic+"-value", schemaStr, srclient.Avro)
	if err != nil {
		return nil, fmt.Errorf("failed to register schema: %w", err)
	}
	logger.Info("Schema registered", "schemaID", schemaObj.ID(), "app", "roadassist")

	return &Producer{
		kafkaProducer: p,
		srClient:      srClient,
		schema:        schema,
		SchemaID:      schemaObj.ID(),
		topic:         topic,
		logger:        logger,
		tracer:        otel.Tracer("roadassist"),
	}, nil
}

// Publish encodes the event with the registered schema and produces it keyed
// by booking id, waiting for the delivery report.
func (p *Producer) Publish(ctx context.Context, event *BookingEvent) error {
	_, span := p.tracer.Start(ctx, "PublishBookingEvent")
	defer span.End()
	span.SetAttributes(
		attribute.String("bookingID", event.BookingID),
		attribute.String("eventType", event.EventType),
	)

	body, err := avro.Marshal(p.schema, event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to encode event")
		return fmt.Errorf("failed to encode event: %w", err)
	}

	// Confluent wire format: magic byte, schema id, Avro body.
	payload := make([]byte, 0, len(body)+5)
	payload = append(payload, 0)
	idBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(idBytes, uint32(p.SchemaID))
	payload = append(payload, idBytes...)
	payload = append(payload, body...)

	deliveryChan := make(chan kafka.Event)
	err = p.kafkaProducer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.BookingID),
		Value:          payload,
	}, deliveryChan)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to produce message")
		p.logger.Error("Failed to produce message", "bookingID", event.BookingID, "error", err, "app", "roadassist")
		return fmt.Errorf("failed to produce message: %w", err)
	}

	e := <-deliveryChan
	m := e.(*kafka.Message)
	if m.TopicPartition.Error != nil {
		span.RecordError(m.TopicPartition.Error)
		span.SetStatus(codes.Error, "Delivery failed")
		p.logger.Error("Delivery failed", "bookingID", event.BookingID, "error", m.TopicPartition.Error, "app", "roadassist")
		return fmt.Errorf("delivery failed: %w", m.TopicPartition.Error)
	}
	p.logger.Info("Published booking event", "bookingID", event.BookingID, "eventType", event.EventType, "partition", m.TopicPartition.Partition, "app", "roadassist")
	return nil
}

// Close flushes and closes the underlying producer.
func (p *Producer) Close() {
	p.kafkaProducer.Flush(5000)
	p.kafkaProducer.Close()
}
