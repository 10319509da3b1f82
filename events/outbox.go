package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"fadedreams/roadassist/domain"
	"fadedreams/roadassist/service"
)

// Publisher abstracts the Kafka producer so the processor can run without a
// broker in tests.
type Publisher interface {
	Publish(ctx context.Context, event *BookingEvent) error
}

// OutboxProcessor drains staged lifecycle events from the outbox collection
// and publishes them. Events stay unprocessed until delivery succeeds, so a
// broker outage delays rather than drops them.
type OutboxProcessor struct {
	outbox    domain.OutboxRepository
	publisher Publisher
	logger    *slog.Logger
	interval  time.Duration
}

// NewOutboxProcessor creates a new OutboxProcessor
func NewOutboxProcessor(outbox domain.OutboxRepository, publisher Publisher, logger *slog.Logger) *OutboxProcessor {
	return &OutboxProcessor{
		outbox:    outbox,
		publisher: publisher,
		logger:    logger,
		interval:  5 * time.Second,
	}
}

// Start begins polling for unprocessed events until the context is done.
func (p *OutboxProcessor) Start(ctx context.Context) error {
	_, span := otel.Tracer("roadassist").Start(ctx, "OutboxProcessorStart")
	defer span.End()

	p.logger.Info("Outbox processor started", "app", "roadassist")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Stopping outbox processor", "app", "roadassist")
			return ctx.Err()
		case <-ticker.C:
			if err := p.ProcessOnce(ctx); err != nil {
				p.logger.Error("Failed to process outbox events", "error", err, "app", "roadassist")
			}
		}
	}
}

// ProcessOnce publishes all currently staged events.
func (p *OutboxProcessor) ProcessOnce(ctx context.Context) error {
	ctx, span := otel.Tracer("roadassist").Start(ctx, "ProcessOutboxEvents")
	defer span.End()

	staged, err := p.outbox.GetUnprocessedOutboxEvents(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to get unprocessed outbox events")
		return err
	}
	if len(staged) == 0 {
		return nil
	}
	span.SetAttributes(attribute.Int("eventCount", len(staged)))
	p.logger.Info("Found unprocessed outbox events", "count", len(staged), "app", "roadassist")

	for _, entry := range staged {
		event, err := decodeEntry(entry)
		if err != nil {
			// A malformed payload will never publish; mark it processed so it
			// cannot wedge the queue.
			p.logger.Error("Dropping malformed outbox event", "eventID", entry.ID, "error", err, "app", "roadassist")
			if err := p.outbox.MarkOutboxEventProcessed(ctx, entry.ID); err != nil {
				return err
			}
			continue
		}
		if err := p.publisher.Publish(ctx, event); err != nil {
			p.logger.Error("Failed to publish outbox event", "eventID", entry.ID, "error", err, "app", "roadassist")
			continue
		}
		if err := p.outbox.MarkOutboxEventProcessed(ctx, entry.ID); err != nil {
			p.logger.Error("Failed to mark outbox event processed", "eventID", entry.ID, "error", err, "app", "roadassist")
			return err
		}
	}
	return nil
}

func decodeEntry(entry *domain.OutboxEvent) (*BookingEvent, error) {
	var payload service.TransitionPayload
	if err := json.Unmarshal(entry.Payload, &payload); err != nil {
		return nil, err
	}
	return &BookingEvent{
		BookingID:     payload.BookingID,
		EventType:     entry.EventType,
		Event:         string(payload.Event),
		FromStatus:    string(payload.From),
		ToStatus:      string(payload.To),
		ActorID:       payload.ActorID,
		ActorRole:     string(payload.ActorRole),
		VehicleType:   string(payload.VehicleType),
		ServiceID:     payload.ServiceID,
		City:          payload.City,
		EstimatedCost: payload.EstimatedCost,
		OccurredAtMS:  payload.OccurredAt.UnixMilli(),
	}, nil
}
