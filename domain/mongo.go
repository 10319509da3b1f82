package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// errStatusMismatch marks a compare-and-swap miss inside a transaction so the
// caller can tell a lost race from an unknown id.
var errStatusMismatch = errors.New("status mismatch")

// MongoRepository implements the booking, mechanic, payment and outbox
// repositories against a single MongoDB database.
type MongoRepository struct {
	client             *mongo.Client
	BookingCollection  *mongo.Collection
	MechanicCollection *mongo.Collection
	PaymentCollection  *mongo.Collection
	OutboxCollection   *mongo.Collection
}

// NewMongoRepository creates a new MongoRepository
func NewMongoRepository(client *mongo.Client, dbName string) *MongoRepository {
	db := client.Database(dbName)
	return &MongoRepository{
		client:             client,
		BookingCollection:  db.Collection("bookings"),
		MechanicCollection: db.Collection("mechanics"),
		PaymentCollection:  db.Collection("payments"),
		OutboxCollection:   db.Collection("outbox"),
	}
}

// EnsureIndexes creates the indexes the invariants rely on. The partial
// unique index on payments backs "at most one completed payment per booking".
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.PaymentCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "bookingId", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"status": PaymentCompleted}),
	})
	if err != nil {
		return fmt.Errorf("failed to create payment index: %w", err)
	}
	_, err = r.BookingCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "customerId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "mechanicId", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create booking indexes: %w", err)
	}
	_, err = r.OutboxCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "processed", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create outbox index: %w", err)
	}
	return nil
}

// InsertBooking assigns an id and stores the booking.
func (r *MongoRepository) InsertBooking(ctx context.Context, booking *Booking) (*Booking, error) {
	_, span := otel.Tracer("roadassist").Start(ctx, "MongoInsertBooking")
	defer span.End()

	if booking.ID == "" {
		booking.ID = primitive.NewObjectID().Hex()
	}
	if _, err := r.BookingCollection.InsertOne(ctx, booking); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to insert booking")
		return nil, fmt.Errorf("failed to insert booking: %w", err)
	}
	span.SetAttributes(
		attribute.String("bookingID", booking.ID),
		attribute.String("status", string(booking.Status)),
	)
	return booking, nil
}

// GetBookingByID retrieves a booking by ID
func (r *MongoRepository) GetBookingByID(ctx context.Context, id string) (*Booking, error) {
	_, span := otel.Tracer("roadassist").Start(ctx, "MongoGetBookingByID")
	defer span.End()

	var booking Booking
	err := r.BookingCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to find booking")
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	span.SetAttributes(attribute.String("bookingID", id))
	return &booking, nil
}

func (r *MongoRepository) listBookings(ctx context.Context, filter bson.M) ([]*Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.BookingCollection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*Booking
	for cursor.Next(ctx) {
		var booking Booking
		if err := cursor.Decode(&booking); err != nil {
			return nil, fmt.Errorf("failed to decode booking: %w", err)
		}
		bookings = append(bookings, &booking)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return bookings, nil
}

// ListBookingsByCustomer retrieves a customer's bookings, newest first.
func (r *MongoRepository) ListBookingsByCustomer(ctx context.Context, customerID string) ([]*Booking, error) {
	ctx, span := otel.Tracer("roadassist").Start(ctx, "MongoListBookingsByCustomer")
	defer span.End()

	bookings, err := r.listBookings(ctx, bson.M{"customerId": customerID})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to list bookings")
		return nil, err
	}
	span.SetAttributes(attribute.Int("bookingCount", len(bookings)))
	return bookings, nil
}

// ListBookingsByMechanic retrieves a mechanic's bookings in the given
// statuses, newest first.
func (r *MongoRepository) ListBookingsByMechanic(ctx context.Context, mechanicID string, statuses []BookingStatus) ([]*Booking, error) {
	ctx, span := otel.Tracer("roadassist").Start(ctx, "MongoListBookingsByMechanic")
	defer span.End()

	filter := bson.M{"mechanicId": mechanicID}
	if len(statuses) > 0 {
		filter["status"] = bson.M{"$in": statuses}
	}
	bookings, err := r.listBookings(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to list bookings")
		return nil, err
	}
	span.SetAttributes(attribute.Int("bookingCount", len(bookings)))
	return bookings, nil
}

// ListBookingsByStatus retrieves all bookings in one status, newest first.
func (r *MongoRepository) ListBookingsByStatus(ctx context.Context, status BookingStatus) ([]*Booking, error) {
	ctx, span := otel.Tracer("roadassist").Start(ctx, "MongoListBookingsByStatus")
	defer span.End()

	bookings, err := r.listBookings(ctx, bson.M{"status": status})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to list bookings")
		return nil, err
	}
	span.SetAttributes(attribute.Int("bookingCount", len(bookings)))
	return bookings, nil
}

// ApplyTransition performs the compare-and-swap status update and stages the
// outbox event in one transaction, so the new status, its timestamp and the
// event become visible together.
func (r *MongoRepository) ApplyTransition(ctx context.Context, id string, from, to BookingStatus, set map[string]any, event *OutboxEvent) (*Booking, error) {
	ctx, span := otel.Tracer("roadassist").Start(ctx, "MongoApplyTransition")
	defer span.End()
	span.SetAttributes(
		attribute.String("bookingID", id),
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	)

	setDoc := bson.M{"status": to}
	for k, v := range set {
		setDoc[k] = v
	}

	session, err := r.client.StartSession()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to start session")
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		var updated Booking
		err := r.BookingCollection.FindOneAndUpdate(sc,
			bson.M{"_id": id, "status": from},
			bson.M{"$set": setDoc},
			opts,
		).Decode(&updated)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errStatusMismatch
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update booking: %w", err)
		}
		if event != nil {
			if _, err := r.OutboxCollection.InsertOne(sc, event); err != nil {
				return nil, fmt.Errorf("failed to insert outbox event: %w", err)
			}
		}
		return &updated, nil
	})
	if errors.Is(err, errStatusMismatch) {
		// Lost race or replayed event. Read back to tell the two apart.
		current, readErr := r.GetBookingByID(ctx, id)
		if readErr != nil {
			return nil, readErr
		}
		return nil, fmt.Errorf("%w: booking %s is %q, expected %q", ErrIllegalTransition, id, current.Status, from)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Transaction failed")
		return nil, err
	}
	return result.(*Booking), nil
}

// GetMechanicByID retrieves a mechanic by ID
func (r *MongoRepository) GetMechanicByID(ctx context.Context, id string) (*Mechanic, error) {
	_, span := otel.Tracer("roadassist").Start(ctx, "MongoGetMechanicByID")
	defer span.End()

	var mechanic Mechanic
	err := r.MechanicCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&mechanic)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("mechanic %s: %w", id, ErrNotFound)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to find mechanic")
		return nil, fmt.Errorf("failed to find mechanic: %w", err)
	}
	span.SetAttributes(
		attribute.String("mechanicID", id),
		attribute.String("mechanicName", mechanic.FullName),
	)
	return &mechanic, nil
}

// ListEligibleMechanics retrieves verified, active mechanics servicing the
// vehicle category.
func (r *MongoRepository) ListEligibleMechanics(ctx context.Context, category VehicleCategory) ([]*Mechanic, error) {
	_, span := otel.Tracer("roadassist").Start(ctx, "MongoListEligibleMechanics")
	defer span.End()

	filter := bson.M{
		"status":       MechanicVerified,
		"isActive":     true,
		"vehicleTypes": category,
	}
	cursor, err := r.MechanicCollection.Find(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to find mechanics")
		return nil, fmt.Errorf("failed to find mechanics: %w", err)
	}
	defer cursor.Close(ctx)

	var mechanics []*Mechanic
	for cursor.Next(ctx) {
		var mechanic Mechanic
		if err := cursor.Decode(&mechanic); err != nil {
			return nil, fmt.Errorf("failed to decode mechanic: %w", err)
		}
		mechanics = append(mechanics, &mechanic)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	span.SetAttributes(attribute.Int("mechanicCount", len(mechanics)))
	return mechanics, nil
}

// InsertMechanic stores a newly registered mechanic.
func (r *MongoRepository) InsertMechanic(ctx context.Context, mechanic *Mechanic) (*Mechanic, error) {
	_, span := otel.Tracer("roadassist").Start(ctx, "MongoInsertMechanic")
	defer span.End()

	if mechanic.ID == "" {
		mechanic.ID = primitive.NewObjectID().Hex()
	}
	if _, err := r.MechanicCollection.InsertOne(ctx, mechanic); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to insert mechanic")
		return nil, fmt.Errorf("failed to insert mechanic: %w", err)
	}
	span.SetAttributes(attribute.String("mechanicID", mechanic.ID))
	return mechanic, nil
}

// SetVerification records the administrative verification decision.
func (r *MongoRepository) SetVerification(ctx context.Context, id string, status MechanicStatus, verifiedBy string) error {
	_, span := otel.Tracer("roadassist").Start(ctx, "MongoSetVerification")
	defer span.End()

	update := bson.M{"$set": bson.M{
		"status":     status,
		"verifiedAt": time.Now(),
		"verifiedBy": verifiedBy,
	}}
	res, err := r.MechanicCollection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to update mechanic")
		return fmt.Errorf("failed to update mechanic: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("mechanic %s: %w", id, ErrNotFound)
	}
	span.SetAttributes(
		attribute.String("mechanicID", id),
		attribute.String("status", string(status)),
	)
	return nil
}

// RecordCompletedJob bumps the mechanic's totals after a completed booking.
func (r *MongoRepository) RecordCompletedJob(ctx context.Context, id string, earnings int64) error {
	_, span := otel.Tracer("roadassist").Start(ctx, "MongoRecordCompletedJob")
	defer span.End()

	update := bson.M{"$inc": bson.M{"totalJobs": 1, "totalEarnings": earnings}}
	res, err := r.MechanicCollection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to update mechanic totals")
		return fmt.Errorf("failed to update mechanic totals: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("mechanic %s: %w", id, ErrNotFound)
	}
	span.SetAttributes(attribute.String("mechanicID", id), attribute.Int64("earnings", earnings))
	return nil
}

// InsertPayment stores a payment record.
func (r *MongoRepository) InsertPayment(ctx context.Context, payment *Payment) (*Payment, error) {
	_, span := otel.Tracer("roadassist").Start(ctx, "MongoInsertPayment")
	defer span.End()

	if payment.ID == "" {
		payment.ID = primitive.NewObjectID().Hex()
	}
	if _, err := r.PaymentCollection.InsertOne(ctx, payment); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to insert payment")
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}
	span.SetAttributes(
		attribute.String("paymentID", payment.ID),
		attribute.String("bookingID", payment.BookingID),
	)
	return payment, nil
}

// FindCompletedByBooking returns the booking's completed payment, or nil when
// none exists.
func (r *MongoRepository) FindCompletedByBooking(ctx context.Context, bookingID string) (*Payment, error) {
	_, span := otel.Tracer("roadassist").Start(ctx, "MongoFindCompletedPayment")
	defer span.End()

	var payment Payment
	err := r.PaymentCollection.FindOne(ctx, bson.M{
		"bookingId": bookingID,
		"status":    PaymentCompleted,
	}).Decode(&payment)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to find payment")
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}
	return &payment, nil
}

// ListPaymentsByCustomer retrieves a customer's payments, newest first.
func (r *MongoRepository) ListPaymentsByCustomer(ctx context.Context, customerID string) ([]*Payment, error) {
	_, span := otel.Tracer("roadassist").Start(ctx, "MongoListPaymentsByCustomer")
	defer span.End()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.PaymentCollection.Find(ctx, bson.M{"customerId": customerID}, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to find payments")
		return nil, fmt.Errorf("failed to find payments: %w", err)
	}
	defer cursor.Close(ctx)

	var payments []*Payment
	for cursor.Next(ctx) {
		var payment Payment
		if err := cursor.Decode(&payment); err != nil {
			return nil, fmt.Errorf("failed to decode payment: %w", err)
		}
		payments = append(payments, &payment)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	span.SetAttributes(attribute.Int("paymentCount", len(payments)))
	return payments, nil
}

// InsertOutboxEvent stages a lifecycle event for publication.
func (r *MongoRepository) InsertOutboxEvent(ctx context.Context, event *OutboxEvent) error {
	_, span := otel.Tracer("roadassist").Start(ctx, "MongoInsertOutboxEvent")
	defer span.End()

	if _, err := r.OutboxCollection.InsertOne(ctx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to insert outbox event")
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

// GetUnprocessedOutboxEvents retrieves staged events oldest first.
func (r *MongoRepository) GetUnprocessedOutboxEvents(ctx context.Context) ([]*OutboxEvent, error) {
	_, span := otel.Tracer("roadassist").Start(ctx, "MongoGetUnprocessedOutboxEvents")
	defer span.End()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.OutboxCollection.Find(ctx, bson.M{"processed": false}, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to find outbox events")
		return nil, fmt.Errorf("failed to find outbox events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*OutboxEvent
	for cursor.Next(ctx) {
		var event OutboxEvent
		if err := cursor.Decode(&event); err != nil {
			return nil, fmt.Errorf("failed to decode outbox event: %w", err)
		}
		events = append(events, &event)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	span.SetAttributes(attribute.Int("eventCount", len(events)))
	return events, nil
}

// MarkOutboxEventProcessed marks a staged event as published.
func (r *MongoRepository) MarkOutboxEventProcessed(ctx context.Context, id string) error {
	_, span := otel.Tracer("roadassist").Start(ctx, "MongoMarkOutboxEventProcessed")
	defer span.End()

	now := time.Now()
	update := bson.M{"$set": bson.M{"processed": true, "processed_at": now}}
	if _, err := r.OutboxCollection.UpdateOne(ctx, bson.M{"_id": id}, update); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to mark outbox event processed")
		return fmt.Errorf("failed to mark outbox event processed: %w", err)
	}
	return nil
}

// WatchBookings opens a change stream over the bookings collection with the
// full document attached to every update.
func (r *MongoRepository) WatchBookings(ctx context.Context) (*mongo.ChangeStream, error) {
	_, span := otel.Tracer("roadassist").Start(ctx, "MongoWatchBookings")
	defer span.End()

	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := r.BookingCollection.Watch(ctx, mongo.Pipeline{}, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to open change stream")
		return nil, fmt.Errorf("failed to open change stream: %w", err)
	}
	return stream, nil
}
