package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "fixly/internal/bookings/errors"
	"fixly/pkg/config"
	mongotx "fixly/pkg/db/mongo"
	"fixly/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Bookings"
)

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	FindAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, error)
	Count(ctx context.Context) (int64, error)
	FindOpen(ctx context.Context, limit int, offset int64) ([]*model.Booking, error)
	FindByCustomer(ctx context.Context, customerID string, limit int, offset int64) ([]*model.Booking, error)
	TransitionStatus(ctx context.Context, id string, from, to model.BookingStatus) (*model.Booking, error)
	AssignContractor(ctx context.Context, id, contractorID string, at time.Time) (*model.Booking, error)
	MarkPaid(ctx context.Context, id string) (*model.Booking, error)
	Delete(ctx context.Context, id string) error
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoBookingRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps the context with a timeout unless already inside a
// transaction; a SessionContext cannot be wrapped without breaking
// transaction semantics.
func (r *mongoBookingRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	booking.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	booking.Seq = 1
	if _, err := r.collection.InsertOne(ctx, booking); err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	if id == "" {
		return nil, bookingserrors.ErrInvalidID
	}

	var booking model.Booking
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}

	return &booking, nil
}

func (r *mongoBookingRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, error) {
	return r.findWithFilter(ctx, bson.M{}, limit, offset)
}

func (r *mongoBookingRepository) FindOpen(ctx context.Context, limit int, offset int64) ([]*model.Booking, error) {
	return r.findWithFilter(ctx, bson.M{"status": model.StatusAwaitingBids}, limit, offset)
}

func (r *mongoBookingRepository) FindByCustomer(ctx context.Context, customerID string, limit int, offset int64) ([]*model.Booking, error) {
	return r.findWithFilter(ctx, bson.M{"customer_id": customerID}, limit, offset)
}

func (r *mongoBookingRepository) findWithFilter(ctx context.Context, filter bson.M, limit int, offset int64) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}

	return bookings, nil
}

func (r *mongoBookingRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

// TransitionStatus performs a compare-and-set from one status to another.
// The filter pins the current status, so a booking mutated by a concurrent
// writer matches nothing and the caller observes ErrStaleWrite instead of a
// lost update.
func (r *mongoBookingRepository) TransitionStatus(ctx context.Context, id string, from, to model.BookingStatus) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"_id": id, "status": from}
	update := bson.M{
		"$set": bson.M{"status": to},
		"$inc": bson.M{"seq": 1},
	}

	return r.findOneAndUpdate(ctx, id, filter, update)
}

// AssignContractor binds the winning contractor inside the accept
// transaction. Conditioned on the booking still awaiting bids.
func (r *mongoBookingRepository) AssignContractor(ctx context.Context, id, contractorID string, at time.Time) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"_id": id, "status": model.StatusAwaitingBids}
	update := bson.M{
		"$set": bson.M{
			"status":        model.StatusContractorAssigned,
			"contractor_id": contractorID,
			"assigned_at":   at,
		},
		"$inc": bson.M{"seq": 1},
	}

	return r.findOneAndUpdate(ctx, id, filter, update)
}

func (r *mongoBookingRepository) MarkPaid(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"_id": id, "status": model.StatusWorkCompleted}
	update := bson.M{
		"$set": bson.M{
			"status":        model.StatusPaid,
			"payment_state": model.PaymentPaid,
		},
		"$inc": bson.M{"seq": 1},
	}

	return r.findOneAndUpdate(ctx, id, filter, update)
}

func (r *mongoBookingRepository) findOneAndUpdate(ctx context.Context, id string, filter, update bson.M) (*model.Booking, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var booking model.Booking
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&booking)
	if err == nil {
		return &booking, nil
	}

	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to update booking: %w", err)
	}

	// No match: either the booking does not exist or its status moved.
	exists, countErr := r.collection.CountDocuments(ctx, bson.M{"_id": id})
	if countErr != nil {
		return nil, fmt.Errorf("failed to check booking existence: %w", countErr)
	}
	if exists == 0 {
		return nil, bookingserrors.ErrNotFound
	}
	return nil, bookingserrors.ErrStaleWrite
}

func (r *mongoBookingRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	if result.DeletedCount == 0 {
		return bookingserrors.ErrNotFound
	}
	return nil
}

func (r *mongoBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
