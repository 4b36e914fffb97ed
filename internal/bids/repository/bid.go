package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	biderrors "fixly/internal/bids/errors"
	"fixly/pkg/config"
	mongotx "fixly/pkg/db/mongo"
	"fixly/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Bids"
)

type BidRepository interface {
	Create(ctx context.Context, bid *model.Bid) error
	FindByID(ctx context.Context, id string) (*model.Bid, error)
	FindByBooking(ctx context.Context, bookingID string) ([]*model.Bid, error)
	FindActiveByBooking(ctx context.Context, bookingID string, now time.Time) ([]*model.Bid, error)
	FindByContractor(ctx context.Context, contractorID string, limit int, offset int64) ([]*model.Bid, error)
	ActiveBidExists(ctx context.Context, bookingID, contractorID string, now time.Time) (bool, error)
	AcceptPending(ctx context.Context, id string, now time.Time) (*model.Bid, error)
	RejectSiblings(ctx context.Context, bookingID, winnerID, reason string) (int64, error)
	RejectPending(ctx context.Context, id, reason string) (*model.Bid, error)
	ExpireOne(ctx context.Context, id string, now time.Time) (*model.Bid, error)
	FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*model.Bid, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoBidRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoBidRepository(cfg *config.Config) BidRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBidRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoBidRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoBidRepository) Create(ctx context.Context, bid *model.Bid) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	bid.Seq = 1
	if _, err := r.collection.InsertOne(ctx, bid); err != nil {
		return fmt.Errorf("failed to create bid: %w", err)
	}
	return nil
}

func (r *mongoBidRepository) FindByID(ctx context.Context, id string) (*model.Bid, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	if id == "" {
		return nil, biderrors.ErrInvalidID
	}

	var bid model.Bid
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&bid)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, biderrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find bid: %w", err)
	}

	return &bid, nil
}

func (r *mongoBidRepository) FindByBooking(ctx context.Context, bookingID string) ([]*model.Bid, error) {
	return r.findWithFilter(ctx, bson.M{"booking_id": bookingID}, 0, 0)
}

func (r *mongoBidRepository) FindActiveByBooking(ctx context.Context, bookingID string, now time.Time) ([]*model.Bid, error) {
	filter := bson.M{
		"booking_id": bookingID,
		"status":     model.BidPending,
		"expires_at": bson.M{"$gt": now},
	}
	return r.findWithFilter(ctx, filter, 0, 0)
}

func (r *mongoBidRepository) FindByContractor(ctx context.Context, contractorID string, limit int, offset int64) ([]*model.Bid, error) {
	return r.findWithFilter(ctx, bson.M{"contractor_id": contractorID}, limit, offset)
}

func (r *mongoBidRepository) findWithFilter(ctx context.Context, filter bson.M, limit int, offset int64) ([]*model.Bid, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit)).SetSkip(offset)
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bids: %w", err)
	}
	defer cursor.Close(ctx)

	var bids []*model.Bid
	if err = cursor.All(ctx, &bids); err != nil {
		return nil, fmt.Errorf("failed to decode bids: %w", err)
	}

	return bids, nil
}

// ActiveBidExists reports whether the contractor already holds a live pending
// bid on the booking. Expired and resolved bids do not block resubmission.
func (r *mongoBidRepository) ActiveBidExists(ctx context.Context, bookingID, contractorID string, now time.Time) (bool, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"booking_id":    bookingID,
		"contractor_id": contractorID,
		"status":        model.BidPending,
		"expires_at":    bson.M{"$gt": now},
	}
	count, err := r.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check for active bid: %w", err)
	}
	return count > 0, nil
}

// AcceptPending flips a bid to accepted only while it is still pending and
// inside its window. On a miss the filter tells us nothing about why, so the
// caller distinguishes not-found, already resolved and expired by re-reading.
func (r *mongoBidRepository) AcceptPending(ctx context.Context, id string, now time.Time) (*model.Bid, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"_id":        id,
		"status":     model.BidPending,
		"expires_at": bson.M{"$gt": now},
	}
	update := bson.M{
		"$set": bson.M{"status": model.BidAccepted},
		"$inc": bson.M{"seq": 1},
	}

	return r.findOneAndUpdate(ctx, id, filter, update)
}

// RejectSiblings resolves every other pending bid on the booking once a
// winner is chosen. Runs inside the accept transaction.
func (r *mongoBidRepository) RejectSiblings(ctx context.Context, bookingID, winnerID, reason string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"booking_id": bookingID,
		"_id":        bson.M{"$ne": winnerID},
		"status":     model.BidPending,
	}
	update := bson.M{
		"$set": bson.M{
			"status":        model.BidRejected,
			"reject_reason": reason,
		},
		"$inc": bson.M{"seq": 1},
	}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to reject sibling bids: %w", err)
	}
	return result.ModifiedCount, nil
}

func (r *mongoBidRepository) RejectPending(ctx context.Context, id, reason string) (*model.Bid, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"_id": id, "status": model.BidPending}
	update := bson.M{
		"$set": bson.M{
			"status":        model.BidRejected,
			"reject_reason": reason,
		},
		"$inc": bson.M{"seq": 1},
	}

	return r.findOneAndUpdate(ctx, id, filter, update)
}

// ExpireOne moves a single pending bid past its window to expired and
// returns the updated document with its real seq. A bid resolved by a
// concurrent accept no longer matches the filter and yields ErrStaleWrite,
// so the caller never announces a transition that did not happen.
func (r *mongoBidRepository) ExpireOne(ctx context.Context, id string, now time.Time) (*model.Bid, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"_id":        id,
		"status":     model.BidPending,
		"expires_at": bson.M{"$lte": now},
	}
	update := bson.M{
		"$set": bson.M{"status": model.BidExpired},
		"$inc": bson.M{"seq": 1},
	}

	return r.findOneAndUpdate(ctx, id, filter, update)
}

// FindExpiredPending lists pending bids past their window. The sweeper reads
// these before flipping them so it knows which bids to announce.
func (r *mongoBidRepository) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*model.Bid, error) {
	filter := bson.M{
		"status":     model.BidPending,
		"expires_at": bson.M{"$lte": now},
	}
	return r.findWithFilter(ctx, filter, limit, 0)
}

func (r *mongoBidRepository) findOneAndUpdate(ctx context.Context, id string, filter, update bson.M) (*model.Bid, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var bid model.Bid
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&bid)
	if err == nil {
		return &bid, nil
	}

	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to update bid: %w", err)
	}

	exists, countErr := r.collection.CountDocuments(ctx, bson.M{"_id": id})
	if countErr != nil {
		return nil, fmt.Errorf("failed to check bid existence: %w", countErr)
	}
	if exists == 0 {
		return nil, biderrors.ErrNotFound
	}
	return nil, biderrors.ErrStaleWrite
}

func (r *mongoBidRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
