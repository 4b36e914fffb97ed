package service

import (
	"context"
	"errors"
	"time"

	biderrors "fixly/internal/bids/errors"
	"fixly/internal/bids/repository"
	"fixly/internal/bids/validator"
	bookingservice "fixly/internal/bookings/service"
	"fixly/internal/matching"
	"fixly/internal/realtime"
	"fixly/pkg/config"
	apperrors "fixly/pkg/errors"
	"fixly/pkg/identity"
	"fixly/pkg/model"
	"fixly/pkg/sanitizer"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
)

const rejectReasonLost = "another bid was accepted"

// BidService is the bid ledger: submission, resolution and expiry of bids.
// Accepting a bid is the only path that assigns a contractor to a booking,
// and it resolves the whole ledger for that booking in one transaction.
type BidService interface {
	Submit(ctx context.Context, actor identity.Actor, bid *model.Bid) error
	GetByID(ctx context.Context, id string) (*model.Bid, error)
	GetByBooking(ctx context.Context, bookingID string, actor identity.Actor) ([]*model.Bid, error)
	ActiveForBooking(ctx context.Context, bookingID string) ([]*model.Bid, error)
	GetByContractor(ctx context.Context, contractorID string, limit int, offset int64) ([]*model.Bid, error)
	EligibleBookings(ctx context.Context, actor identity.Actor, contractor matching.Contractor, limit int, offset int64) ([]*model.Booking, error)
	Accept(ctx context.Context, bidID string, actor identity.Actor) (*model.Bid, error)
	Reject(ctx context.Context, bidID, reason string, actor identity.Actor) (*model.Bid, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
	StartSweeper(ctx context.Context) func()
}

type bidService struct {
	repo      repository.BidRepository
	bookings  bookingservice.BookingService
	validator *validator.BidValidator
	publisher realtime.Publisher
	cfg       *config.Config
}

func NewBidService(
	repo repository.BidRepository,
	bookings bookingservice.BookingService,
	bidValidator *validator.BidValidator,
	publisher realtime.Publisher,
	cfg *config.Config,
) BidService {
	return &bidService{
		repo:      repo,
		bookings:  bookings,
		validator: bidValidator,
		publisher: publisher,
		cfg:       cfg,
	}
}

// Submit records a contractor's quote on an open booking. Priority-tier
// bookings auto-accept the first valid bid, reusing the same accept path a
// customer would take so the single-winner guarantee holds either way.
func (s *bidService) Submit(ctx context.Context, actor identity.Actor, bid *model.Bid) error {
	if actor.Role != identity.RoleContractor {
		return apperrors.Forbidden("Only contractors can submit bids")
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	bid.ID = uuid.New().String()
	bid.ContractorID = actor.ID
	bid.Status = model.BidPending
	bid.RejectReason = ""
	bid.Note = sanitizer.NormalizeText(bid.Note)
	bid.CreatedAt = now

	if err := s.validator.Validate(bid); err != nil {
		s.cfg.Log.Warn("Bid validation failed", "booking_id", bid.BookingID, "error", err)
		return mapBidValidationError(err)
	}

	booking, err := s.bookings.GetByID(ctx, bid.BookingID)
	if err != nil {
		return err
	}
	if !booking.OpenForBidding() {
		return apperrors.BookingClosed(booking.ID, string(booking.Status))
	}

	exists, err := s.repo.ActiveBidExists(ctx, bid.BookingID, actor.ID, now)
	if err != nil {
		return apperrors.Internal("Failed to check for existing bid", err)
	}
	if exists {
		return apperrors.DuplicateBid(bid.BookingID, actor.ID)
	}

	bid.ExpiresAt = now.Add(s.cfg.BidWindowFor(booking.Tier == model.TierPriority))

	if booking.Tier == model.TierPriority {
		return s.submitAutoAccept(ctx, bid, booking)
	}

	if err := s.repo.Create(ctx, bid); err != nil {
		s.cfg.Log.Error("Failed to create bid", "booking_id", bid.BookingID, "error", err)
		return apperrors.Internal("Failed to create bid", err)
	}

	s.publishBid(ctx, model.EventInsert, bid)

	s.cfg.Log.Info("Bid submitted",
		"id", bid.ID,
		"booking_id", bid.BookingID,
		"contractor_id", bid.ContractorID,
		"amount", bid.Amount,
		"expires_at", bid.ExpiresAt,
	)
	return nil
}

// submitAutoAccept inserts the bid and resolves it as the winner in one
// transaction. If a concurrent bid already won, the insert still happens but
// the accept primitive loses, and the whole transaction reports the conflict.
func (s *bidService) submitAutoAccept(ctx context.Context, bid *model.Bid, booking *model.Booking) error {
	var accepted *model.Bid
	var assigned *model.Booking

	err := s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.repo.Create(sessCtx, bid); err != nil {
			return apperrors.Internal("Failed to create bid", err)
		}
		var err error
		accepted, assigned, err = s.resolveWinner(sessCtx, bid, time.Now().UTC())
		return err
	})
	if err != nil {
		// First valid bid wins on priority bookings. A loss here means the
		// booking closed between the open check and the transaction.
		if apperrors.IsCode(err, apperrors.CodeAlreadyResolved) {
			return apperrors.BookingClosed(booking.ID, string(model.StatusContractorAssigned))
		}
		return err
	}

	*bid = *accepted
	s.publishBid(ctx, model.EventInsert, accepted)
	s.publishBooking(ctx, assigned)

	s.cfg.Log.Info("Priority bid auto-accepted",
		"id", accepted.ID,
		"booking_id", accepted.BookingID,
		"contractor_id", accepted.ContractorID,
	)
	return nil
}

func (s *bidService) GetByID(ctx context.Context, id string) (*model.Bid, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Bid ID cannot be empty")
	}

	bid, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapRepoError(err, id)
	}
	return bid, nil
}

// GetByBooking lists the ledger for a booking. Only the booking's customer
// and admins see every bid; contractors see just their own.
func (s *bidService) GetByBooking(ctx context.Context, bookingID string, actor identity.Actor) ([]*model.Bid, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	bids, err := s.repo.FindByBooking(ctx, bookingID)
	if err != nil {
		return nil, apperrors.Internal("Failed to retrieve bids", err)
	}

	switch {
	case actor.Role == identity.RoleAdmin:
		return bids, nil
	case actor.Role == identity.RoleCustomer && actor.ID == booking.CustomerID:
		return bids, nil
	case actor.Role == identity.RoleContractor:
		own := make([]*model.Bid, 0, len(bids))
		for _, b := range bids {
			if b.ContractorID == actor.ID {
				own = append(own, b)
			}
		}
		return own, nil
	default:
		return nil, apperrors.Forbidden("Not allowed to view bids on this booking")
	}
}

func (s *bidService) ActiveForBooking(ctx context.Context, bookingID string) ([]*model.Bid, error) {
	bids, err := s.repo.FindActiveByBooking(ctx, bookingID, time.Now().UTC())
	if err != nil {
		return nil, apperrors.Internal("Failed to retrieve active bids", err)
	}
	return bids, nil
}

func (s *bidService) GetByContractor(ctx context.Context, contractorID string, limit int, offset int64) ([]*model.Bid, error) {
	bids, err := s.repo.FindByContractor(ctx, contractorID, limit, offset)
	if err != nil {
		return nil, apperrors.Internal("Failed to retrieve contractor bids", err)
	}
	return bids, nil
}

// EligibleBookings returns the open bookings the calling contractor may bid
// on: matching category and tier, excluding any booking they already bid on
// or were rejected on.
func (s *bidService) EligibleBookings(ctx context.Context, actor identity.Actor, contractor matching.Contractor, limit int, offset int64) ([]*model.Booking, error) {
	if actor.Role != identity.RoleContractor {
		return nil, apperrors.Forbidden("Only contractors have an eligible-bookings feed")
	}
	contractor.ID = actor.ID

	open, err := s.bookings.GetOpen(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	bids, err := s.repo.FindByContractor(ctx, actor.ID, 0, 0)
	if err != nil {
		return nil, apperrors.Internal("Failed to retrieve contractor bids", err)
	}

	return matching.Filter(open, contractor, matching.HistoryOf(actor.ID, bids)), nil
}

// Accept resolves the ledger: the chosen bid wins, every sibling is rejected
// and the booking binds the winning contractor, all in one transaction.
// Exactly one of N concurrent accepts can win; the rest observe a conflict.
func (s *bidService) Accept(ctx context.Context, bidID string, actor identity.Actor) (*model.Bid, error) {
	bid, err := s.GetByID(ctx, bidID)
	if err != nil {
		return nil, err
	}

	booking, err := s.bookings.GetByID(ctx, bid.BookingID)
	if err != nil {
		return nil, err
	}
	if actor.Role != identity.RoleAdmin && (actor.Role != identity.RoleCustomer || actor.ID != booking.CustomerID) {
		return nil, apperrors.Forbidden("Only the booking owner can accept a bid")
	}

	var accepted *model.Bid
	var assigned *model.Booking

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		var txErr error
		accepted, assigned, txErr = s.resolveWinner(sessCtx, bid, time.Now().UTC())
		return txErr
	})
	if err != nil {
		return nil, err
	}

	s.publishBid(ctx, model.EventUpdate, accepted)
	s.publishBooking(ctx, assigned)

	s.cfg.Log.Info("Bid accepted",
		"id", accepted.ID,
		"booking_id", accepted.BookingID,
		"contractor_id", accepted.ContractorID,
		"actor_id", actor.ID,
	)
	return accepted, nil
}

// resolveWinner is the accept primitive shared by customer accept and
// priority auto-accept. It runs inside a session and assumes the caller
// commits or aborts the transaction.
func (s *bidService) resolveWinner(sessCtx mongo.SessionContext, bid *model.Bid, now time.Time) (*model.Bid, *model.Booking, error) {
	accepted, err := s.repo.AcceptPending(sessCtx, bid.ID, now)
	if err != nil {
		return nil, nil, s.mapAcceptError(sessCtx, err, bid.ID)
	}

	if _, err := s.repo.RejectSiblings(sessCtx, bid.BookingID, bid.ID, rejectReasonLost); err != nil {
		return nil, nil, apperrors.Internal("Failed to reject sibling bids", err)
	}

	assigned, err := s.bookings.OnBidAccepted(sessCtx, bid.BookingID, accepted.ContractorID)
	if err != nil {
		return nil, nil, err
	}

	return accepted, assigned, nil
}

// mapAcceptError distinguishes why the accept CAS missed: the bid is gone,
// already resolved, or past its window.
func (s *bidService) mapAcceptError(ctx context.Context, err error, bidID string) error {
	if !errors.Is(err, biderrors.ErrStaleWrite) {
		return s.mapRepoError(err, bidID)
	}

	current, findErr := s.repo.FindByID(ctx, bidID)
	if findErr != nil {
		return s.mapRepoError(findErr, bidID)
	}
	if current.Status != model.BidPending {
		return apperrors.AlreadyResolved(current.BookingID)
	}
	return apperrors.BidExpired(bidID)
}

// Reject declines a single pending bid without resolving the ledger. The
// booking stays open and other bids remain live.
func (s *bidService) Reject(ctx context.Context, bidID, reason string, actor identity.Actor) (*model.Bid, error) {
	bid, err := s.GetByID(ctx, bidID)
	if err != nil {
		return nil, err
	}

	booking, err := s.bookings.GetByID(ctx, bid.BookingID)
	if err != nil {
		return nil, err
	}
	if actor.Role != identity.RoleAdmin && (actor.Role != identity.RoleCustomer || actor.ID != booking.CustomerID) {
		return nil, apperrors.Forbidden("Only the booking owner can reject a bid")
	}

	rejected, err := s.repo.RejectPending(ctx, bidID, sanitizer.NormalizeText(reason))
	if err != nil {
		if errors.Is(err, biderrors.ErrStaleWrite) {
			return nil, apperrors.AlreadyResolved(bid.BookingID)
		}
		return nil, s.mapRepoError(err, bidID)
	}

	s.publishBid(ctx, model.EventUpdate, rejected)

	s.cfg.Log.Info("Bid rejected", "id", bidID, "booking_id", bid.BookingID, "actor_id", actor.ID)
	return rejected, nil
}

// ExpireStale sweeps pending bids whose window has closed. Safe to run
// concurrently and repeatedly; each bid expires at most once. Each bid is
// flipped with its own guarded update and only the documents the flip
// actually returned are announced, so a bid a concurrent accept resolved
// between the read and the flip never produces a fake expired event.
func (s *bidService) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	stale, err := s.repo.FindExpiredPending(ctx, now, 0)
	if err != nil {
		return 0, apperrors.Internal("Failed to list stale bids", err)
	}

	var expired int64
	for _, bid := range stale {
		flipped, err := s.repo.ExpireOne(ctx, bid.ID, now)
		if err != nil {
			// Resolved or already swept by a concurrent writer.
			if errors.Is(err, biderrors.ErrStaleWrite) || errors.Is(err, biderrors.ErrNotFound) {
				continue
			}
			return expired, apperrors.Internal("Failed to expire stale bid", err)
		}
		expired++
		s.publishBid(ctx, model.EventUpdate, flipped)
	}

	if expired > 0 {
		s.cfg.Log.Info("Expired stale bids", "count", expired)
	}
	return expired, nil
}

// StartSweeper runs the expiry sweep on the configured interval until the
// returned stop function is called.
func (s *bidService) StartSweeper(ctx context.Context) func() {
	ticker := time.NewTicker(s.cfg.BidSweepInterval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.ExpireStale(ctx, time.Now().UTC()); err != nil {
					s.cfg.Log.Error("Bid expiry sweep failed", "error", err)
				}
			}
		}
	}()

	return func() { close(done) }
}

// mapBidValidationError surfaces out-of-range quotes and ETAs under their
// own codes; everything else stays a generic validation failure.
func mapBidValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, ve := range verrs {
			switch ve.Field {
			case "Amount":
				return apperrors.InvalidAmount(ve.Message)
			case "EtaMinutes":
				return apperrors.InvalidEta(ve.Message)
			}
		}
	}
	return apperrors.Validation("Bid validation failed", map[string]any{"error": err.Error()})
}

func (s *bidService) mapRepoError(err error, id string) error {
	if errors.Is(err, biderrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Bid", id)
	}
	if errors.Is(err, biderrors.ErrInvalidID) {
		return apperrors.InvalidInput("Invalid bid ID format")
	}
	return apperrors.Internal("Bid storage operation failed", err)
}

func (s *bidService) publishBid(ctx context.Context, kind model.EventKind, bid *model.Bid) {
	if err := s.publisher.PublishBidChange(ctx, kind, bid); err != nil {
		s.cfg.Log.Warn("Bid change event not published", "id", bid.ID, "error", err)
	}
}

func (s *bidService) publishBooking(ctx context.Context, booking *model.Booking) {
	if err := s.publisher.PublishBookingChange(ctx, model.EventUpdate, booking); err != nil {
		s.cfg.Log.Warn("Booking change event not published", "id", booking.ID, "error", err)
	}
}
