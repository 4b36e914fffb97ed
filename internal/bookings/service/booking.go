package service

import (
	"context"
	"errors"
	"sync"
	"time"

	bookingserrors "fixly/internal/bookings/errors"
	"fixly/internal/bookings/repository"
	"fixly/internal/bookings/stage"
	"fixly/internal/bookings/validator"
	"fixly/internal/realtime"
	"fixly/pkg/config"
	apperrors "fixly/pkg/errors"
	"fixly/pkg/identity"
	"fixly/pkg/model"
	"fixly/pkg/payment"
	"fixly/pkg/sanitizer"

	"github.com/google/uuid"
)

// BookingService owns the booking lifecycle: creation, the ordered stage
// progression, cancellation and payment. Bid acceptance reaches it through
// OnBidAccepted, invoked inside the bid ledger's transaction.
type BookingService interface {
	Create(ctx context.Context, actor identity.Actor, booking *model.Booking) error
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	GetAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error)
	GetOpen(ctx context.Context, limit int, offset int64) ([]*model.Booking, error)
	Advance(ctx context.Context, id string, target model.BookingStatus, actor identity.Actor) (*model.Booking, error)
	Cancel(ctx context.Context, id string, actor identity.Actor) (*model.Booking, error)
	MarkPaid(ctx context.Context, id string, actor identity.Actor) (*model.Booking, error)
	Delete(ctx context.Context, id string, actor identity.Actor) error
	OnBidAccepted(ctx context.Context, bookingID, contractorID string) (*model.Booking, error)
}

type bookingService struct {
	repo      repository.BookingRepository
	validator *validator.BookingValidator
	publisher realtime.Publisher
	payments  payment.Gateway
	cfg       *config.Config
}

func NewBookingService(
	repo repository.BookingRepository,
	bookingValidator *validator.BookingValidator,
	publisher realtime.Publisher,
	payments payment.Gateway,
	cfg *config.Config,
) BookingService {
	return &bookingService{
		repo:      repo,
		validator: bookingValidator,
		publisher: publisher,
		payments:  payments,
		cfg:       cfg,
	}
}

func (s *bookingService) Create(ctx context.Context, actor identity.Actor, booking *model.Booking) error {
	if actor.Role != identity.RoleCustomer {
		return apperrors.Forbidden("Only customers can post jobs")
	}

	s.applyDefaults(actor, booking)
	s.sanitize(booking)
	if err := s.validator.Validate(booking); err != nil {
		s.cfg.Log.Warn("Booking validation failed", "error", err)
		return apperrors.Validation("Booking validation failed", map[string]any{"error": err.Error()})
	}

	if err := s.repo.Create(ctx, booking); err != nil {
		s.cfg.Log.Error("Failed to create booking", "error", err)
		return apperrors.Internal("Failed to create booking", err)
	}

	s.publishChange(ctx, model.EventInsert, booking)

	s.cfg.Log.Info("Booking created",
		"id", booking.ID,
		"customer_id", booking.CustomerID,
		"tier", booking.Tier,
		"service_category", booking.ServiceCategory,
	)
	return nil
}

func (s *bookingService) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapRepoError(err, id)
	}

	return booking, nil
}

func (s *bookingService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error) {
	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count bookings", "error", errCount)
			errCount = apperrors.Internal("Failed to count bookings", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		bookings, errFind = s.repo.FindAll(ctx, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list bookings", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve bookings", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return bookings, count, nil
}

func (s *bookingService) GetOpen(ctx context.Context, limit int, offset int64) ([]*model.Booking, error) {
	bookings, err := s.repo.FindOpen(ctx, limit, offset)
	if err != nil {
		s.cfg.Log.Error("Failed to list open bookings", "error", err)
		return nil, apperrors.Internal("Failed to retrieve open bookings", err)
	}
	return bookings, nil
}

func (s *bookingService) Advance(ctx context.Context, id string, target model.BookingStatus, actor identity.Actor) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}
	if !model.ValidBookingStatus(target) {
		return nil, apperrors.InvalidInput("Unknown target status")
	}

	if target == model.StatusCancelled {
		return s.Cancel(ctx, id, actor)
	}
	if target == model.StatusPaid {
		return s.MarkPaid(ctx, id, actor)
	}

	booking, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if booking.Status.Terminal() {
		return nil, apperrors.Terminal(string(booking.Status))
	}
	if !stage.CanAdvance(booking.Status, target) {
		return nil, apperrors.IllegalTransition(string(booking.Status), string(target))
	}
	if target == model.StatusContractorAssigned {
		// Assignment only happens through bid acceptance.
		return nil, apperrors.IllegalTransition(string(booking.Status), string(target))
	}

	if err := s.authorizeAdvance(booking, target, actor); err != nil {
		return nil, err
	}

	updated, err := s.repo.TransitionStatus(ctx, id, booking.Status, target)
	if err != nil {
		return nil, s.mapTransitionError(ctx, err, id, target)
	}

	s.publishChange(ctx, model.EventUpdate, updated)

	s.cfg.Log.Info("Booking advanced",
		"id", id,
		"from", booking.Status,
		"to", target,
		"actor_id", actor.ID,
	)
	return updated, nil
}

// authorizeAdvance enforces the role constraints: the assigned contractor
// drives the work-progress range, admins may do anything.
func (s *bookingService) authorizeAdvance(booking *model.Booking, target model.BookingStatus, actor identity.Actor) error {
	if actor.Role == identity.RoleAdmin {
		return nil
	}

	switch target {
	case model.StatusContractorArriving, model.StatusWorkInProgress, model.StatusWorkCompleted:
		if actor.Role != identity.RoleContractor || actor.ID != booking.ContractorID {
			return apperrors.Forbidden("Only the assigned contractor can advance this booking")
		}
	default:
		return apperrors.Forbidden("Not allowed to advance this booking")
	}

	return nil
}

func (s *bookingService) Cancel(ctx context.Context, id string, actor identity.Actor) (*model.Booking, error) {
	booking, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if booking.Status.Terminal() {
		return nil, apperrors.Terminal(string(booking.Status))
	}

	switch actor.Role {
	case identity.RoleAdmin:
	case identity.RoleCustomer:
		if actor.ID != booking.CustomerID {
			return nil, apperrors.Forbidden("Only the booking owner can cancel it")
		}
	case identity.RoleContractor:
		// Contractors may only back out before anyone is assigned.
		if stage.Index(booking.Status) >= stage.Index(model.StatusContractorAssigned) {
			return nil, apperrors.Forbidden("Contractors cannot cancel an assigned booking")
		}
	default:
		return nil, apperrors.Forbidden("Not allowed to cancel this booking")
	}

	updated, err := s.repo.TransitionStatus(ctx, id, booking.Status, model.StatusCancelled)
	if err != nil {
		return nil, s.mapTransitionError(ctx, err, id, model.StatusCancelled)
	}

	s.publishChange(ctx, model.EventUpdate, updated)

	s.cfg.Log.Info("Booking cancelled", "id", id, "actor_id", actor.ID, "role", actor.Role)
	return updated, nil
}

func (s *bookingService) MarkPaid(ctx context.Context, id string, actor identity.Actor) (*model.Booking, error) {
	booking, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if booking.Status.Terminal() {
		return nil, apperrors.Terminal(string(booking.Status))
	}
	if booking.Status != model.StatusWorkCompleted {
		return nil, apperrors.IllegalTransition(string(booking.Status), string(model.StatusPaid))
	}
	if actor.Role != identity.RoleAdmin && (actor.Role != identity.RoleCustomer || actor.ID != booking.CustomerID) {
		return nil, apperrors.Forbidden("Only the booking owner can confirm payment")
	}

	if err := s.payments.MarkPaid(ctx, id); err != nil {
		s.cfg.Log.Error("Payment gateway refused mark-paid", "id", id, "error", err)
		return nil, err
	}

	updated, err := s.repo.MarkPaid(ctx, id)
	if err != nil {
		// The gateway already recorded the payment; surface the lag rather
		// than pretending it rolled back. Callers re-sync from the feed.
		return nil, s.mapTransitionError(ctx, err, id, model.StatusPaid)
	}

	s.publishChange(ctx, model.EventUpdate, updated)

	s.cfg.Log.Info("Booking paid", "id", id, "actor_id", actor.ID)
	return updated, nil
}

func (s *bookingService) Delete(ctx context.Context, id string, actor identity.Actor) error {
	booking, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if actor.Role != identity.RoleAdmin && (actor.Role != identity.RoleCustomer || actor.ID != booking.CustomerID) {
		return apperrors.Forbidden("Only the booking owner can delete it")
	}
	// Once a contractor is assigned the booking is an audit record.
	if booking.Status != model.StatusAwaitingBids {
		return apperrors.Conflict("Only bookings still awaiting bids can be deleted")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return s.mapRepoError(err, id)
	}

	s.publishChange(ctx, model.EventDelete, booking)

	s.cfg.Log.Info("Booking deleted", "id", id, "actor_id", actor.ID)
	return nil
}

// OnBidAccepted advances the booking to contractor_assigned and binds the
// winning contractor. Called by the bid ledger inside its accept transaction;
// ctx is the session context, so this write commits with the bid updates.
func (s *bookingService) OnBidAccepted(ctx context.Context, bookingID, contractorID string) (*model.Booking, error) {
	now := time.Now().UTC()
	booking, err := s.repo.AssignContractor(ctx, bookingID, contractorID, now)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrStaleWrite) {
			return nil, apperrors.AlreadyResolved(bookingID)
		}
		return nil, s.mapRepoError(err, bookingID)
	}
	return booking, nil
}

// --- Helpers ---

func (s *bookingService) applyDefaults(actor identity.Actor, b *model.Booking) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	b.CustomerID = actor.ID
	b.ContractorID = ""
	b.Status = model.StatusAwaitingBids
	b.PaymentState = model.PaymentUnpaid
	if b.Tier == "" {
		b.Tier = model.TierStandard
	}
}

func (s *bookingService) sanitize(b *model.Booking) {
	b.ServiceCategory = sanitizer.NormalizeCategory(b.ServiceCategory)
	b.Description = sanitizer.NormalizeText(b.Description)
	b.ImageRefs = sanitizer.SanitizeSlice(b.ImageRefs, sanitizer.NormalizeText)
}

func (s *bookingService) mapRepoError(err error, id string) error {
	if errors.Is(err, bookingserrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Booking", id)
	}
	if errors.Is(err, bookingserrors.ErrInvalidID) {
		return apperrors.InvalidInput("Invalid booking ID format")
	}
	return apperrors.Internal("Booking storage operation failed", err)
}

// mapTransitionError turns a stale CAS write into the precise business error
// by re-reading the booking's current status.
func (s *bookingService) mapTransitionError(ctx context.Context, err error, id string, target model.BookingStatus) error {
	if !errors.Is(err, bookingserrors.ErrStaleWrite) {
		return s.mapRepoError(err, id)
	}

	current, findErr := s.repo.FindByID(ctx, id)
	if findErr != nil {
		return s.mapRepoError(findErr, id)
	}
	if current.Status.Terminal() {
		return apperrors.Terminal(string(current.Status))
	}
	return apperrors.IllegalTransition(string(current.Status), string(target))
}

func (s *bookingService) publishChange(ctx context.Context, kind model.EventKind, booking *model.Booking) {
	if err := s.publisher.PublishBookingChange(ctx, kind, booking); err != nil {
		s.cfg.Log.Warn("Booking change event not published", "id", booking.ID, "error", err)
	}
}
