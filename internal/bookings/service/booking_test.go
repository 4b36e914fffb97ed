package service

import (
	"context"
	"testing"
	"time"

	bookingserrors "fixly/internal/bookings/errors"
	"fixly/internal/bookings/stage"
	"fixly/internal/bookings/validator"
	"fixly/internal/realtime"
	"fixly/pkg/config"
	mongotx "fixly/pkg/db/mongo"
	apperrors "fixly/pkg/errors"
	"fixly/pkg/identity"
	"fixly/pkg/logger"
	"fixly/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

// Mock repository for testing
type mockBookingRepository struct {
	createFunc           func(ctx context.Context, booking *model.Booking) error
	findByIDFunc         func(ctx context.Context, id string) (*model.Booking, error)
	transitionStatusFunc func(ctx context.Context, id string, from, to model.BookingStatus) (*model.Booking, error)
	assignContractorFunc func(ctx context.Context, id, contractorID string, at time.Time) (*model.Booking, error)
	markPaidFunc         func(ctx context.Context, id string) (*model.Booking, error)
	deleteFunc           func(ctx context.Context, id string) error
}

func (m *mockBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, booking)
	}
	return nil
}

func (m *mockBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, bookingserrors.ErrNotFound
}

func (m *mockBookingRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, error) {
	return []*model.Booking{}, nil
}

func (m *mockBookingRepository) Count(ctx context.Context) (int64, error) {
	return 0, nil
}

func (m *mockBookingRepository) FindOpen(ctx context.Context, limit int, offset int64) ([]*model.Booking, error) {
	return []*model.Booking{}, nil
}

func (m *mockBookingRepository) FindByCustomer(ctx context.Context, customerID string, limit int, offset int64) ([]*model.Booking, error) {
	return []*model.Booking{}, nil
}

func (m *mockBookingRepository) TransitionStatus(ctx context.Context, id string, from, to model.BookingStatus) (*model.Booking, error) {
	if m.transitionStatusFunc != nil {
		return m.transitionStatusFunc(ctx, id, from, to)
	}
	return nil, bookingserrors.ErrNotFound
}

func (m *mockBookingRepository) AssignContractor(ctx context.Context, id, contractorID string, at time.Time) (*model.Booking, error) {
	if m.assignContractorFunc != nil {
		return m.assignContractorFunc(ctx, id, contractorID, at)
	}
	return nil, bookingserrors.ErrNotFound
}

func (m *mockBookingRepository) MarkPaid(ctx context.Context, id string) (*model.Booking, error) {
	if m.markPaidFunc != nil {
		return m.markPaidFunc(ctx, id)
	}
	return nil, bookingserrors.ErrNotFound
}

func (m *mockBookingRepository) Delete(ctx context.Context, id string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}
	return nil
}

func (m *mockBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(fakeSessionContext{Context: ctx})
}

type fakeSessionContext struct {
	context.Context
	mongo.Session
}

// Mock payment gateway
type mockGateway struct {
	markPaidFunc func(ctx context.Context, bookingID string) error
}

func (m *mockGateway) MarkPaid(ctx context.Context, bookingID string) error {
	if m.markPaidFunc != nil {
		return m.markPaidFunc(ctx, bookingID)
	}
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Log: logger.New(logger.Config{
			Level:   "error",
			Format:  "json",
			Service: "test",
		}),
	}
}

func newTestService(repo *mockBookingRepository, gateway *mockGateway) BookingService {
	return newTestServiceWithPublisher(repo, gateway, realtime.NoopPublisher{})
}

func newTestServiceWithPublisher(repo *mockBookingRepository, gateway *mockGateway, pub realtime.Publisher) BookingService {
	cfg := testConfig()
	return NewBookingService(repo, validator.NewBookingValidator(cfg.Log), pub, gateway, cfg)
}

type recordingPublisher struct {
	kinds    []model.EventKind
	bookings []*model.Booking
}

func (p *recordingPublisher) PublishBookingChange(_ context.Context, kind model.EventKind, booking *model.Booking) error {
	p.kinds = append(p.kinds, kind)
	p.bookings = append(p.bookings, booking)
	return nil
}

func (p *recordingPublisher) PublishBidChange(context.Context, model.EventKind, *model.Bid) error {
	return nil
}

var customerActor = identity.Actor{ID: "customer-1", Role: identity.RoleCustomer}
var contractorActor = identity.Actor{ID: "contractor-1", Role: identity.RoleContractor}

func bookingAt(status model.BookingStatus) *model.Booking {
	return &model.Booking{
		ID:           "booking-1",
		CustomerID:   "customer-1",
		ContractorID: "contractor-1",
		Tier:         model.TierStandard,
		Status:       status,
		PaymentState: model.PaymentUnpaid,
		Seq:          3,
	}
}

func TestAdvance_AssignedContractorDrivesWorkRange(t *testing.T) {
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return bookingAt(model.StatusContractorAssigned), nil
		},
		transitionStatusFunc: func(ctx context.Context, id string, from, to model.BookingStatus) (*model.Booking, error) {
			b := bookingAt(to)
			b.Seq = 4
			return b, nil
		},
	}
	service := newTestService(repo, &mockGateway{})

	updated, err := service.Advance(context.Background(), "booking-1", model.StatusContractorArriving, contractorActor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != model.StatusContractorArriving {
		t.Errorf("expected contractor_arriving, got %s", updated.Status)
	}
}

func TestAdvance_OtherContractorForbidden(t *testing.T) {
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return bookingAt(model.StatusContractorAssigned), nil
		},
	}
	service := newTestService(repo, &mockGateway{})

	stranger := identity.Actor{ID: "contractor-9", Role: identity.RoleContractor}
	_, err := service.Advance(context.Background(), "booking-1", model.StatusContractorArriving, stranger)
	if !apperrors.IsCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestAdvance_SkippingStagesIllegal(t *testing.T) {
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return bookingAt(model.StatusContractorAssigned), nil
		},
	}
	service := newTestService(repo, &mockGateway{})

	_, err := service.Advance(context.Background(), "booking-1", model.StatusWorkCompleted, contractorActor)
	if !apperrors.IsCode(err, apperrors.CodeIllegalTransition) {
		t.Fatalf("expected ILLEGAL_TRANSITION, got %v", err)
	}
}

func TestAdvance_TerminalBookingRefused(t *testing.T) {
	for _, status := range []model.BookingStatus{model.StatusPaid, model.StatusCancelled} {
		repo := &mockBookingRepository{
			findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
				return bookingAt(status), nil
			},
		}
		service := newTestService(repo, &mockGateway{})

		_, err := service.Advance(context.Background(), "booking-1", model.StatusContractorArriving, contractorActor)
		if !apperrors.IsCode(err, apperrors.CodeTerminal) {
			t.Errorf("status %s: expected TERMINAL, got %v", status, err)
		}
	}
}

func TestAdvance_AssignmentOnlyViaBidAccept(t *testing.T) {
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return bookingAt(model.StatusAwaitingBids), nil
		},
	}
	service := newTestService(repo, &mockGateway{})

	admin := identity.Actor{ID: "admin-1", Role: identity.RoleAdmin}
	_, err := service.Advance(context.Background(), "booking-1", model.StatusContractorAssigned, admin)
	if !apperrors.IsCode(err, apperrors.CodeIllegalTransition) {
		t.Fatalf("expected ILLEGAL_TRANSITION, got %v", err)
	}
}

func TestAdvance_ConcurrentTransitionSurfacesConflict(t *testing.T) {
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			// Re-reads observe a concurrent writer already moved the booking.
			return bookingAt(model.StatusWorkInProgress), nil
		},
		transitionStatusFunc: func(ctx context.Context, id string, from, to model.BookingStatus) (*model.Booking, error) {
			return nil, bookingserrors.ErrStaleWrite
		},
	}
	service := newTestService(repo, &mockGateway{})

	_, err := service.Advance(context.Background(), "booking-1", model.StatusWorkCompleted, contractorActor)
	if !apperrors.IsCode(err, apperrors.CodeIllegalTransition) {
		t.Fatalf("expected ILLEGAL_TRANSITION after stale write, got %v", err)
	}
}

func TestCancel_CustomerCancelsOwnBooking(t *testing.T) {
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return bookingAt(model.StatusWorkInProgress), nil
		},
		transitionStatusFunc: func(ctx context.Context, id string, from, to model.BookingStatus) (*model.Booking, error) {
			return bookingAt(model.StatusCancelled), nil
		},
	}
	service := newTestService(repo, &mockGateway{})

	updated, err := service.Cancel(context.Background(), "booking-1", customerActor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != model.StatusCancelled {
		t.Errorf("expected cancelled, got %s", updated.Status)
	}
}

func TestCancel_ContractorOnlyBeforeAssignment(t *testing.T) {
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return bookingAt(model.StatusContractorAssigned), nil
		},
	}
	service := newTestService(repo, &mockGateway{})

	_, err := service.Cancel(context.Background(), "booking-1", contractorActor)
	if !apperrors.IsCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestMarkPaid_GatewayThenStoreThenDerivedStage(t *testing.T) {
	gatewayCalled := false
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return bookingAt(model.StatusWorkCompleted), nil
		},
		markPaidFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			if !gatewayCalled {
				t.Error("store updated before the payment gateway confirmed")
			}
			b := bookingAt(model.StatusPaid)
			b.PaymentState = model.PaymentPaid
			return b, nil
		},
	}
	gateway := &mockGateway{
		markPaidFunc: func(ctx context.Context, bookingID string) error {
			gatewayCalled = true
			return nil
		},
	}
	service := newTestService(repo, gateway)

	updated, err := service.MarkPaid(context.Background(), "booking-1", customerActor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := stage.Display(updated.Status, updated.PaymentState); got != "Completed & Paid" {
		t.Errorf("expected Completed & Paid display stage, got %q", got)
	}
}

// The display stage is derived, so a paid payment state shows the paid stage
// even while the status write is still propagating to replicas.
func TestMarkPaid_DisplayLeadsLaggingStatus(t *testing.T) {
	lagging := bookingAt(model.StatusWorkCompleted)
	lagging.PaymentState = model.PaymentPaid

	if got := stage.Display(lagging.Status, lagging.PaymentState); got != "Completed & Paid" {
		t.Errorf("expected Completed & Paid display stage, got %q", got)
	}
}

func TestMarkPaid_OnlyFromWorkCompleted(t *testing.T) {
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return bookingAt(model.StatusWorkInProgress), nil
		},
	}
	service := newTestService(repo, &mockGateway{})

	_, err := service.MarkPaid(context.Background(), "booking-1", customerActor)
	if !apperrors.IsCode(err, apperrors.CodeIllegalTransition) {
		t.Fatalf("expected ILLEGAL_TRANSITION, got %v", err)
	}
}

func TestMarkPaid_GatewayFailureLeavesBookingUnpaid(t *testing.T) {
	storeTouched := false
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return bookingAt(model.StatusWorkCompleted), nil
		},
		markPaidFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			storeTouched = true
			return bookingAt(model.StatusPaid), nil
		},
	}
	gateway := &mockGateway{
		markPaidFunc: func(ctx context.Context, bookingID string) error {
			return apperrors.Unavailable("payments")
		},
	}
	service := newTestService(repo, gateway)

	_, err := service.MarkPaid(context.Background(), "booking-1", customerActor)
	if err == nil {
		t.Fatal("expected error from gateway failure")
	}
	if storeTouched {
		t.Error("store must not be updated when the gateway refuses")
	}
}

func TestOnBidAccepted_RaceMapsToAlreadyResolved(t *testing.T) {
	repo := &mockBookingRepository{
		assignContractorFunc: func(ctx context.Context, id, contractorID string, at time.Time) (*model.Booking, error) {
			return nil, bookingserrors.ErrStaleWrite
		},
	}
	service := newTestService(repo, &mockGateway{})

	_, err := service.OnBidAccepted(context.Background(), "booking-1", "contractor-1")
	if !apperrors.IsCode(err, apperrors.CodeAlreadyResolved) {
		t.Fatalf("expected ALREADY_RESOLVED, got %v", err)
	}
}

func TestDelete_OnlyWhileAwaitingBids(t *testing.T) {
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return bookingAt(model.StatusWorkInProgress), nil
		},
	}
	service := newTestService(repo, &mockGateway{})

	err := service.Delete(context.Background(), "booking-1", customerActor)
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
}

func TestDelete_AnnouncesRemoval(t *testing.T) {
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return bookingAt(model.StatusAwaitingBids), nil
		},
	}
	pub := &recordingPublisher{}
	service := newTestServiceWithPublisher(repo, &mockGateway{}, pub)

	if err := service.Delete(context.Background(), "booking-1", customerActor); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pub.kinds) != 1 || pub.kinds[0] != model.EventDelete {
		t.Fatalf("expected a single delete event, got %v", pub.kinds)
	}
	if pub.bookings[0].ID != "booking-1" {
		t.Errorf("delete event for booking %q, want booking-1", pub.bookings[0].ID)
	}
}

func TestCreate_DefaultsAndOwnership(t *testing.T) {
	var created *model.Booking
	repo := &mockBookingRepository{
		createFunc: func(ctx context.Context, booking *model.Booking) error {
			created = booking
			return nil
		},
	}
	service := newTestService(repo, &mockGateway{})

	scheduled := time.Now().Add(24 * time.Hour)
	booking := &model.Booking{
		ServiceCategory: "  House Cleaning ",
		Tier:            model.TierStandard,
		ScheduledAt:     &scheduled,
		PriceMin:        50,
		PriceMax:        120,
	}
	if err := service.Create(context.Background(), customerActor, booking); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if created.ID == "" {
		t.Error("expected a generated ID")
	}
	if created.CustomerID != "customer-1" {
		t.Errorf("expected customer-1 ownership, got %q", created.CustomerID)
	}
	if created.Status != model.StatusAwaitingBids {
		t.Errorf("expected awaiting_bids, got %s", created.Status)
	}
	if created.PaymentState != model.PaymentUnpaid {
		t.Errorf("expected unpaid, got %s", created.PaymentState)
	}
	if created.ServiceCategory != "house_cleaning" {
		t.Errorf("expected normalized category, got %q", created.ServiceCategory)
	}
}

func TestCreate_ContractorForbidden(t *testing.T) {
	service := newTestService(&mockBookingRepository{}, &mockGateway{})

	err := service.Create(context.Background(), contractorActor, &model.Booking{})
	if !apperrors.IsCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}
