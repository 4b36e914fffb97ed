package service

import (
	"context"
	"testing"
	"time"

	biderrors "fixly/internal/bids/errors"
	"fixly/internal/bids/validator"
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
type mockBidRepository struct {
	createFunc          func(ctx context.Context, bid *model.Bid) error
	findByIDFunc        func(ctx context.Context, id string) (*model.Bid, error)
	activeBidExistsFunc func(ctx context.Context, bookingID, contractorID string, now time.Time) (bool, error)
	acceptPendingFunc   func(ctx context.Context, id string, now time.Time) (*model.Bid, error)
	rejectSiblingsFunc  func(ctx context.Context, bookingID, winnerID, reason string) (int64, error)
	rejectPendingFunc   func(ctx context.Context, id, reason string) (*model.Bid, error)
	expireOneFunc       func(ctx context.Context, id string, now time.Time) (*model.Bid, error)
	findExpiredFunc     func(ctx context.Context, now time.Time, limit int) ([]*model.Bid, error)
}

func (m *mockBidRepository) Create(ctx context.Context, bid *model.Bid) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, bid)
	}
	return nil
}

func (m *mockBidRepository) FindByID(ctx context.Context, id string) (*model.Bid, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, biderrors.ErrNotFound
}

func (m *mockBidRepository) FindByBooking(ctx context.Context, bookingID string) ([]*model.Bid, error) {
	return []*model.Bid{}, nil
}

func (m *mockBidRepository) FindActiveByBooking(ctx context.Context, bookingID string, now time.Time) ([]*model.Bid, error) {
	return []*model.Bid{}, nil
}

func (m *mockBidRepository) FindByContractor(ctx context.Context, contractorID string, limit int, offset int64) ([]*model.Bid, error) {
	return []*model.Bid{}, nil
}

func (m *mockBidRepository) ActiveBidExists(ctx context.Context, bookingID, contractorID string, now time.Time) (bool, error) {
	if m.activeBidExistsFunc != nil {
		return m.activeBidExistsFunc(ctx, bookingID, contractorID, now)
	}
	return false, nil
}

func (m *mockBidRepository) AcceptPending(ctx context.Context, id string, now time.Time) (*model.Bid, error) {
	if m.acceptPendingFunc != nil {
		return m.acceptPendingFunc(ctx, id, now)
	}
	return nil, biderrors.ErrNotFound
}

func (m *mockBidRepository) RejectSiblings(ctx context.Context, bookingID, winnerID, reason string) (int64, error) {
	if m.rejectSiblingsFunc != nil {
		return m.rejectSiblingsFunc(ctx, bookingID, winnerID, reason)
	}
	return 0, nil
}

func (m *mockBidRepository) RejectPending(ctx context.Context, id, reason string) (*model.Bid, error) {
	if m.rejectPendingFunc != nil {
		return m.rejectPendingFunc(ctx, id, reason)
	}
	return nil, biderrors.ErrNotFound
}

func (m *mockBidRepository) ExpireOne(ctx context.Context, id string, now time.Time) (*model.Bid, error) {
	if m.expireOneFunc != nil {
		return m.expireOneFunc(ctx, id, now)
	}
	return nil, biderrors.ErrNotFound
}

func (m *mockBidRepository) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*model.Bid, error) {
	if m.findExpiredFunc != nil {
		return m.findExpiredFunc(ctx, now, limit)
	}
	return []*model.Bid{}, nil
}

func (m *mockBidRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(fakeSessionContext{Context: ctx})
}

// fakeSessionContext satisfies mongo.SessionContext for transaction bodies
// that only pass the context through to mocked repositories.
type fakeSessionContext struct {
	context.Context
	mongo.Session
}

// Mock booking collaborator
type mockBookingService struct {
	getByIDFunc       func(ctx context.Context, id string) (*model.Booking, error)
	onBidAcceptedFunc func(ctx context.Context, bookingID, contractorID string) (*model.Booking, error)
}

func (m *mockBookingService) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, apperrors.NotFoundWithID("Booking", id)
}

func (m *mockBookingService) OnBidAccepted(ctx context.Context, bookingID, contractorID string) (*model.Booking, error) {
	if m.onBidAcceptedFunc != nil {
		return m.onBidAcceptedFunc(ctx, bookingID, contractorID)
	}
	return &model.Booking{ID: bookingID, ContractorID: contractorID, Status: model.StatusContractorAssigned}, nil
}

func (m *mockBookingService) Create(ctx context.Context, actor identity.Actor, booking *model.Booking) error {
	return nil
}

func (m *mockBookingService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error) {
	return nil, 0, nil
}

func (m *mockBookingService) GetOpen(ctx context.Context, limit int, offset int64) ([]*model.Booking, error) {
	return nil, nil
}

func (m *mockBookingService) Advance(ctx context.Context, id string, target model.BookingStatus, actor identity.Actor) (*model.Booking, error) {
	return nil, nil
}

func (m *mockBookingService) Cancel(ctx context.Context, id string, actor identity.Actor) (*model.Booking, error) {
	return nil, nil
}

func (m *mockBookingService) MarkPaid(ctx context.Context, id string, actor identity.Actor) (*model.Booking, error) {
	return nil, nil
}

func (m *mockBookingService) Delete(ctx context.Context, id string, actor identity.Actor) error {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Log: logger.New(logger.Config{
			Level:   "error",
			Format:  "json",
			Service: "test",
		}),
		BidWindow:         30 * time.Minute,
		BidWindowPriority: 15 * time.Minute,
		BidSweepInterval:  30 * time.Second,
	}
}

func newTestService(repo *mockBidRepository, bookings *mockBookingService) BidService {
	return newTestServiceWithPublisher(repo, bookings, realtime.NoopPublisher{})
}

func newTestServiceWithPublisher(repo *mockBidRepository, bookings *mockBookingService, pub realtime.Publisher) BidService {
	cfg := testConfig()
	return NewBidService(repo, bookings, validator.NewBidValidator(cfg.Log), pub, cfg)
}

// recordingPublisher keeps the bid documents handed to the feed so tests can
// assert exactly what was announced.
type recordingPublisher struct {
	bids []*model.Bid
}

func (p *recordingPublisher) PublishBookingChange(context.Context, model.EventKind, *model.Booking) error {
	return nil
}

func (p *recordingPublisher) PublishBidChange(_ context.Context, _ model.EventKind, bid *model.Bid) error {
	p.bids = append(p.bids, bid)
	return nil
}

var contractorActor = identity.Actor{ID: "contractor-1", Role: identity.RoleContractor}
var customerActor = identity.Actor{ID: "customer-1", Role: identity.RoleCustomer}

func standardBooking() *model.Booking {
	return &model.Booking{
		ID:         "booking-1",
		CustomerID: "customer-1",
		Tier:       model.TierStandard,
		Status:     model.StatusAwaitingBids,
	}
}

func TestSubmit_StandardBookingLeavesBidPending(t *testing.T) {
	var created *model.Bid
	repo := &mockBidRepository{
		createFunc: func(ctx context.Context, bid *model.Bid) error {
			created = bid
			return nil
		},
	}
	bookings := &mockBookingService{
		getByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return standardBooking(), nil
		},
	}
	service := newTestService(repo, bookings)

	bid := &model.Bid{BookingID: "booking-1", Amount: 200, EtaMinutes: 90}
	if err := service.Submit(context.Background(), contractorActor, bid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if created == nil {
		t.Fatal("expected bid to be created")
	}
	if created.Status != model.BidPending {
		t.Errorf("expected status pending, got %s", created.Status)
	}
	want := created.CreatedAt.Add(30 * time.Minute)
	if !created.ExpiresAt.Equal(want) {
		t.Errorf("expected expiry %v, got %v", want, created.ExpiresAt)
	}
}

func TestSubmit_PriorityBookingAutoAccepts(t *testing.T) {
	var accepted string
	var assigned string
	var stored model.Bid
	repo := &mockBidRepository{
		createFunc: func(ctx context.Context, bid *model.Bid) error {
			stored = *bid
			return nil
		},
		acceptPendingFunc: func(ctx context.Context, id string, now time.Time) (*model.Bid, error) {
			accepted = id
			flipped := stored
			flipped.Status = model.BidAccepted
			flipped.Seq = 2
			return &flipped, nil
		},
	}
	bookings := &mockBookingService{
		getByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			b := standardBooking()
			b.Tier = model.TierPriority
			return b, nil
		},
		onBidAcceptedFunc: func(ctx context.Context, bookingID, contractorID string) (*model.Booking, error) {
			assigned = contractorID
			return &model.Booking{ID: bookingID, ContractorID: contractorID, Status: model.StatusContractorAssigned}, nil
		},
	}
	service := newTestService(repo, bookings)

	bid := &model.Bid{BookingID: "booking-1", Amount: 200, EtaMinutes: 60}
	if err := service.Submit(context.Background(), contractorActor, bid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if bid.Status != model.BidAccepted {
		t.Errorf("expected status accepted, got %s", bid.Status)
	}
	if accepted != bid.ID {
		t.Errorf("expected accept of %s, got %s", bid.ID, accepted)
	}
	if assigned != "contractor-1" {
		t.Errorf("expected contractor-1 assigned, got %q", assigned)
	}
	if !bid.ExpiresAt.Equal(bid.CreatedAt.Add(15 * time.Minute)) {
		t.Errorf("priority bids get the priority window, got expiry %v", bid.ExpiresAt)
	}
}

func TestSubmit_ClosedBookingRejected(t *testing.T) {
	bookings := &mockBookingService{
		getByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			b := standardBooking()
			b.Status = model.StatusContractorAssigned
			return b, nil
		},
	}
	service := newTestService(&mockBidRepository{}, bookings)

	bid := &model.Bid{BookingID: "booking-1", Amount: 200, EtaMinutes: 90}
	err := service.Submit(context.Background(), contractorActor, bid)
	if !apperrors.IsCode(err, apperrors.CodeBookingClosed) {
		t.Fatalf("expected BOOKING_CLOSED, got %v", err)
	}
}

func TestSubmit_DuplicateActiveBidRejected(t *testing.T) {
	repo := &mockBidRepository{
		activeBidExistsFunc: func(ctx context.Context, bookingID, contractorID string, now time.Time) (bool, error) {
			return true, nil
		},
	}
	bookings := &mockBookingService{
		getByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return standardBooking(), nil
		},
	}
	service := newTestService(repo, bookings)

	bid := &model.Bid{BookingID: "booking-1", Amount: 200, EtaMinutes: 90}
	err := service.Submit(context.Background(), contractorActor, bid)
	if !apperrors.IsCode(err, apperrors.CodeDuplicateBid) {
		t.Fatalf("expected DUPLICATE_BID, got %v", err)
	}
}

func TestSubmit_InvalidEtaRejected(t *testing.T) {
	service := newTestService(&mockBidRepository{}, &mockBookingService{})

	for _, eta := range []int{0, 14, 481} {
		bid := &model.Bid{BookingID: "booking-1", Amount: 200, EtaMinutes: eta}
		err := service.Submit(context.Background(), contractorActor, bid)
		if !apperrors.IsCode(err, apperrors.CodeInvalidEta) {
			t.Errorf("eta %d: expected INVALID_ETA, got %v", eta, err)
		}
	}
}

func TestSubmit_InvalidAmountRejected(t *testing.T) {
	service := newTestService(&mockBidRepository{}, &mockBookingService{})

	for _, amount := range []float64{0, -50} {
		bid := &model.Bid{BookingID: "booking-1", Amount: amount, EtaMinutes: 90}
		err := service.Submit(context.Background(), contractorActor, bid)
		if !apperrors.IsCode(err, apperrors.CodeInvalidAmount) {
			t.Errorf("amount %v: expected INVALID_AMOUNT, got %v", amount, err)
		}
	}
}

func TestSubmit_CustomerCannotBid(t *testing.T) {
	service := newTestService(&mockBidRepository{}, &mockBookingService{})

	bid := &model.Bid{BookingID: "booking-1", Amount: 200, EtaMinutes: 90}
	err := service.Submit(context.Background(), customerActor, bid)
	if !apperrors.IsCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestAccept_ResolvesWholeLedger(t *testing.T) {
	var rejectedSiblingsOf string
	repo := &mockBidRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Bid, error) {
			return &model.Bid{ID: id, BookingID: "booking-1", ContractorID: "contractor-1", Status: model.BidPending,
				ExpiresAt: time.Now().Add(10 * time.Minute)}, nil
		},
		acceptPendingFunc: func(ctx context.Context, id string, now time.Time) (*model.Bid, error) {
			return &model.Bid{ID: id, BookingID: "booking-1", ContractorID: "contractor-1", Status: model.BidAccepted, Seq: 2}, nil
		},
		rejectSiblingsFunc: func(ctx context.Context, bookingID, winnerID, reason string) (int64, error) {
			rejectedSiblingsOf = winnerID
			return 1, nil
		},
	}
	bookings := &mockBookingService{
		getByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return standardBooking(), nil
		},
	}
	service := newTestService(repo, bookings)

	accepted, err := service.Accept(context.Background(), "bid-1", customerActor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accepted.Status != model.BidAccepted {
		t.Errorf("expected accepted, got %s", accepted.Status)
	}
	if rejectedSiblingsOf != "bid-1" {
		t.Errorf("expected siblings of bid-1 rejected, got %q", rejectedSiblingsOf)
	}
}

func TestAccept_SecondAcceptObservesAlreadyResolved(t *testing.T) {
	repo := &mockBidRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Bid, error) {
			// The winning accept already flipped this bid.
			return &model.Bid{ID: id, BookingID: "booking-1", Status: model.BidAccepted}, nil
		},
		acceptPendingFunc: func(ctx context.Context, id string, now time.Time) (*model.Bid, error) {
			return nil, biderrors.ErrStaleWrite
		},
	}
	bookings := &mockBookingService{
		getByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return standardBooking(), nil
		},
	}
	service := newTestService(repo, bookings)

	_, err := service.Accept(context.Background(), "bid-2", customerActor)
	if !apperrors.IsCode(err, apperrors.CodeAlreadyResolved) {
		t.Fatalf("expected ALREADY_RESOLVED, got %v", err)
	}
}

func TestAccept_ExpiredBidObservesBidExpired(t *testing.T) {
	repo := &mockBidRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Bid, error) {
			return &model.Bid{ID: id, BookingID: "booking-1", Status: model.BidPending,
				ExpiresAt: time.Now().Add(-30 * time.Minute)}, nil
		},
		acceptPendingFunc: func(ctx context.Context, id string, now time.Time) (*model.Bid, error) {
			return nil, biderrors.ErrStaleWrite
		},
	}
	bookings := &mockBookingService{
		getByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return standardBooking(), nil
		},
	}
	service := newTestService(repo, bookings)

	_, err := service.Accept(context.Background(), "bid-1", customerActor)
	if !apperrors.IsCode(err, apperrors.CodeBidExpired) {
		t.Fatalf("expected BID_EXPIRED, got %v", err)
	}
}

func TestAccept_OnlyBookingOwner(t *testing.T) {
	repo := &mockBidRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Bid, error) {
			return &model.Bid{ID: id, BookingID: "booking-1", Status: model.BidPending}, nil
		},
	}
	bookings := &mockBookingService{
		getByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return standardBooking(), nil
		},
	}
	service := newTestService(repo, bookings)

	other := identity.Actor{ID: "customer-2", Role: identity.RoleCustomer}
	_, err := service.Accept(context.Background(), "bid-1", other)
	if !apperrors.IsCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestExpireStale_Idempotent(t *testing.T) {
	swept := false
	repo := &mockBidRepository{
		findExpiredFunc: func(ctx context.Context, now time.Time, limit int) ([]*model.Bid, error) {
			if swept {
				return []*model.Bid{}, nil
			}
			return []*model.Bid{
				{ID: "bid-1", BookingID: "booking-1", Status: model.BidPending, Seq: 1},
			}, nil
		},
		expireOneFunc: func(ctx context.Context, id string, now time.Time) (*model.Bid, error) {
			swept = true
			return &model.Bid{ID: id, BookingID: "booking-1", Status: model.BidExpired, Seq: 2}, nil
		},
	}
	service := newTestService(repo, &mockBookingService{})

	now := time.Now().UTC()
	count, err := service.ExpireStale(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 expired, got %d", count)
	}

	count, err = service.ExpireStale(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error on re-run: %v", err)
	}
	if count != 0 {
		t.Errorf("re-running the sweep expired %d bids, want 0", count)
	}
}

func TestExpireStale_AnnouncesOnlyFlippedBids(t *testing.T) {
	// bid-1 is genuinely stale; bid-2 was accepted between the listing read
	// and the guarded flip, so its flip loses the conditional update.
	repo := &mockBidRepository{
		findExpiredFunc: func(ctx context.Context, now time.Time, limit int) ([]*model.Bid, error) {
			return []*model.Bid{
				{ID: "bid-1", BookingID: "booking-1", Status: model.BidPending, Seq: 1},
				{ID: "bid-2", BookingID: "booking-1", Status: model.BidPending, Seq: 1},
			}, nil
		},
		expireOneFunc: func(ctx context.Context, id string, now time.Time) (*model.Bid, error) {
			if id == "bid-2" {
				return nil, biderrors.ErrStaleWrite
			}
			return &model.Bid{ID: id, BookingID: "booking-1", Status: model.BidExpired, Seq: 2}, nil
		},
	}
	pub := &recordingPublisher{}
	service := newTestServiceWithPublisher(repo, &mockBookingService{}, pub)

	count, err := service.ExpireStale(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 expired, got %d", count)
	}
	if len(pub.bids) != 1 {
		t.Fatalf("expected 1 announced bid, got %d", len(pub.bids))
	}
	if pub.bids[0].ID != "bid-1" {
		t.Errorf("announced bid %q, want bid-1", pub.bids[0].ID)
	}
	if pub.bids[0].Status != model.BidExpired || pub.bids[0].Seq != 2 {
		t.Errorf("announced status=%s seq=%d, want expired document as stored", pub.bids[0].Status, pub.bids[0].Seq)
	}
}
