package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"fixly/internal/bids/service"
	"fixly/internal/bids/timer"
	"fixly/internal/matching"
	"fixly/pkg/config"
	apperrors "fixly/pkg/errors"
	httputil "fixly/pkg/http"
	"fixly/pkg/identity"
	"fixly/pkg/logger"
	"fixly/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type BidHandler struct {
	service service.BidService
	log     *logger.Logger
}

func NewBidHandler(service service.BidService, log *logger.Logger) *BidHandler {
	return &BidHandler{
		service: service,
		log:     log,
	}
}

// BidView decorates a bid with its live countdown so clients do not have to
// reimplement the window arithmetic.
type BidView struct {
	*model.Bid
	RemainingSeconds int64 `json:"remaining_seconds"`
}

func viewOf(bid *model.Bid, now time.Time) BidView {
	return BidView{
		Bid:              bid,
		RemainingSeconds: int64(timer.Remaining(bid, now).Seconds()),
	}
}

func viewsOf(bids []*model.Bid, now time.Time) []BidView {
	views := make([]BidView, 0, len(bids))
	for _, b := range bids {
		views = append(views, viewOf(b, now))
	}
	return views
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *BidHandler) Submit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, err := identity.FromRequest(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Submit", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	var bid model.Bid
	if err := json.NewDecoder(r.Body).Decode(&bid); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Submit", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.Submit(r.Context(), actor, &bid); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Submit", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, viewOf(&bid, time.Now().UTC())); err != nil {
		h.log.Error("failed to write created response", "handler", "Submit", "operation", "WriteCreated", "error", err)
	}
}

func (h *BidHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	bid, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetByID", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, viewOf(bid, time.Now().UTC())); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BidHandler) GetByBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	bookingID := ps.ByName("bookingId")

	actor, err := identity.FromRequest(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetByBooking", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	var bids []*model.Bid
	if r.URL.Query().Get("active") == "true" {
		bids, err = h.service.ActiveForBooking(r.Context(), bookingID)
	} else {
		bids, err = h.service.GetByBooking(r.Context(), bookingID, actor)
	}
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetByBooking", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, viewsOf(bids, time.Now().UTC())); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByBooking", "operation", "WriteSuccess", "error", err)
	}
}

// GetMine lists the calling contractor's own bids across bookings.
func (h *BidHandler) GetMine(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, err := identity.FromRequest(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetMine", "operation", "WriteError", "error", writeErr)
		}
		return
	}
	if actor.Role != identity.RoleContractor {
		if writeErr := httputil.WriteError(w, apperrors.Forbidden("Only contractors have a bid history")); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetMine", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	limit, offset, err := h.pagination(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetMine", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	bids, err := h.service.GetByContractor(r.Context(), actor.ID, limit, offset)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetMine", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, viewsOf(bids, time.Now().UTC())); err != nil {
		h.log.Error("failed to write success response", "handler", "GetMine", "operation", "WriteSuccess", "error", err)
	}
}

// Eligible lists the open bookings the calling contractor may bid on. The
// contractor's service category and tier come from query parameters until a
// profile service owns them.
func (h *BidHandler) Eligible(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, err := identity.FromRequest(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Eligible", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	query := r.URL.Query()
	contractor := matching.Contractor{
		ServiceCategory: query.Get("service_category"),
		Tier:            model.Tier(query.Get("tier")),
	}
	if contractor.ServiceCategory == "" || !model.ValidTier(contractor.Tier) {
		if writeErr := httputil.WriteError(w, apperrors.InvalidInput("service_category and a valid tier are required")); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Eligible", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	limit, offset, err := h.pagination(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Eligible", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	bookings, err := h.service.EligibleBookings(r.Context(), actor, contractor, limit, offset)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Eligible", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, bookings); err != nil {
		h.log.Error("failed to write success response", "handler", "Eligible", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BidHandler) Accept(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	actor, err := identity.FromRequest(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Accept", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	bid, err := h.service.Accept(r.Context(), id, actor)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Accept", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, viewOf(bid, time.Now().UTC())); err != nil {
		h.log.Error("failed to write success response", "handler", "Accept", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BidHandler) Reject(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	actor, err := identity.FromRequest(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Reject", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Reject", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	bid, err := h.service.Reject(r.Context(), id, req.Reason, actor)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Reject", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, viewOf(bid, time.Now().UTC())); err != nil {
		h.log.Error("failed to write success response", "handler", "Reject", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BidHandler) pagination(r *http.Request) (int, int64, error) {
	query := r.URL.Query()

	limit := 0
	if limitStr := query.Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, apperrors.InvalidInput(fmt.Sprintf("invalid limit parameter: %s", limitStr))
		}
		limit = parsed
	}

	var offset int64
	if offsetStr := query.Get("offset"); offsetStr != "" {
		parsed, err := strconv.ParseInt(offsetStr, 10, 64)
		if err != nil {
			return 0, 0, apperrors.InvalidInput(fmt.Sprintf("invalid offset parameter: %s", offsetStr))
		}
		offset = parsed
	}

	return config.NormalizePaginationLimit(limit), config.NormalizeOffset(offset), nil
}

func (h *BidHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/bids", h.Submit)
	router.GET("/api/v1/bids/mine", h.GetMine)
	router.GET("/api/v1/bids/eligible-bookings", h.Eligible)
	router.GET("/api/v1/bids/id/:id", h.GetByID)
	router.POST("/api/v1/bids/id/:id/accept", h.Accept)
	router.POST("/api/v1/bids/id/:id/reject", h.Reject)
	router.GET("/api/v1/bookings/id/:bookingId/bids", h.GetByBooking)
}
