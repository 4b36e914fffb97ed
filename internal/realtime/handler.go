package realtime

import (
	"net/http"

	httputil "fixly/pkg/http"
	"fixly/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

// SnapshotHandler exposes the bridge's folded view over HTTP. Reads are pure,
// they never reach the authoritative store or the feed.
type SnapshotHandler struct {
	bridge *Bridge
	log    *logger.Logger
}

func NewSnapshotHandler(bridge *Bridge, log *logger.Logger) *SnapshotHandler {
	return &SnapshotHandler{
		bridge: bridge,
		log:    log,
	}
}

func (h *SnapshotHandler) Snapshot(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := httputil.WriteSuccess(w, h.bridge.Snapshot()); err != nil {
		h.log.Error("failed to write success response", "handler", "Snapshot", "operation", "WriteSuccess", "error", err)
	}
}

func (h *SnapshotHandler) GetBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	booking := h.bridge.Store().Booking(id)
	if booking == nil {
		if err := httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{
			Error: "Booking not in view",
		}); err != nil {
			h.log.Error("failed to write JSON response", "handler", "GetBooking", "operation", "WriteJSON", "error", err)
		}
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "GetBooking", "operation", "WriteSuccess", "error", err)
	}
}

func (h *SnapshotHandler) GetBookingBids(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	bids := h.bridge.Store().BidsForBooking(id)
	if err := httputil.WriteSuccess(w, bids); err != nil {
		h.log.Error("failed to write success response", "handler", "GetBookingBids", "operation", "WriteSuccess", "error", err)
	}
}

func (h *SnapshotHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/snapshot", h.Snapshot)
	router.GET("/api/v1/snapshot/bookings/:id", h.GetBooking)
	router.GET("/api/v1/snapshot/bookings/:id/bids", h.GetBookingBids)
}
