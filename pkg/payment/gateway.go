package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	apperrors "fixly/pkg/errors"
	"fixly/pkg/logger"
)

// Gateway is the external payment collaborator. Capture itself happens
// elsewhere; the core only asks it to mark a booking paid and trusts the
// answer.
type Gateway interface {
	MarkPaid(ctx context.Context, bookingID string) error
}

type httpGateway struct {
	baseURL string
	client  *http.Client
	log     *logger.Logger
}

func NewHTTPGateway(baseURL string, timeout time.Duration, log *logger.Logger) Gateway {
	return &httpGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

func (g *httpGateway) MarkPaid(ctx context.Context, bookingID string) error {
	payload, err := json.Marshal(map[string]string{"booking_id": bookingID})
	if err != nil {
		return apperrors.Internal("Failed to encode payment request", err)
	}

	url := fmt.Sprintf("%s/api/v1/payments/mark-paid", g.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return apperrors.Internal("Failed to build payment request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Error("Payment gateway call failed", "booking_id", bookingID, "error", err)
		return apperrors.Unavailable("Payment gateway")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		g.log.Warn("Payment gateway rejected mark-paid",
			"booking_id", bookingID,
			"status", resp.StatusCode,
		)
		return apperrors.Conflict(fmt.Sprintf("Payment gateway refused to mark booking paid (status %d)", resp.StatusCode))
	}

	return nil
}
