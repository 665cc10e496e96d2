package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/gracefellowship/fellowship/internal/auth"
	"github.com/gracefellowship/fellowship/internal/models"
	"github.com/gracefellowship/fellowship/internal/service"
)

const maxWebhookBody = 64 << 10

// DonationHandler handles checkout and payment processor callbacks.
type DonationHandler struct {
	service *service.DonationService
}

// NewDonationHandler creates a DonationHandler.
func NewDonationHandler(svc *service.DonationService) *DonationHandler {
	return &DonationHandler{service: svc}
}

type checkoutRequest struct {
	Amount     int64                   `json:"amount"`
	Category   models.DonationCategory `json:"category"`
	CampaignID string                  `json:"campaign_id"`
	Email      string                  `json:"email"`
	Recurring  bool                    `json:"recurring"`
	Interval   string                  `json:"interval"`
}

// Checkout handles POST /api/v1/donations/checkout. Authentication is
// optional; guests must supply an email for the receipt.
func (h *DonationHandler) Checkout(c echo.Context) error {
	var req checkoutRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
	}

	in := service.CheckoutInput{
		Amount:    req.Amount,
		Category:  req.Category,
		Email:     req.Email,
		Recurring: req.Recurring,
		Interval:  req.Interval,
	}
	if req.CampaignID != "" {
		id, err := strconv.ParseInt(req.CampaignID, 10, 64)
		if err != nil {
			return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid campaign ID")
		}
		in.CampaignID = &id
	}
	if uid, ok := auth.OptionalUserID(c); ok {
		in.PayerID = &uid
	}

	result, err := h.service.Checkout(c.Request().Context(), in)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, result)
}

// Webhook handles POST /api/v1/webhooks/payments. The raw body is needed
// for signature verification, so it is read before any binding. A non-2xx
// answer makes the processor retry, which the service tolerates.
func (h *DonationHandler) Webhook(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_BODY", "unreadable request body")
	}

	if err := h.service.HandleWebhook(c.Request().Context(), payload, c.Request().Header.Get("Stripe-Signature")); err != nil {
		return mapServiceError(c, err)
	}
	return c.NoContent(http.StatusOK)
}
