package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gracefellowship/fellowship/internal/auth"
	"github.com/gracefellowship/fellowship/internal/service"
)

// CampaignHandler handles fundraising campaign endpoints.
type CampaignHandler struct {
	campaigns *service.CampaignService
	donations *service.DonationService
}

// NewCampaignHandler creates a CampaignHandler.
func NewCampaignHandler(campaigns *service.CampaignService, donations *service.DonationService) *CampaignHandler {
	return &CampaignHandler{campaigns: campaigns, donations: donations}
}

type campaignRequest struct {
	Title        *string    `json:"title"`
	Description  *string    `json:"description"`
	TargetAmount *int64     `json:"target_amount"`
	Active       *bool      `json:"active"`
	EndDate      *time.Time `json:"end_date"`
	ClearEndDate bool       `json:"clear_end_date"`
}

func (r campaignRequest) input() service.CampaignInput {
	return service.CampaignInput{
		Title:        r.Title,
		Description:  r.Description,
		TargetAmount: r.TargetAmount,
		Active:       r.Active,
		EndDate:      r.EndDate,
		ClearEndDate: r.ClearEndDate,
	}
}

// List handles GET /api/v1/campaigns. ?active=true hides closed campaigns.
func (h *CampaignHandler) List(c echo.Context) error {
	activeOnly, _ := strconv.ParseBool(c.QueryParam("active"))
	campaigns, err := h.campaigns.List(c.Request().Context(), activeOnly)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, campaigns)
}

// Create handles POST /api/v1/campaigns.
func (h *CampaignHandler) Create(c echo.Context) error {
	var req campaignRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
	}

	campaign, err := h.campaigns.Create(c.Request().Context(), auth.GetUserID(c), req.input())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, campaign)
}

// Get handles GET /api/v1/campaigns/:id.
func (h *CampaignHandler) Get(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid campaign ID")
	}

	campaign, err := h.campaigns.Get(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, campaign)
}

// Update handles PATCH /api/v1/campaigns/:id. The raised amount is not
// editable.
func (h *CampaignHandler) Update(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid campaign ID")
	}

	var req campaignRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
	}

	campaign, err := h.campaigns.Update(c.Request().Context(), auth.GetUserID(c), id, req.input())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, campaign)
}

// ListDonations handles GET /api/v1/campaigns/:id/donations.
func (h *CampaignHandler) ListDonations(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return Error(c, http.StatusBadRequest, "INVALID_ID", "invalid campaign ID")
	}

	_, limit, err := pageParams(c)
	if err != nil {
		return mapServiceError(c, err)
	}

	donations, err := h.donations.ListDonations(c.Request().Context(), auth.GetUserID(c), id, limit)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, donations)
}
