package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/gracefellowship/fellowship/internal/database"
	"github.com/gracefellowship/fellowship/internal/gateway"
	"github.com/gracefellowship/fellowship/internal/metrics"
	"github.com/gracefellowship/fellowship/internal/models"
	"github.com/gracefellowship/fellowship/internal/notify"
	"github.com/gracefellowship/fellowship/internal/payments"
	"github.com/gracefellowship/fellowship/internal/permissions"
	"github.com/gracefellowship/fellowship/internal/snowflake"
)

// MinDonationAmount is the smallest accepted gift in minor units.
const MinDonationAmount = 100

// CheckoutInput is a donation request. PayerID is nil for guest donors.
type CheckoutInput struct {
	PayerID    *int64
	Amount     int64
	Category   models.DonationCategory
	CampaignID *int64
	Email      string
	Recurring  bool
	Interval   string
}

type CheckoutResult struct {
	DonationID int64  `json:"donation_id,string"`
	URL        string `json:"checkout_url"`
}

// CheckoutURLs are where the hosted checkout sends the donor afterwards.
type CheckoutURLs struct {
	Success string
	Cancel  string
}

// DonationService opens checkouts and applies processor webhooks.
type DonationService struct {
	donations database.DonationRepository
	campaigns database.CampaignRepository
	processor payments.Processor
	queue     notify.Enqueuer
	ids       *snowflake.Node
	publisher gateway.Publisher
	perms     *PermissionChecker
	currency  string
	urls      CheckoutURLs
}

// NewDonationService creates a DonationService. A nil processor disables
// checkout and webhooks.
func NewDonationService(
	donations database.DonationRepository,
	campaigns database.CampaignRepository,
	processor payments.Processor,
	queue notify.Enqueuer,
	ids *snowflake.Node,
	publisher gateway.Publisher,
	perms *PermissionChecker,
	currency string,
	urls CheckoutURLs,
) *DonationService {
	return &DonationService{
		donations: donations,
		campaigns: campaigns,
		processor: processor,
		queue:     queue,
		ids:       ids,
		publisher: publisher,
		perms:     perms,
		currency:  currency,
		urls:      urls,
	}
}

// Checkout records a pending donation and returns the hosted checkout URL.
func (s *DonationService) Checkout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if s.processor == nil {
		return nil, Unavailable("PAYMENTS_DISABLED", "online giving is not available")
	}
	if in.Amount < MinDonationAmount {
		return nil, BadRequest("INVALID_AMOUNT", fmt.Sprintf("amount must be at least %d", MinDonationAmount))
	}
	if in.CampaignID != nil && in.Category == "" {
		in.Category = models.CategoryCampaign
	}
	if !in.Category.Valid() {
		return nil, BadRequest("INVALID_CATEGORY", "category must be one of tithe, offering, missions, building, campaign")
	}
	if (in.Category == models.CategoryCampaign) != (in.CampaignID != nil) {
		return nil, BadRequest("INVALID_CATEGORY", "campaign donations need a campaign_id and only they may have one")
	}
	if in.Recurring {
		if in.Interval != payments.IntervalMonth && in.Interval != payments.IntervalYear {
			return nil, BadRequest("INVALID_INTERVAL", "interval must be month or year")
		}
	} else {
		in.Interval = ""
	}
	in.Email = strings.TrimSpace(in.Email)
	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			return nil, BadRequest("INVALID_EMAIL", "email is not valid")
		}
	}
	if in.PayerID != nil {
		if _, err := s.perms.Require(ctx, *in.PayerID, permissions.PermDonate); err != nil {
			return nil, err
		}
	}

	description := "Gift: " + string(in.Category)
	if in.CampaignID != nil {
		campaign, err := s.campaigns.GetByID(ctx, *in.CampaignID)
		if err != nil {
			return nil, internalError()
		}
		if campaign == nil {
			return nil, NotFound("NOT_FOUND", "campaign not found")
		}
		if !campaign.Active {
			return nil, BadRequest("CAMPAIGN_CLOSED", "campaign is no longer accepting donations")
		}
		description = campaign.Title
	}

	d := &models.Donation{
		ID:         s.ids.Next(),
		Amount:     in.Amount,
		Currency:   s.currency,
		Category:   in.Category,
		CampaignID: in.CampaignID,
		PayerID:    in.PayerID,
		DonorEmail: in.Email,
		Recurring:  in.Recurring,
		Interval:   in.Interval,
		Status:     models.DonationPending,
		CreatedAt:  time.Now(),
	}
	if err := s.donations.Create(ctx, d); err != nil {
		slog.Error("creating donation", "error", err)
		return nil, internalError()
	}

	sess, err := s.processor.CreateCheckout(ctx, payments.CheckoutRequest{
		DonationID:  d.ID,
		Amount:      d.Amount,
		Currency:    d.Currency,
		Description: description,
		Email:       d.DonorEmail,
		Recurring:   d.Recurring,
		Interval:    d.Interval,
		SuccessURL:  s.urls.Success,
		CancelURL:   s.urls.Cancel,
	})
	if err != nil {
		slog.Error("opening checkout", "donationID", d.ID, "error", err)
		if _, ferr := s.donations.Fail(ctx, d.ID); ferr != nil {
			slog.Error("failing donation after checkout error", "donationID", d.ID, "error", ferr)
		}
		return nil, internalError()
	}
	if err := s.donations.SetProviderSession(ctx, d.ID, sess.ID); err != nil {
		slog.Error("saving checkout session", "donationID", d.ID, "error", err)
		return nil, internalError()
	}

	return &CheckoutResult{DonationID: d.ID, URL: sess.URL}, nil
}

// HandleWebhook verifies and applies one processor notification. Repeated
// deliveries of the same event are no-ops.
func (s *DonationService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.processor == nil {
		return Unavailable("PAYMENTS_DISABLED", "online giving is not available")
	}
	evt, err := s.processor.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			return BadRequest("INVALID_SIGNATURE", "webhook signature verification failed")
		}
		return BadRequest("INVALID_PAYLOAD", "webhook payload could not be decoded")
	}
	slog.Info("payment webhook", "eventID", evt.ID, "type", evt.Type, "kind", evt.Kind.String())

	switch evt.Kind {
	case payments.EventCheckoutCompleted:
		return s.complete(ctx, evt)
	case payments.EventCheckoutFailed:
		return s.fail(ctx, evt)
	case payments.EventRenewalPaid:
		return s.renew(ctx, evt)
	}
	return nil
}

// resolve finds the donation an event refers to, by id or checkout session.
func (s *DonationService) resolve(ctx context.Context, evt *payments.Event) (*models.Donation, error) {
	if evt.DonationID != 0 {
		d, err := s.donations.GetByID(ctx, evt.DonationID)
		if err != nil || d != nil {
			return d, err
		}
	}
	if evt.SessionID != "" {
		return s.donations.GetByProviderSession(ctx, evt.SessionID)
	}
	return nil, nil
}

func (s *DonationService) complete(ctx context.Context, evt *payments.Event) error {
	d, err := s.resolve(ctx, evt)
	if err != nil {
		return internalError()
	}
	if d == nil {
		slog.Warn("webhook for unknown donation", "eventID", evt.ID, "sessionID", evt.SessionID)
		return nil
	}

	outcome, err := s.donations.Complete(ctx, d.ID, time.Now())
	if err != nil {
		slog.Error("completing donation", "donationID", d.ID, "error", err)
		return internalError()
	}
	if outcome == nil {
		slog.Info("donation already settled", "donationID", d.ID, "status", d.Status)
		return nil
	}

	s.afterCompletion(ctx, d, outcome)
	return nil
}

func (s *DonationService) fail(ctx context.Context, evt *payments.Event) error {
	d, err := s.resolve(ctx, evt)
	if err != nil {
		return internalError()
	}
	if d == nil {
		return nil
	}

	changed, err := s.donations.Fail(ctx, d.ID)
	if err != nil {
		slog.Error("failing donation", "donationID", d.ID, "error", err)
		return internalError()
	}
	if !changed {
		return nil
	}
	metrics.DonationTransitions.WithLabelValues(string(models.DonationFailed)).Inc()

	if d.CampaignID != nil {
		failed := *d
		failed.Status = models.DonationFailed
		s.publisher.Publish(gateway.Change{
			Table: gateway.TableDonations,
			Type:  gateway.ChangeUpdate,
			Old:   *d,
			New:   failed,
		}, gateway.DonationsTopic(*d.CampaignID))
	}
	return nil
}

func (s *DonationService) renew(ctx context.Context, evt *payments.Event) error {
	original, err := s.resolve(ctx, &payments.Event{DonationID: evt.DonationID})
	if err != nil {
		return internalError()
	}
	if original == nil {
		slog.Warn("renewal for unknown subscription", "eventID", evt.ID, "invoiceID", evt.InvoiceID)
		return nil
	}

	now := time.Now()
	amount := evt.Amount
	if amount <= 0 {
		amount = original.Amount
	}
	renewal := &models.Donation{
		ID:                s.ids.Next(),
		Amount:            amount,
		Currency:          original.Currency,
		Category:          original.Category,
		CampaignID:        original.CampaignID,
		PayerID:           original.PayerID,
		DonorEmail:        original.DonorEmail,
		Recurring:         true,
		Interval:          original.Interval,
		ProviderSessionID: evt.InvoiceID,
		CreatedAt:         now,
		CompletedAt:       &now,
	}
	outcome, err := s.donations.RecordRenewal(ctx, renewal)
	if err != nil {
		slog.Error("recording renewal", "invoiceID", evt.InvoiceID, "error", err)
		return internalError()
	}
	if outcome == nil {
		return nil
	}

	s.afterCompletion(ctx, nil, outcome)
	return nil
}

// afterCompletion publishes the committed changes and thanks the payer.
// before is the pending row, or nil for donations inserted as completed.
func (s *DonationService) afterCompletion(ctx context.Context, before *models.Donation, outcome *database.DonationOutcome) {
	d := outcome.Donation
	metrics.DonationTransitions.WithLabelValues(string(models.DonationCompleted)).Inc()
	metrics.DonatedAmount.Add(float64(d.Amount))

	if d.CampaignID != nil {
		change := gateway.Change{Table: gateway.TableDonations, Type: gateway.ChangeInsert, New: d}
		if before != nil {
			change.Type = gateway.ChangeUpdate
			change.Old = *before
		}
		s.publisher.Publish(change, gateway.DonationsTopic(*d.CampaignID))
	}
	if outcome.Campaign != nil {
		publishCampaign(s.publisher, gateway.ChangeUpdate, &outcome.Campaign.Old, &outcome.Campaign.New)
	}

	if d.PayerID != nil && s.queue != nil {
		job := notify.ToUser(*d.PayerID,
			"Thank you for your gift",
			"We received your donation of "+FormatAmount(d.Amount, d.Currency)+".",
			map[string]string{"donation_id": strconv.FormatInt(d.ID, 10)},
		)
		if err := s.queue.Enqueue(ctx, job); err != nil {
			slog.Warn("queueing thank-you push", "donationID", d.ID, "error", err)
		}
	}
}

// ListDonations returns the most recent donations to a campaign.
func (s *DonationService) ListDonations(ctx context.Context, userID, campaignID int64, limit int) ([]models.Donation, error) {
	if _, err := s.perms.Require(ctx, userID, permissions.PermViewDonations); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxPageSize {
		limit = DefaultPageSize
	}
	donations, err := s.donations.ListByCampaign(ctx, campaignID, limit)
	if err != nil {
		return nil, internalError()
	}
	if donations == nil {
		donations = []models.Donation{}
	}
	return donations, nil
}

// FormatAmount renders minor units as "12.50 USD".
func FormatAmount(amount int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", amount/100, amount%100, strings.ToUpper(currency))
}
