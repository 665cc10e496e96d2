package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const donationIDKey = "donation_id"

// Stripe implements Processor on Stripe Checkout.
type Stripe struct {
	api           *client.API
	webhookSecret string
}

func NewStripe(secretKey, webhookSecret string) *Stripe {
	return &Stripe{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
	}
}

func (s *Stripe) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	ref := strconv.FormatInt(req.DonationID, 10)

	price := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripe.String(req.Currency),
		UnitAmount: stripe.Int64(req.Amount),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(req.Description),
		},
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(ref),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity:  stripe.Int64(1),
			PriceData: price,
		}},
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	if req.Recurring {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		price.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval: stripe.String(req.Interval),
		}
		// Renewal invoices carry the subscription metadata, which is how
		// they are traced back to the donation that started them.
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{donationIDKey: ref},
		}
	}
	params.AddMetadata(donationIDKey, ref)
	params.Context = ctx

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("creating checkout session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

type checkoutObject struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	PaymentStatus     string            `json:"payment_status"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	Metadata          map[string]string `json:"metadata"`
}

type invoiceObject struct {
	ID                  string `json:"id"`
	BillingReason       string `json:"billing_reason"`
	AmountPaid          int64  `json:"amount_paid"`
	Currency            string `json:"currency"`
	SubscriptionDetails struct {
		Metadata map[string]string `json:"metadata"`
	} `json:"subscription_details"`
}

func (s *Stripe) ParseWebhook(payload []byte, signature string) (*Event, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return decodeEvent(evt.ID, string(evt.Type), evt.Data.Raw)
}

// decodeEvent maps a verified event body onto an Event.
func decodeEvent(id, typ string, raw json.RawMessage) (*Event, error) {
	out := &Event{ID: id, Type: typ, Kind: EventIgnored}

	switch typ {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded",
		"checkout.session.expired", "checkout.session.async_payment_failed":
		var obj checkoutObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("decoding checkout session: %w", err)
		}
		out.SessionID = obj.ID
		out.Amount = obj.AmountTotal
		out.Currency = obj.Currency
		out.DonationID = donationRef(obj.ClientReferenceID, obj.Metadata)

		switch typ {
		case "checkout.session.completed":
			// Delayed payment methods complete the session before the money
			// arrives; those finish with async_payment_succeeded.
			if obj.PaymentStatus == "paid" || obj.PaymentStatus == "no_payment_required" {
				out.Kind = EventCheckoutCompleted
			}
		case "checkout.session.async_payment_succeeded":
			out.Kind = EventCheckoutCompleted
		default:
			out.Kind = EventCheckoutFailed
		}

	case "invoice.paid":
		var inv invoiceObject
		if err := json.Unmarshal(raw, &inv); err != nil {
			return nil, fmt.Errorf("decoding invoice: %w", err)
		}
		// The first invoice of a subscription is settled by the checkout.
		if inv.BillingReason != "subscription_cycle" {
			return out, nil
		}
		out.Kind = EventRenewalPaid
		out.InvoiceID = inv.ID
		out.Amount = inv.AmountPaid
		out.Currency = inv.Currency
		out.DonationID = donationRef("", inv.SubscriptionDetails.Metadata)
	}
	return out, nil
}

func donationRef(clientRef string, metadata map[string]string) int64 {
	if id, err := strconv.ParseInt(clientRef, 10, 64); err == nil {
		return id
	}
	if id, err := strconv.ParseInt(metadata[donationIDKey], 10, 64); err == nil {
		return id
	}
	return 0
}
