// Package payments talks to the hosted payment processor: it opens checkout
// sessions for donations and turns signed webhook deliveries into events.
package payments

import (
	"context"
	"errors"
)

// ErrInvalidSignature is returned when a webhook payload fails verification.
var ErrInvalidSignature = errors.New("payments: invalid webhook signature")

// Intervals accepted for recurring donations.
const (
	IntervalMonth = "month"
	IntervalYear  = "year"
)

type CheckoutRequest struct {
	DonationID  int64
	Amount      int64
	Currency    string
	Description string
	Email       string
	Recurring   bool
	Interval    string
	SuccessURL  string
	CancelURL   string
}

type CheckoutSession struct {
	ID  string
	URL string
}

type EventKind int

const (
	// EventIgnored covers deliveries that do not change any donation.
	EventIgnored EventKind = iota
	// EventCheckoutCompleted means the payer was charged for a checkout.
	EventCheckoutCompleted
	// EventCheckoutFailed means the checkout expired or its payment failed.
	EventCheckoutFailed
	// EventRenewalPaid is a paid subscription invoice after the first one.
	EventRenewalPaid
)

func (k EventKind) String() string {
	switch k {
	case EventCheckoutCompleted:
		return "checkout_completed"
	case EventCheckoutFailed:
		return "checkout_failed"
	case EventRenewalPaid:
		return "renewal_paid"
	}
	return "ignored"
}

// Event is a verified processor notification reduced to what donations need.
type Event struct {
	ID         string
	Type       string
	Kind       EventKind
	SessionID  string
	InvoiceID  string
	DonationID int64 // the donation that opened the checkout, when known
	Amount     int64
	Currency   string
}

// Processor is the hosted checkout provider.
type Processor interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	ParseWebhook(payload []byte, signature string) (*Event, error)
}
