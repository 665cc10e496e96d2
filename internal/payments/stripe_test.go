package payments

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v76/webhook"
)

func TestDecodeEvent_CheckoutCompleted(t *testing.T) {
	raw := json.RawMessage(`{"id":"cs_1","client_reference_id":"42","payment_status":"paid","amount_total":2500,"currency":"usd"}`)
	evt, err := decodeEvent("evt_1", "checkout.session.completed", raw)
	if err != nil {
		t.Fatalf("decodeEvent: %v", err)
	}
	if evt.Kind != EventCheckoutCompleted || evt.SessionID != "cs_1" || evt.DonationID != 42 || evt.Amount != 2500 {
		t.Errorf("unexpected event: %+v", evt)
	}
}

func TestDecodeEvent_CompletedButUnpaidIsIgnored(t *testing.T) {
	raw := json.RawMessage(`{"id":"cs_1","client_reference_id":"42","payment_status":"unpaid"}`)
	evt, err := decodeEvent("evt_1", "checkout.session.completed", raw)
	if err != nil {
		t.Fatalf("decodeEvent: %v", err)
	}
	if evt.Kind != EventIgnored {
		t.Errorf("Kind = %v, want ignored", evt.Kind)
	}
}

func TestDecodeEvent_Failures(t *testing.T) {
	for _, typ := range []string{"checkout.session.expired", "checkout.session.async_payment_failed"} {
		evt, err := decodeEvent("evt", typ, json.RawMessage(`{"id":"cs_2","metadata":{"donation_id":"7"}}`))
		if err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
		if evt.Kind != EventCheckoutFailed || evt.DonationID != 7 {
			t.Errorf("%s: %+v", typ, evt)
		}
	}
}

func TestDecodeEvent_Invoice(t *testing.T) {
	renewal := json.RawMessage(`{"id":"in_1","billing_reason":"subscription_cycle","amount_paid":1500,"currency":"usd","subscription_details":{"metadata":{"donation_id":"9"}}}`)
	evt, err := decodeEvent("evt", "invoice.paid", renewal)
	if err != nil {
		t.Fatalf("decodeEvent: %v", err)
	}
	if evt.Kind != EventRenewalPaid || evt.InvoiceID != "in_1" || evt.DonationID != 9 || evt.Amount != 1500 {
		t.Errorf("unexpected renewal: %+v", evt)
	}

	first := json.RawMessage(`{"id":"in_0","billing_reason":"subscription_create","amount_paid":1500}`)
	evt, _ = decodeEvent("evt", "invoice.paid", first)
	if evt.Kind != EventIgnored {
		t.Error("first subscription invoice should be ignored")
	}
}

func TestDecodeEvent_UnknownType(t *testing.T) {
	evt, err := decodeEvent("evt", "customer.created", json.RawMessage(`{}`))
	if err != nil || evt.Kind != EventIgnored {
		t.Errorf("got %+v, %v", evt, err)
	}
}

func TestParseWebhook_BadSignature(t *testing.T) {
	s := NewStripe("sk_test_x", "whsec_test")
	_, err := s.ParseWebhook([]byte(`{"id":"evt"}`), "t=1,v1=deadbeef")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestParseWebhook_SignedPayload(t *testing.T) {
	s := NewStripe("sk_test_x", "whsec_test")
	payload := []byte(`{"id":"evt_9","object":"event","type":"checkout.session.expired",` +
		`"data":{"object":{"id":"cs_9","client_reference_id":"11"}}}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_test",
		Timestamp: time.Now(),
	})

	evt, err := s.ParseWebhook(signed.Payload, signed.Header)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if evt.ID != "evt_9" || evt.Kind != EventCheckoutFailed || evt.DonationID != 11 {
		t.Errorf("unexpected event: %+v", evt)
	}
}
