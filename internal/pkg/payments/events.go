package payments

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event types handled by the dispatcher. Everything else is an acknowledged no-op.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventPaymentIntentSucceeded   = "payment_intent.succeeded"
	EventSubscriptionCreated      = "customer.subscription.created"
)

var (
	ErrMalformedEvent = errors.New("malformed event payload")
)

// Event is the decoded webhook event. Exactly one of the payload pointers is
// non-nil, selected by Type; unhandled types leave all three nil.
type Event struct {
	ID   string
	Type string

	// Raw is the data.object payload as received, kept for the event journal.
	Raw json.RawMessage

	CheckoutSession *CheckoutSessionPayload
	PaymentIntent   *PaymentIntentPayload
	Subscription    *SubscriptionPayload
}

// CheckoutSessionPayload is the data.object of checkout.session.completed.
type CheckoutSessionPayload struct {
	ID              string            `json:"id"`
	Customer        string            `json:"customer"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerDetails *customerDetails  `json:"customer_details"`
	PaymentStatus   string            `json:"payment_status"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	Subscription    string            `json:"subscription"`
	SuccessURL      string            `json:"success_url"`
	Metadata        map[string]string `json:"metadata"`
}

type customerDetails struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Email returns the best available payer email from the session payload.
func (p *CheckoutSessionPayload) Email() string {
	if p.CustomerDetails != nil && p.CustomerDetails.Email != "" {
		return p.CustomerDetails.Email
	}
	return p.CustomerEmail
}

// PayerName returns the payer name when the session carries one.
func (p *CheckoutSessionPayload) PayerName() string {
	if p.CustomerDetails != nil {
		return p.CustomerDetails.Name
	}
	return ""
}

// PaymentIntentPayload is the data.object of payment_intent.succeeded.
type PaymentIntentPayload struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status"`
	ReceiptEmail string            `json:"receipt_email"`
	Metadata     map[string]string `json:"metadata"`
}

// Email returns the payer email carried by the intent itself, if any:
// metadata first, receipt email second.
func (p *PaymentIntentPayload) Email() string {
	if email := p.Metadata["email"]; email != "" {
		return email
	}
	return p.ReceiptEmail
}

// SubscriptionPayload is the data.object of customer.subscription.created.
type SubscriptionPayload struct {
	ID               string            `json:"id"`
	Customer         string            `json:"customer"`
	Status           string            `json:"status"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	Metadata         map[string]string `json:"metadata"`
	Items            struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
			Plan struct {
				ID string `json:"id"`
			} `json:"plan"`
		} `json:"data"`
	} `json:"items"`
}

// PlanID returns the price (or legacy plan) id of the first subscription item.
func (p *SubscriptionPayload) PlanID() string {
	if len(p.Items.Data) == 0 {
		return ""
	}
	item := p.Items.Data[0]
	if item.Price.ID != "" {
		return item.Price.ID
	}
	return item.Plan.ID
}

// envelope is the untrusted outer shape of a webhook body.
type envelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data *struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes a webhook body into an Event. The envelope must carry a
// type and a data.object; handled event types additionally get their payload
// decoded and shape-checked, failing closed on anything unexpected.
func ParseEvent(body []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	if env.Data == nil || len(env.Data.Object) == 0 || string(env.Data.Object) == "null" {
		return nil, fmt.Errorf("%w: missing data.object", ErrMalformedEvent)
	}
	return DecodePayload(env.ID, env.Type, env.Data.Object)
}

// DecodePayload decodes a data.object for the given event type into an Event.
func DecodePayload(id, eventType string, object json.RawMessage) (*Event, error) {
	event := &Event{
		ID:   id,
		Type: eventType,
		Raw:  object,
	}

	switch eventType {
	case EventCheckoutSessionCompleted:
		var payload CheckoutSessionPayload
		if err := json.Unmarshal(object, &payload); err != nil {
			return nil, fmt.Errorf("%w: checkout session: %v", ErrMalformedEvent, err)
		}
		if payload.ID == "" {
			return nil, fmt.Errorf("%w: checkout session without id", ErrMalformedEvent)
		}
		event.CheckoutSession = &payload
	case EventPaymentIntentSucceeded:
		var payload PaymentIntentPayload
		if err := json.Unmarshal(object, &payload); err != nil {
			return nil, fmt.Errorf("%w: payment intent: %v", ErrMalformedEvent, err)
		}
		if payload.ID == "" {
			return nil, fmt.Errorf("%w: payment intent without id", ErrMalformedEvent)
		}
		event.PaymentIntent = &payload
	case EventSubscriptionCreated:
		var payload SubscriptionPayload
		if err := json.Unmarshal(object, &payload); err != nil {
			return nil, fmt.Errorf("%w: subscription: %v", ErrMalformedEvent, err)
		}
		if payload.ID == "" {
			return nil, fmt.Errorf("%w: subscription without id", ErrMalformedEvent)
		}
		event.Subscription = &payload
	}

	return event, nil
}
