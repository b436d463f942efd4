package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// Gateway is the payment-provider surface the pipeline depends on. Implemented
// by StripeGateway; tests substitute a fake.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSessionResult, error)
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)
	CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (*Customer, error)
	SetCustomerMetadata(ctx context.Context, customerID string, metadata map[string]string) error
	GetCheckoutSession(ctx context.Context, sessionID string) (*PaymentRef, error)
	GetPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentRef, error)
}

// GatewayConfig configures the Stripe gateway.
type GatewayConfig struct {
	// APIKey is the secret key (sk_...).
	APIKey string
	// DefaultSuccessURL / DefaultCancelURL back the checkout-session endpoint
	// when the frontend omits them.
	DefaultSuccessURL string
	DefaultCancelURL  string
}

// StripeGateway implements Gateway on the Stripe API. It holds its own client
// instead of the package-level globals so tests and multi-tenant setups can
// construct isolated instances.
type StripeGateway struct {
	api    *client.API
	config GatewayConfig
}

// NewStripeGateway creates a gateway bound to the given API key.
func NewStripeGateway(config GatewayConfig) (*StripeGateway, error) {
	if config.APIKey == "" {
		return nil, errors.New("stripe API key is required")
	}
	api := &client.API{}
	api.Init(config.APIKey, nil)
	return &StripeGateway{api: api, config: config}, nil
}

// CreateCheckoutSession creates a hosted checkout session and returns its
// redirect URL.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSessionResult, error) {
	if req.PriceID == "" {
		return nil, errors.New("price_id is required")
	}

	successURL := req.SuccessURL
	if successURL == "" {
		successURL = g.config.DefaultSuccessURL
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = g.config.DefaultCancelURL
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	params.Context = ctx

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return &CheckoutSessionResult{SessionID: sess.ID, URL: sess.URL}, nil
}

// GetCustomer fetches a customer by id.
func (g *StripeGateway) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	if customerID == "" {
		return nil, errors.New("customer id is required")
	}

	params := &stripe.CustomerParams{}
	params.Context = ctx

	cust, err := g.api.Customers.Get(customerID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve customer %s: %w", customerID, err)
	}
	return customerFromStripe(cust), nil
}

// CreateCustomer creates a customer on the provider side. Used when a payment
// intent arrives without a customer reference but carries an email.
func (g *StripeGateway) CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (*Customer, error) {
	if email == "" {
		return nil, ErrInvalidCustomer
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	if name != "" {
		params.Name = stripe.String(name)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	cust, err := g.api.Customers.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	return customerFromStripe(cust), nil
}

// SetCustomerMetadata merges the given keys into the customer's metadata.
func (g *StripeGateway) SetCustomerMetadata(ctx context.Context, customerID string, metadata map[string]string) error {
	if customerID == "" {
		return errors.New("customer id is required")
	}

	params := &stripe.CustomerParams{}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	if _, err := g.api.Customers.Update(customerID, params); err != nil {
		return fmt.Errorf("failed to update customer %s metadata: %w", customerID, err)
	}
	return nil
}

// GetCheckoutSession resolves a session id to its customer reference.
func (g *StripeGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*PaymentRef, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := g.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve checkout session %s: %w", sessionID, err)
	}

	ref := &PaymentRef{PaymentID: sess.ID}
	if sess.Customer != nil {
		ref.CustomerID = sess.Customer.ID
		ref.Email = sess.Customer.Email
	}
	if ref.Email == "" && sess.CustomerDetails != nil {
		ref.Email = sess.CustomerDetails.Email
	}
	return ref, nil
}

// GetPaymentIntent resolves a payment-intent id to its customer reference.
func (g *StripeGateway) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentRef, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	intent, err := g.api.PaymentIntents.Get(paymentIntentID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve payment intent %s: %w", paymentIntentID, err)
	}

	ref := &PaymentRef{PaymentID: intent.ID}
	if intent.Customer != nil {
		ref.CustomerID = intent.Customer.ID
		ref.Email = intent.Customer.Email
	}
	if ref.Email == "" {
		ref.Email = intent.ReceiptEmail
	}
	return ref, nil
}

func customerFromStripe(cust *stripe.Customer) *Customer {
	metadata := cust.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &Customer{
		ID:       cust.ID,
		Email:    cust.Email,
		Name:     cust.Name,
		Metadata: metadata,
	}
}
