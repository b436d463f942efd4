package payments

import (
	"errors"
	"time"
)

// Sentinel errors of the provisioning pipeline.
var (
	// ErrInvalidCustomer is returned when a payment event carries no usable
	// customer email, so no account can be resolved for it.
	ErrInvalidCustomer = errors.New("customer has no email")

	// ErrAccountCreationFailed is returned when account creation hit a
	// duplicate-email conflict and the follow-up lookup also came back empty.
	ErrAccountCreationFailed = errors.New("account creation failed")

	// ErrNotRecovered is returned when every recovery strategy came up empty.
	ErrNotRecovered = errors.New("credentials not recovered")
)

// Customer is the provider-side identity of a payer. Only the metadata map is
// ever written by this pipeline (recovery hints); everything else is read-only.
type Customer struct {
	ID       string
	Email    string
	Name     string
	Metadata map[string]string
}

// ResolveResult is the outcome of resolving a Customer to an application account.
// IssuedPassword is set only when the account was created by this call.
type ResolveResult struct {
	AccountID      string
	IsNewAccount   bool
	IssuedPassword string
}

// CheckoutSessionRequest is the input for creating a hosted checkout session.
type CheckoutSessionRequest struct {
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// CheckoutSessionResult carries the redirect URL handed to the browser.
type CheckoutSessionResult struct {
	SessionID string
	URL       string
}

// PaymentRef identifies the customer behind a payment identifier, as resolved
// against the provider (checkout session or payment intent).
type PaymentRef struct {
	PaymentID  string
	CustomerID string
	Email      string
}

// RecoveryResult is what the credential recovery endpoint returns on success.
// Source names the strategy that produced it: "database", "storage", "stripe"
// or "stripe_partial" (email found, password not).
type RecoveryResult struct {
	Email       string `json:"email"`
	Password    string `json:"password,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
	Source      string `json:"-"`
}

// credentialBackup is the JSON document written to object storage per payment id.
type credentialBackup struct {
	PaymentID   string    `json:"payment_id"`
	Email       string    `json:"email"`
	Password    string    `json:"password"`
	RedirectURL string    `json:"redirect_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
