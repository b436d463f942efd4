package payments

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v79/webhook"
)

// Signature verification modes. SignatureModeFull is the default; the
// structural mode exists for deployments that terminate verification upstream
// and must be enabled explicitly.
const (
	SignatureModeFull       = "signature"
	SignatureModeStructural = "structural"
)

// ErrSignatureInvalid is returned when the stripe-signature header does not
// verify against the shared endpoint secret.
var ErrSignatureInvalid = errors.New("webhook signature verification failed")

// VerifierConfig configures the event authenticity check.
type VerifierConfig struct {
	// EndpointSecret is the shared webhook signing secret (whsec_...).
	EndpointSecret string
	// Mode selects full signature verification or structural-only validation.
	Mode string
}

// Verifier turns a raw webhook delivery into a trusted Event, either by
// verifying its signature or, in structural mode, by shape-checking only.
type Verifier struct {
	config VerifierConfig
}

// NewVerifier creates a Verifier. Structural mode is logged loudly at startup
// because it accepts unauthenticated deliveries.
func NewVerifier(config VerifierConfig) (*Verifier, error) {
	switch config.Mode {
	case "", SignatureModeFull:
		config.Mode = SignatureModeFull
		if config.EndpointSecret == "" {
			return nil, errors.New("webhook endpoint secret is required for signature verification")
		}
	case SignatureModeStructural:
		log.Warnf("[Webhook] signature verification DISABLED (structural mode) - deliveries are not authenticated")
	default:
		return nil, fmt.Errorf("unknown webhook signature mode: %s", config.Mode)
	}
	return &Verifier{config: config}, nil
}

// VerifyAndParse validates a raw delivery and returns the decoded Event.
// SignatureValid on the return reports whether cryptographic verification ran.
func (v *Verifier) VerifyAndParse(body []byte, signatureHeader string) (*Event, bool, error) {
	if v.config.Mode == SignatureModeStructural {
		event, err := ParseEvent(body)
		return event, false, err
	}

	stripeEvent, err := webhook.ConstructEventWithOptions(
		body,
		signatureHeader,
		v.config.EndpointSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if stripeEvent.Data == nil || len(stripeEvent.Data.Raw) == 0 {
		return nil, true, fmt.Errorf("%w: missing data.object", ErrMalformedEvent)
	}

	event, err := DecodePayload(stripeEvent.ID, string(stripeEvent.Type), stripeEvent.Data.Raw)
	if err != nil {
		return nil, true, err
	}
	return event, true, nil
}
