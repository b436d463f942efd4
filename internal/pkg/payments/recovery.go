package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/driverincontrol/checkout/app/models"
	"github.com/driverincontrol/checkout/app/repository"
	"github.com/driverincontrol/checkout/internal/pkg/objectstore"
)

// Recovery sources, in the order the strategies run.
const (
	SourceDatabase      = "database"
	SourceStorage       = "storage"
	SourceStripe        = "stripe"
	SourceStripePartial = "stripe_partial"
)

// passwordMetadataKeys are the provider-side metadata keys a stashed password
// may live under, checked in order.
var passwordMetadataKeys = []string{"password", "temp_password", "tempPassword"}

// recoveryStrategy is one named way of reconstructing credentials from a
// payment id. Returning (nil, nil) means "not found here, try the next one";
// an error aborts only this strategy.
type recoveryStrategy struct {
	name string
	run  func(ctx context.Context, paymentID string) (*RecoveryResult, error)
}

// Recoverer reconstructs issued credentials from a payment identifier through
// an ordered list of strategies: recovery table, object-storage backup, live
// provider lookup.
type Recoverer struct {
	repos      *repository.Repositories
	backup     objectstore.Store // nil when the backup store is disabled
	gateway    Gateway
	strategies []recoveryStrategy
}

// NewRecoverer wires the strategy chain.
func NewRecoverer(repos *repository.Repositories, backup objectstore.Store, gateway Gateway) *Recoverer {
	r := &Recoverer{
		repos:   repos,
		backup:  backup,
		gateway: gateway,
	}
	r.strategies = []recoveryStrategy{
		{name: SourceDatabase, run: r.fromDatabase},
		{name: SourceStorage, run: r.fromStorage},
		{name: SourceStripe, run: r.fromStripe},
	}
	return r
}

// Recover runs the strategies in order and returns the first hit. All misses
// collapse into ErrNotRecovered.
func (r *Recoverer) Recover(ctx context.Context, paymentID string) (*RecoveryResult, error) {
	if paymentID == "" {
		return nil, errors.New("payment id is required")
	}

	for _, strategy := range r.strategies {
		result, err := strategy.run(ctx, paymentID)
		if err != nil {
			log.Warnf("[Recovery] strategy %s failed for %s: %v", strategy.name, paymentID, err)
			continue
		}
		if result != nil {
			log.Infof("[Recovery] %s recovered via %s", paymentID, result.Source)
			return result, nil
		}
	}

	return nil, fmt.Errorf("%w: payment id %s", ErrNotRecovered, paymentID)
}

// fromDatabase reads the recovery table and bumps the retrieval counter on a hit.
func (r *Recoverer) fromDatabase(ctx context.Context, paymentID string) (*RecoveryResult, error) {
	credential, err := r.repos.Credential.GetByPaymentID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if credential.Email == "" {
		return nil, nil
	}

	if err := r.repos.Credential.RecordRetrieval(ctx, paymentID); err != nil {
		log.Warnf("[Recovery] retrieval counter for %s failed: %v", paymentID, err)
	}

	return &RecoveryResult{
		Email:       credential.Email,
		Password:    credential.Password,
		RedirectURL: credential.RedirectURL,
		Source:      SourceDatabase,
	}, nil
}

// fromStorage reads the <paymentId>.json backup blob.
func (r *Recoverer) fromStorage(ctx context.Context, paymentID string) (*RecoveryResult, error) {
	if r.backup == nil {
		return nil, nil
	}

	data, err := r.backup.Download(ctx, paymentID+".json")
	if err != nil {
		if errors.Is(err, objectstore.ErrObjectNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var backup credentialBackup
	if err := json.Unmarshal(data, &backup); err != nil {
		return nil, fmt.Errorf("corrupt backup blob: %w", err)
	}
	if backup.Email == "" {
		return nil, nil
	}

	return &RecoveryResult{
		Email:       backup.Email,
		Password:    backup.Password,
		RedirectURL: backup.RedirectURL,
		Source:      SourceStorage,
	}, nil
}

// fromStripe resolves the payment id against the provider: first as a checkout
// session, then as a payment intent, then reads the customer's email and any
// stashed password from metadata. Full hits are written back into the recovery
// table so the next lookup is served from the database.
func (r *Recoverer) fromStripe(ctx context.Context, paymentID string) (*RecoveryResult, error) {
	ref := r.resolvePaymentRef(ctx, paymentID)
	if ref == nil {
		return nil, nil
	}

	email := ref.Email
	password := ""
	redirectURL := ""

	if ref.CustomerID != "" {
		customer, err := r.gateway.GetCustomer(ctx, ref.CustomerID)
		if err != nil {
			log.Warnf("[Recovery] customer lookup %s failed: %v", ref.CustomerID, err)
		} else {
			if customer.Email != "" {
				email = customer.Email
			}
			for _, key := range passwordMetadataKeys {
				if value := customer.Metadata[key]; value != "" {
					password = value
					break
				}
			}
			redirectURL = customer.Metadata[metadataKeyRedirectURL]
		}
	}

	if email == "" {
		return nil, nil
	}
	if password == "" {
		return &RecoveryResult{Email: email, Source: SourceStripePartial}, nil
	}

	// Writeback so future lookups hit the database strategy.
	credential := &models.PaymentCredential{
		PaymentID:   paymentID,
		Email:       email,
		Password:    password,
		RedirectURL: redirectURL,
	}
	if err := r.repos.Credential.Upsert(ctx, credential); err != nil {
		log.Warnf("[Recovery] writeback for %s failed: %v", paymentID, err)
	}

	return &RecoveryResult{
		Email:       email,
		Password:    password,
		RedirectURL: redirectURL,
		Source:      SourceStripe,
	}, nil
}

func (r *Recoverer) resolvePaymentRef(ctx context.Context, paymentID string) *PaymentRef {
	if ref, err := r.gateway.GetCheckoutSession(ctx, paymentID); err == nil {
		return ref
	}
	if ref, err := r.gateway.GetPaymentIntent(ctx, paymentID); err == nil {
		return ref
	}
	return nil
}
