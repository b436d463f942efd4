package repository

import (
	"context"

	"github.com/driverincontrol/checkout/app/models"
	"gorm.io/gorm"
)

// AccountRepository defines the interface for account-related database operations
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	List(ctx context.Context, offset, limit int) ([]models.Account, error)
	Count(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id string) error
}

// ProfileRepository defines the interface for profile persistence. Upsert and
// UpsertRaw are two independent write paths over the same merge semantics:
// non-zero incoming fields overwrite, zero-valued fields preserve stored data.
type ProfileRepository interface {
	Upsert(ctx context.Context, profile *models.Profile) error
	UpsertRaw(ctx context.Context, profile *models.Profile) error
	EnsureSchema(ctx context.Context) error
	GetByID(ctx context.Context, id string) (*models.Profile, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*models.Profile, error)
}

// CredentialRepository defines the interface for the credential recovery table
type CredentialRepository interface {
	Upsert(ctx context.Context, cred *models.PaymentCredential) error
	GetByPaymentID(ctx context.Context, paymentID string) (*models.PaymentCredential, error)
	RecordRetrieval(ctx context.Context, paymentID string) error
}

// WebhookEventRepository stores webhook deliveries idempotently
type WebhookEventRepository interface {
	CreateIfNotExists(ctx context.Context, event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkProcessed(ctx context.Context, id uint, processingError string) error
}

// Repositories holds all repository instances
type Repositories struct {
	Account      AccountRepository
	Profile      ProfileRepository
	Credential   CredentialRepository
	WebhookEvent WebhookEventRepository
}

// NewRepositories creates all repositories with the given database connection
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Account:      NewAccountRepository(db),
		Profile:      NewProfileRepository(db),
		Credential:   NewCredentialRepository(db),
		WebhookEvent: NewWebhookEventRepository(db),
	}
}
