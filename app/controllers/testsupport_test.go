package controllers

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/driverincontrol/checkout/app/models"
	"github.com/driverincontrol/checkout/app/repository"
	"github.com/driverincontrol/checkout/internal/pkg/payments"
)

// Minimal in-memory doubles used by the handler tests.

type memAccountRepo struct {
	accounts map[string]*models.Account
}

func (m *memAccountRepo) Create(ctx context.Context, account *models.Account) error {
	if _, ok := m.accounts[account.Email]; ok {
		return gorm.ErrDuplicatedKey
	}
	m.accounts[account.Email] = account
	return nil
}

func (m *memAccountRepo) GetByID(ctx context.Context, id string) (*models.Account, error) {
	for _, account := range m.accounts {
		if account.ID == id {
			return account, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memAccountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if account, ok := m.accounts[email]; ok {
		return account, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memAccountRepo) List(ctx context.Context, offset, limit int) ([]models.Account, error) {
	out := make([]models.Account, 0, len(m.accounts))
	for _, account := range m.accounts {
		out = append(out, *account)
	}
	return out, nil
}

func (m *memAccountRepo) Count(ctx context.Context) (int64, error) { return int64(len(m.accounts)), nil }

func (m *memAccountRepo) Delete(ctx context.Context, id string) error {
	for email, account := range m.accounts {
		if account.ID == id {
			delete(m.accounts, email)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

type memProfileRepo struct {
	profiles map[string]*models.Profile
}

func (m *memProfileRepo) Upsert(ctx context.Context, profile *models.Profile) error {
	m.profiles[profile.ID] = profile
	return nil
}

func (m *memProfileRepo) UpsertRaw(ctx context.Context, profile *models.Profile) error {
	return m.Upsert(ctx, profile)
}
func (m *memProfileRepo) EnsureSchema(ctx context.Context) error { return nil }

func (m *memProfileRepo) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	if profile, ok := m.profiles[id]; ok {
		return profile, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memProfileRepo) GetByStripeCustomerID(ctx context.Context, customerID string) (*models.Profile, error) {
	for _, profile := range m.profiles {
		if profile.StripeCustomerID == customerID {
			return profile, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

type memCredentialRepo struct {
	credentials map[string]*models.PaymentCredential
}

func (m *memCredentialRepo) Upsert(ctx context.Context, cred *models.PaymentCredential) error {
	m.credentials[cred.PaymentID] = cred
	return nil
}

func (m *memCredentialRepo) GetByPaymentID(ctx context.Context, paymentID string) (*models.PaymentCredential, error) {
	if cred, ok := m.credentials[paymentID]; ok {
		return cred, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memCredentialRepo) RecordRetrieval(ctx context.Context, paymentID string) error {
	cred, ok := m.credentials[paymentID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	cred.RetrievalCount++
	cred.RetrievedAt = &now
	return nil
}

type memWebhookEventRepo struct {
	events map[string]*models.WebhookEvent
	nextID uint
}

func (m *memWebhookEventRepo) CreateIfNotExists(ctx context.Context, event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	key := event.Provider + "/" + event.ProviderEventID
	if existing, ok := m.events[key]; ok {
		return false, existing, nil
	}
	m.nextID++
	event.ID = m.nextID
	m.events[key] = event
	return true, event, nil
}

func (m *memWebhookEventRepo) MarkProcessed(ctx context.Context, id uint, processingError string) error {
	for _, event := range m.events {
		if event.ID == id {
			now := time.Now()
			event.ProcessedAt = &now
			event.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func newMemRepositories() *repository.Repositories {
	return &repository.Repositories{
		Account:      &memAccountRepo{accounts: map[string]*models.Account{}},
		Profile:      &memProfileRepo{profiles: map[string]*models.Profile{}},
		Credential:   &memCredentialRepo{credentials: map[string]*models.PaymentCredential{}},
		WebhookEvent: &memWebhookEventRepo{events: map[string]*models.WebhookEvent{}},
	}
}

type memGateway struct {
	customers map[string]*payments.Customer
	sessions  map[string]*payments.PaymentRef
	intents   map[string]*payments.PaymentRef
}

func newMemGateway() *memGateway {
	return &memGateway{
		customers: map[string]*payments.Customer{},
		sessions:  map[string]*payments.PaymentRef{},
		intents:   map[string]*payments.PaymentRef{},
	}
}

func (m *memGateway) CreateCheckoutSession(ctx context.Context, req payments.CheckoutSessionRequest) (*payments.CheckoutSessionResult, error) {
	if req.PriceID == "fail" {
		return nil, errors.New("provider unavailable")
	}
	return &payments.CheckoutSessionResult{SessionID: "cs_test_1", URL: "https://pay.example.com/cs_test_1"}, nil
}

func (m *memGateway) GetCustomer(ctx context.Context, customerID string) (*payments.Customer, error) {
	if customer, ok := m.customers[customerID]; ok {
		return customer, nil
	}
	return nil, errors.New("no such customer")
}

func (m *memGateway) CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (*payments.Customer, error) {
	customer := &payments.Customer{ID: "cus_created", Email: email, Name: name, Metadata: metadata}
	m.customers[customer.ID] = customer
	return customer, nil
}

func (m *memGateway) SetCustomerMetadata(ctx context.Context, customerID string, metadata map[string]string) error {
	return nil
}

func (m *memGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*payments.PaymentRef, error) {
	if ref, ok := m.sessions[sessionID]; ok {
		return ref, nil
	}
	return nil, errors.New("no such session")
}

func (m *memGateway) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*payments.PaymentRef, error) {
	if ref, ok := m.intents[paymentIntentID]; ok {
		return ref, nil
	}
	return nil, errors.New("no such payment intent")
}
