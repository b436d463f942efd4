package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/driverincontrol/checkout/app/models"
	"github.com/driverincontrol/checkout/app/repository"
	"github.com/driverincontrol/checkout/internal/pkg/objectstore"
)

// In-memory doubles for the repository, gateway and object-store interfaces.

type fakeAccountRepo struct {
	accounts map[string]*models.Account // keyed by email
	// createConflict simulates a concurrent writer: the first Create fails
	// with a duplicate-key error after inserting raceWinner.
	createConflict bool
	raceWinner     *models.Account
	createErr      error
	createCalls    int
	lastCtx        context.Context
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: map[string]*models.Account{}}
}

func (f *fakeAccountRepo) Create(ctx context.Context, account *models.Account) error {
	f.lastCtx = ctx
	f.createCalls++
	if f.createErr != nil {
		return f.createErr
	}
	if f.createConflict {
		f.createConflict = false
		if f.raceWinner != nil {
			f.accounts[f.raceWinner.Email] = f.raceWinner
		}
		return gorm.ErrDuplicatedKey
	}
	if _, exists := f.accounts[account.Email]; exists {
		return gorm.ErrDuplicatedKey
	}
	f.accounts[account.Email] = account
	return nil
}

func (f *fakeAccountRepo) GetByID(ctx context.Context, id string) (*models.Account, error) {
	for _, account := range f.accounts {
		if account.ID == id {
			return account, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAccountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	f.lastCtx = ctx
	if account, ok := f.accounts[email]; ok {
		return account, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAccountRepo) List(ctx context.Context, offset, limit int) ([]models.Account, error) {
	out := make([]models.Account, 0, len(f.accounts))
	for _, account := range f.accounts {
		out = append(out, *account)
	}
	return out, nil
}

func (f *fakeAccountRepo) Count(ctx context.Context) (int64, error) {
	return int64(len(f.accounts)), nil
}

func (f *fakeAccountRepo) Delete(ctx context.Context, id string) error {
	for email, account := range f.accounts {
		if account.ID == id {
			delete(f.accounts, email)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

type fakeProfileRepo struct {
	profiles       map[string]*models.Profile // keyed by account id
	upsertErr      error
	ensureCalled   bool
	rawUpsertCalls int
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{profiles: map[string]*models.Profile{}}
}

func (f *fakeProfileRepo) Upsert(ctx context.Context, profile *models.Profile) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.merge(profile)
	return nil
}

func (f *fakeProfileRepo) UpsertRaw(ctx context.Context, profile *models.Profile) error {
	f.rawUpsertCalls++
	f.merge(profile)
	return nil
}

// merge applies the same law as the real upserts: non-zero incoming fields
// overwrite, zero-valued fields preserve stored data.
func (f *fakeProfileRepo) merge(incoming *models.Profile) {
	stored, ok := f.profiles[incoming.ID]
	if !ok {
		copied := *incoming
		copied.CreatedAt = time.Now()
		copied.UpdatedAt = copied.CreatedAt
		f.profiles[incoming.ID] = &copied
		return
	}
	if incoming.Email != "" {
		stored.Email = incoming.Email
	}
	if incoming.FullName != "" {
		stored.FullName = incoming.FullName
	}
	if incoming.StripeCustomerID != "" {
		stored.StripeCustomerID = incoming.StripeCustomerID
	}
	if incoming.SubscriptionStatus != "" {
		stored.SubscriptionStatus = incoming.SubscriptionStatus
	}
	if incoming.SubscriptionID != "" {
		stored.SubscriptionID = incoming.SubscriptionID
	}
	if incoming.PlanID != "" {
		stored.PlanID = incoming.PlanID
	}
	if incoming.PaymentStatus != "" {
		stored.PaymentStatus = incoming.PaymentStatus
	}
	if incoming.SubscriptionPeriodEnd != nil {
		stored.SubscriptionPeriodEnd = incoming.SubscriptionPeriodEnd
	}
	if incoming.LastPaymentID != "" {
		stored.LastPaymentID = incoming.LastPaymentID
	}
	if incoming.LastPaymentStatus != "" {
		stored.LastPaymentStatus = incoming.LastPaymentStatus
	}
	if incoming.LastPaymentAmount != nil {
		stored.LastPaymentAmount = incoming.LastPaymentAmount
	}
	if incoming.LastPaymentDate != nil {
		stored.LastPaymentDate = incoming.LastPaymentDate
	}
	if incoming.IsSubscribed {
		stored.IsSubscribed = true
	}
	stored.UpdatedAt = time.Now()
}

func (f *fakeProfileRepo) EnsureSchema(ctx context.Context) error {
	f.ensureCalled = true
	f.upsertErr = nil
	return nil
}

func (f *fakeProfileRepo) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	if profile, ok := f.profiles[id]; ok {
		return profile, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeProfileRepo) GetByStripeCustomerID(ctx context.Context, customerID string) (*models.Profile, error) {
	for _, profile := range f.profiles {
		if profile.StripeCustomerID == customerID {
			return profile, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeCredentialRepo struct {
	credentials map[string]*models.PaymentCredential // keyed by payment id
	upsertErr   error
	retrievals  map[string]int
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{
		credentials: map[string]*models.PaymentCredential{},
		retrievals:  map[string]int{},
	}
}

func (f *fakeCredentialRepo) Upsert(ctx context.Context, cred *models.PaymentCredential) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if existing, ok := f.credentials[cred.PaymentID]; ok {
		existing.Email = cred.Email
		existing.Password = cred.Password
		existing.RedirectURL = cred.RedirectURL
		*cred = *existing
		return nil
	}
	cred.CreatedAt = time.Now()
	f.credentials[cred.PaymentID] = cred
	return nil
}

func (f *fakeCredentialRepo) GetByPaymentID(ctx context.Context, paymentID string) (*models.PaymentCredential, error) {
	if cred, ok := f.credentials[paymentID]; ok {
		return cred, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeCredentialRepo) RecordRetrieval(ctx context.Context, paymentID string) error {
	cred, ok := f.credentials[paymentID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	cred.RetrievalCount++
	cred.RetrievedAt = &now
	f.retrievals[paymentID]++
	return nil
}

type fakeWebhookEventRepo struct {
	events map[string]*models.WebhookEvent
	nextID uint
}

func newFakeWebhookEventRepo() *fakeWebhookEventRepo {
	return &fakeWebhookEventRepo{events: map[string]*models.WebhookEvent{}}
}

func (f *fakeWebhookEventRepo) CreateIfNotExists(ctx context.Context, event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	key := event.Provider + "/" + event.ProviderEventID
	if existing, ok := f.events[key]; ok {
		return false, existing, nil
	}
	f.nextID++
	event.ID = f.nextID
	event.CreatedAt = time.Now()
	f.events[key] = event
	return true, event, nil
}

func (f *fakeWebhookEventRepo) MarkProcessed(ctx context.Context, id uint, processingError string) error {
	for _, event := range f.events {
		if event.ID == id {
			now := time.Now()
			event.ProcessedAt = &now
			event.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func newFakeRepositories() (*repository.Repositories, *fakeAccountRepo, *fakeProfileRepo, *fakeCredentialRepo, *fakeWebhookEventRepo) {
	accounts := newFakeAccountRepo()
	profiles := newFakeProfileRepo()
	credentials := newFakeCredentialRepo()
	events := newFakeWebhookEventRepo()
	repos := &repository.Repositories{
		Account:      accounts,
		Profile:      profiles,
		Credential:   credentials,
		WebhookEvent: events,
	}
	return repos, accounts, profiles, credentials, events
}

type fakeGateway struct {
	customers       map[string]*Customer // keyed by customer id
	sessions        map[string]*PaymentRef
	intents         map[string]*PaymentRef
	metadataWrites  map[string]map[string]string
	createdCustomer *Customer
	createErr       error
	nextCustomerID  int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		customers:      map[string]*Customer{},
		sessions:       map[string]*PaymentRef{},
		intents:        map[string]*PaymentRef{},
		metadataWrites: map[string]map[string]string{},
	}
}

func (f *fakeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSessionResult, error) {
	return &CheckoutSessionResult{SessionID: "cs_test_1", URL: "https://pay.example.com/cs_test_1"}, nil
}

func (f *fakeGateway) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	if customer, ok := f.customers[customerID]; ok {
		return customer, nil
	}
	return nil, errors.New("no such customer")
}

func (f *fakeGateway) CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (*Customer, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextCustomerID++
	customer := &Customer{
		ID:       fmt.Sprintf("cus_created_%d", f.nextCustomerID),
		Email:    email,
		Name:     name,
		Metadata: metadata,
	}
	f.customers[customer.ID] = customer
	f.createdCustomer = customer
	return customer, nil
}

func (f *fakeGateway) SetCustomerMetadata(ctx context.Context, customerID string, metadata map[string]string) error {
	existing, ok := f.metadataWrites[customerID]
	if !ok {
		existing = map[string]string{}
		f.metadataWrites[customerID] = existing
	}
	for k, v := range metadata {
		existing[k] = v
	}
	if customer, found := f.customers[customerID]; found {
		if customer.Metadata == nil {
			customer.Metadata = map[string]string{}
		}
		for k, v := range metadata {
			customer.Metadata[k] = v
		}
	}
	return nil
}

func (f *fakeGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*PaymentRef, error) {
	if ref, ok := f.sessions[sessionID]; ok {
		return ref, nil
	}
	return nil, errors.New("no such session")
}

func (f *fakeGateway) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentRef, error) {
	if ref, ok := f.intents[paymentIntentID]; ok {
		return ref, nil
	}
	return nil, errors.New("no such payment intent")
}

type fakeObjectStore struct {
	objects   map[string][]byte
	uploadErr error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}}
}

func (f *fakeObjectStore) UploadJSON(ctx context.Context, objectKey string, data []byte) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.objects[objectKey] = data
	return nil
}

func (f *fakeObjectStore) Download(ctx context.Context, objectKey string) ([]byte, error) {
	if data, ok := f.objects[objectKey]; ok {
		return data, nil
	}
	return nil, objectstore.ErrObjectNotFound
}

func (f *fakeObjectStore) ObjectExists(ctx context.Context, objectKey string) (bool, error) {
	_, ok := f.objects[objectKey]
	return ok, nil
}

func (f *fakeObjectStore) Delete(ctx context.Context, objectKey string) error {
	delete(f.objects, objectKey)
	return nil
}

type fakeMailer struct {
	welcomes      []string
	subscriptions []string
}

func (f *fakeMailer) SendWelcomeEmail(toEmail, password string) error {
	f.welcomes = append(f.welcomes, toEmail)
	return nil
}

func (f *fakeMailer) SendSubscriptionEmail(toEmail, planID string) error {
	f.subscriptions = append(f.subscriptions, toEmail)
	return nil
}
