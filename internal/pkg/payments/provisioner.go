package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/driverincontrol/checkout/app/models"
	"github.com/driverincontrol/checkout/app/repository"
	"github.com/driverincontrol/checkout/internal/pkg/objectstore"
)

// Metadata keys written back to the provider-side customer so that credentials
// can later be reconstructed from provider data alone.
const (
	metadataKeyUserID             = "user_id"
	metadataKeyPassword           = "password"
	metadataKeySubscriptionStatus = "subscription_status"
	metadataKeyRedirectURL        = "redirect_url"
)

const defaultPasswordLength = 10

// Notifier sends transactional mail after provisioning. Failures are logged,
// never escalated.
type Notifier interface {
	SendWelcomeEmail(toEmail, password string) error
	SendSubscriptionEmail(toEmail, planID string) error
}

// ServiceConfig configures the provisioning service.
type ServiceConfig struct {
	// ConfirmationURL is the frontend confirmation page the redirect URL
	// points at, e.g. https://app.example.com/payment-success
	ConfirmationURL string
	// PasswordLength for generated account passwords; defaults to 10.
	PasswordLength int
	// FixedPassword, when set, is issued to every new account instead of a
	// random one. Legacy behavior, kept behind explicit configuration only.
	FixedPassword string
}

// Service is the webhook event dispatcher and account provisioner.
type Service struct {
	config  ServiceConfig
	repos   *repository.Repositories
	gateway Gateway
	backup  objectstore.Store // nil when the backup store is disabled
	mailer  Notifier          // nil when mail is not configured
}

// NewService wires the provisioning pipeline.
func NewService(config ServiceConfig, repos *repository.Repositories, gateway Gateway, backup objectstore.Store, mailer Notifier) *Service {
	if config.PasswordLength <= 0 {
		config.PasswordLength = defaultPasswordLength
	}
	if config.FixedPassword != "" {
		log.Warnf("[Provisioner] fixed password configured - every new account receives the same password")
	}
	return &Service{
		config:  config,
		repos:   repos,
		gateway: gateway,
		backup:  backup,
		mailer:  mailer,
	}
}

// HandleEvent routes a decoded event to its handler. Unhandled event types are
// no-ops. The returned error is for logging; the webhook endpoint acknowledges
// the delivery either way once dispatch was attempted.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	switch event.Type {
	case EventCheckoutSessionCompleted:
		return s.handleCheckoutSession(ctx, event.CheckoutSession)
	case EventPaymentIntentSucceeded:
		return s.handlePaymentIntent(ctx, event.PaymentIntent)
	case EventSubscriptionCreated:
		return s.handleSubscription(ctx, event.Subscription)
	default:
		log.Infof("[Provisioner] ignoring event type %s", event.Type)
		return nil
	}
}

func (s *Service) handleCheckoutSession(ctx context.Context, payload *CheckoutSessionPayload) error {
	if payload.PaymentStatus != models.PaymentStatusPaid {
		log.Infof("[Provisioner] checkout session %s not paid (status %s), skipping", payload.ID, payload.PaymentStatus)
		return nil
	}

	customer := s.lookupOrSynthesizeCustomer(ctx, payload.Customer, payload.Email(), payload.PayerName())
	if customer.Email == "" {
		return fmt.Errorf("checkout session %s: %w", payload.ID, ErrInvalidCustomer)
	}

	result, err := s.resolveAccount(ctx, customer)
	if err != nil {
		return fmt.Errorf("checkout session %s: %w", payload.ID, err)
	}

	now := time.Now()
	amount := float64(payload.AmountTotal) / 100
	profile := &models.Profile{
		ID:                result.AccountID,
		Email:             customer.Email,
		FullName:          payload.PayerName(),
		StripeCustomerID:  customer.ID,
		SubscriptionID:    payload.Subscription,
		PaymentStatus:     models.PaymentStatusPaid,
		IsSubscribed:      true,
		LastPaymentID:     payload.ID,
		LastPaymentStatus: payload.PaymentStatus,
		LastPaymentAmount: &amount,
		LastPaymentDate:   &now,
	}
	if payload.Subscription != "" {
		profile.SubscriptionStatus = models.SubscriptionStatusActive
	}
	s.persistProfile(ctx, profile)

	if result.IsNewAccount {
		paymentIDs := []string{payload.ID}
		if payload.Subscription != "" {
			paymentIDs = append(paymentIDs, payload.Subscription)
		}
		redirectURL := s.storeCredentials(ctx, paymentIDs, customer.Email, result.IssuedPassword)
		s.writebackMetadata(ctx, customer, result, profile.SubscriptionStatus, redirectURL)
		s.sendWelcome(customer.Email, result.IssuedPassword)
	}

	log.Infof("[Provisioner] checkout session %s provisioned account %s (new=%t)", payload.ID, result.AccountID, result.IsNewAccount)
	return nil
}

func (s *Service) handlePaymentIntent(ctx context.Context, payload *PaymentIntentPayload) error {
	var customer *Customer
	if payload.Customer != "" {
		customer = s.lookupOrSynthesizeCustomer(ctx, payload.Customer, payload.Email(), "")
	} else {
		email := payload.Email()
		if email == "" {
			return fmt.Errorf("payment intent %s: %w", payload.ID, ErrInvalidCustomer)
		}
		// No customer on the intent: create one provider-side so later
		// recovery can find it. Falls back to a local identity on failure.
		created, err := s.gateway.CreateCustomer(ctx, email, "", map[string]string{
			"source":            "payment_intent",
			"payment_intent_id": payload.ID,
		})
		if err != nil {
			log.Warnf("[Provisioner] could not create customer for payment intent %s: %v", payload.ID, err)
			customer = &Customer{Email: email, Metadata: map[string]string{}}
		} else {
			customer = created
		}
	}
	if customer.Email == "" {
		return fmt.Errorf("payment intent %s: %w", payload.ID, ErrInvalidCustomer)
	}

	result, err := s.resolveAccount(ctx, customer)
	if err != nil {
		return fmt.Errorf("payment intent %s: %w", payload.ID, err)
	}

	now := time.Now()
	amount := float64(payload.Amount) / 100
	profile := &models.Profile{
		ID:                result.AccountID,
		Email:             customer.Email,
		StripeCustomerID:  customer.ID,
		PaymentStatus:     models.PaymentStatusPaid,
		IsSubscribed:      true,
		LastPaymentID:     payload.ID,
		LastPaymentStatus: payload.Status,
		LastPaymentAmount: &amount,
		LastPaymentDate:   &now,
	}
	s.persistProfile(ctx, profile)

	if result.IsNewAccount {
		redirectURL := s.storeCredentials(ctx, []string{payload.ID}, customer.Email, result.IssuedPassword)
		s.writebackMetadata(ctx, customer, result, "", redirectURL)
		s.sendWelcome(customer.Email, result.IssuedPassword)
	}

	log.Infof("[Provisioner] payment intent %s provisioned account %s (new=%t)", payload.ID, result.AccountID, result.IsNewAccount)
	return nil
}

func (s *Service) handleSubscription(ctx context.Context, payload *SubscriptionPayload) error {
	if payload.Status != models.SubscriptionStatusActive && payload.Status != models.SubscriptionStatusTrialing {
		log.Infof("[Provisioner] subscription %s in status %s, skipping", payload.ID, payload.Status)
		return nil
	}
	if payload.Customer == "" {
		return fmt.Errorf("subscription %s: %w", payload.ID, ErrInvalidCustomer)
	}

	customer, err := s.gateway.GetCustomer(ctx, payload.Customer)
	if err != nil {
		return fmt.Errorf("subscription %s: %w", payload.ID, err)
	}
	if customer.Email == "" {
		return fmt.Errorf("subscription %s: %w", payload.ID, ErrInvalidCustomer)
	}

	result, err := s.resolveAccount(ctx, customer)
	if err != nil {
		return fmt.Errorf("subscription %s: %w", payload.ID, err)
	}

	profile := &models.Profile{
		ID:                 result.AccountID,
		Email:              customer.Email,
		FullName:           customer.Name,
		StripeCustomerID:   customer.ID,
		SubscriptionStatus: payload.Status,
		SubscriptionID:     payload.ID,
		PlanID:             payload.PlanID(),
		IsSubscribed:       true,
	}
	if payload.CurrentPeriodEnd > 0 {
		periodEnd := time.Unix(payload.CurrentPeriodEnd, 0)
		profile.SubscriptionPeriodEnd = &periodEnd
	}
	s.persistProfile(ctx, profile)

	if result.IsNewAccount {
		redirectURL := s.storeCredentials(ctx, []string{payload.ID}, customer.Email, result.IssuedPassword)
		s.writebackMetadata(ctx, customer, result, payload.Status, redirectURL)
		s.sendWelcome(customer.Email, result.IssuedPassword)
	}
	if s.mailer != nil {
		if err := s.mailer.SendSubscriptionEmail(customer.Email, payload.PlanID()); err != nil {
			log.Warnf("[Provisioner] subscription confirmation mail to %s failed: %v", customer.Email, err)
		}
	}

	log.Infof("[Provisioner] subscription %s provisioned account %s (new=%t)", payload.ID, result.AccountID, result.IsNewAccount)
	return nil
}

// lookupOrSynthesizeCustomer fetches the provider customer when a reference is
// present, falling back to an identity built from the event's embedded email.
func (s *Service) lookupOrSynthesizeCustomer(ctx context.Context, customerID, fallbackEmail, fallbackName string) *Customer {
	if customerID != "" {
		customer, err := s.gateway.GetCustomer(ctx, customerID)
		if err == nil {
			if customer.Email == "" {
				customer.Email = fallbackEmail
			}
			return customer
		}
		log.Warnf("[Provisioner] customer lookup %s failed, using embedded data: %v", customerID, err)
		return &Customer{ID: customerID, Email: fallbackEmail, Name: fallbackName, Metadata: map[string]string{}}
	}
	return &Customer{Email: fallbackEmail, Name: fallbackName, Metadata: map[string]string{}}
}

// resolveAccount maps a customer email to an application account, creating the
// account on first sight. Creation races on the same email are resolved by the
// unique index on accounts.email: a duplicate-key error triggers one re-query.
func (s *Service) resolveAccount(ctx context.Context, customer *Customer) (*ResolveResult, error) {
	if customer == nil || customer.Email == "" {
		return nil, ErrInvalidCustomer
	}

	existing, err := s.repos.Account.GetByEmail(ctx, customer.Email)
	if err == nil {
		return &ResolveResult{AccountID: existing.ID}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("account lookup failed: %w", err)
	}

	password, err := s.newPassword()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccountCreationFailed, err)
	}
	account, err := models.NewAccount(customer.Email, password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccountCreationFailed, err)
	}

	if err := s.repos.Account.Create(ctx, account); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			winner, lookupErr := s.repos.Account.GetByEmail(ctx, customer.Email)
			if lookupErr != nil {
				return nil, fmt.Errorf("%w: duplicate email %s but re-query failed: %v", ErrAccountCreationFailed, customer.Email, lookupErr)
			}
			log.Infof("[Provisioner] lost creation race for %s, reusing account %s", customer.Email, winner.ID)
			return &ResolveResult{AccountID: winner.ID}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrAccountCreationFailed, err)
	}

	return &ResolveResult{AccountID: account.ID, IsNewAccount: true, IssuedPassword: password}, nil
}

func (s *Service) newPassword() (string, error) {
	if s.config.FixedPassword != "" {
		return s.config.FixedPassword, nil
	}
	return models.GeneratePassword(s.config.PasswordLength)
}

// persistProfile upserts the profile, falling back to a defensive schema
// migration plus a raw merge statement. Exhausting both paths is a warning:
// the account exists either way and the profile can be repaired later.
func (s *Service) persistProfile(ctx context.Context, profile *models.Profile) {
	err := s.repos.Profile.Upsert(ctx, profile)
	if err == nil {
		return
	}
	log.Warnf("[Provisioner] profile upsert for %s failed, trying fallback path: %v", profile.ID, err)

	if err := s.repos.Profile.EnsureSchema(ctx); err != nil {
		log.Warnf("[Provisioner] profile schema migration failed: %v", err)
	}
	if err := s.repos.Profile.UpsertRaw(ctx, profile); err != nil {
		log.Warnf("[Provisioner] all profile persistence paths failed for %s: %v", profile.ID, err)
	}
}

// storeCredentials write-throughs the issued credentials under every observed
// payment identifier: an upsert per id into the recovery table plus a
// best-effort JSON backup in object storage. Returns the redirect URL that
// carries the credentials to the confirmation page.
func (s *Service) storeCredentials(ctx context.Context, paymentIDs []string, email, password string) string {
	redirectURL := s.confirmationRedirect(paymentIDs[0], email, password)

	for _, paymentID := range paymentIDs {
		credential := &models.PaymentCredential{
			PaymentID:   paymentID,
			Email:       email,
			Password:    password,
			RedirectURL: redirectURL,
		}
		if err := s.repos.Credential.Upsert(ctx, credential); err != nil {
			log.Warnf("[Provisioner] credential row for %s failed: %v", paymentID, err)
		}

		if s.backup == nil {
			continue
		}
		backup := credentialBackup{
			PaymentID:   paymentID,
			Email:       email,
			Password:    password,
			RedirectURL: redirectURL,
			CreatedAt:   time.Now(),
		}
		data, err := json.Marshal(backup)
		if err != nil {
			log.Warnf("[Provisioner] credential backup marshal for %s failed: %v", paymentID, err)
			continue
		}
		if err := s.backup.UploadJSON(ctx, paymentID+".json", data); err != nil {
			log.Warnf("[Provisioner] credential backup upload for %s failed: %v", paymentID, err)
		}
	}

	return redirectURL
}

func (s *Service) confirmationRedirect(paymentID, email, password string) string {
	if s.config.ConfirmationURL == "" {
		return ""
	}
	query := url.Values{}
	query.Set("payment_id", paymentID)
	query.Set("email", email)
	query.Set("password", password)
	return s.config.ConfirmationURL + "?" + query.Encode()
}

// writebackMetadata stashes the provisioning outcome on the provider-side
// customer. Best-effort: the provider copy is a recovery hint, not a system of
// record.
func (s *Service) writebackMetadata(ctx context.Context, customer *Customer, result *ResolveResult, subscriptionStatus, redirectURL string) {
	if customer.ID == "" {
		return
	}
	metadata := map[string]string{
		metadataKeyUserID: result.AccountID,
	}
	if subscriptionStatus != "" {
		metadata[metadataKeySubscriptionStatus] = subscriptionStatus
	}
	if result.IssuedPassword != "" {
		metadata[metadataKeyPassword] = result.IssuedPassword
	}
	if redirectURL != "" {
		metadata[metadataKeyRedirectURL] = redirectURL
	}
	if err := s.gateway.SetCustomerMetadata(ctx, customer.ID, metadata); err != nil {
		log.Warnf("[Provisioner] metadata writeback for customer %s failed: %v", customer.ID, err)
	}
}

func (s *Service) sendWelcome(email, password string) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.SendWelcomeEmail(email, password); err != nil {
		log.Warnf("[Provisioner] welcome mail to %s failed: %v", email, err)
	}
}
