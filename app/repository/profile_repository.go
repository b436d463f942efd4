package repository

import (
	"context"

	"github.com/driverincontrol/checkout/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// profileRepository implements the ProfileRepository interface
type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new profile repository instance
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

// Upsert creates or merges a profile keyed by account id. Only fields that are
// set on the incoming profile appear in the conflict update, so a second write
// that omits a field never clears what an earlier write stored.
func (r *profileRepository) Upsert(ctx context.Context, profile *models.Profile) error {
	assignments := mergeAssignments(profile)

	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(profile).Error; err != nil {
		return err
	}

	// Ensure timestamps and merged fields are populated after upsert.
	return r.db.WithContext(ctx).Where("id = ?", profile.ID).First(profile).Error
}

// UpsertRaw is the alternate write path used when the clause-based upsert
// fails (missing table recreated via EnsureSchema, partially migrated
// columns). It expresses the same merge law directly in SQL.
func (r *profileRepository) UpsertRaw(ctx context.Context, profile *models.Profile) error {
	const stmt = `
		INSERT INTO profiles (
			id, email, full_name, stripe_customer_id, subscription_status,
			subscription_id, plan_id, payment_status, subscription_period_end,
			last_payment_id, last_payment_status, last_payment_amount,
			last_payment_date, is_subscribed, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE
			email = COALESCE(NULLIF(VALUES(email), ''), email),
			full_name = COALESCE(NULLIF(VALUES(full_name), ''), full_name),
			stripe_customer_id = COALESCE(NULLIF(VALUES(stripe_customer_id), ''), stripe_customer_id),
			subscription_status = COALESCE(NULLIF(VALUES(subscription_status), ''), subscription_status),
			subscription_id = COALESCE(NULLIF(VALUES(subscription_id), ''), subscription_id),
			plan_id = COALESCE(NULLIF(VALUES(plan_id), ''), plan_id),
			payment_status = COALESCE(NULLIF(VALUES(payment_status), ''), payment_status),
			subscription_period_end = COALESCE(VALUES(subscription_period_end), subscription_period_end),
			last_payment_id = COALESCE(NULLIF(VALUES(last_payment_id), ''), last_payment_id),
			last_payment_status = COALESCE(NULLIF(VALUES(last_payment_status), ''), last_payment_status),
			last_payment_amount = COALESCE(VALUES(last_payment_amount), last_payment_amount),
			last_payment_date = COALESCE(VALUES(last_payment_date), last_payment_date),
			is_subscribed = is_subscribed OR VALUES(is_subscribed),
			updated_at = NOW()`

	return r.db.WithContext(ctx).Exec(stmt,
		profile.ID,
		profile.Email,
		profile.FullName,
		profile.StripeCustomerID,
		profile.SubscriptionStatus,
		profile.SubscriptionID,
		profile.PlanID,
		profile.PaymentStatus,
		profile.SubscriptionPeriodEnd,
		profile.LastPaymentID,
		profile.LastPaymentStatus,
		profile.LastPaymentAmount,
		profile.LastPaymentDate,
		profile.IsSubscribed,
	).Error
}

// EnsureSchema creates the profiles table and any missing columns. The table
// historically appeared after first deploy, so the pipeline must survive it
// not existing yet.
func (r *profileRepository) EnsureSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&models.Profile{})
}

// GetByID retrieves a profile by account id
func (r *profileRepository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetByStripeCustomerID retrieves a profile by provider customer id
func (r *profileRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// mergeAssignments builds the conflict update set from the fields actually
// carried by the incoming profile. is_subscribed only ever flips to true here;
// unsubscribing is not a concern of the provisioning pipeline.
func mergeAssignments(p *models.Profile) map[string]interface{} {
	assignments := map[string]interface{}{
		"updated_at": gorm.Expr("NOW()"),
	}
	if p.Email != "" {
		assignments["email"] = p.Email
	}
	if p.FullName != "" {
		assignments["full_name"] = p.FullName
	}
	if p.StripeCustomerID != "" {
		assignments["stripe_customer_id"] = p.StripeCustomerID
	}
	if p.SubscriptionStatus != "" {
		assignments["subscription_status"] = p.SubscriptionStatus
	}
	if p.SubscriptionID != "" {
		assignments["subscription_id"] = p.SubscriptionID
	}
	if p.PlanID != "" {
		assignments["plan_id"] = p.PlanID
	}
	if p.PaymentStatus != "" {
		assignments["payment_status"] = p.PaymentStatus
	}
	if p.SubscriptionPeriodEnd != nil {
		assignments["subscription_period_end"] = p.SubscriptionPeriodEnd
	}
	if p.LastPaymentID != "" {
		assignments["last_payment_id"] = p.LastPaymentID
	}
	if p.LastPaymentStatus != "" {
		assignments["last_payment_status"] = p.LastPaymentStatus
	}
	if p.LastPaymentAmount != nil {
		assignments["last_payment_amount"] = p.LastPaymentAmount
	}
	if p.LastPaymentDate != nil {
		assignments["last_payment_date"] = p.LastPaymentDate
	}
	if p.IsSubscribed {
		assignments["is_subscribed"] = true
	}
	return assignments
}
