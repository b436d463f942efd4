package repository

import (
	"context"
	"time"

	"github.com/driverincontrol/checkout/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// credentialRepository implements the CredentialRepository interface
type credentialRepository struct {
	db *gorm.DB
}

// NewCredentialRepository creates a new credential repository instance
func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

// Upsert writes a recovery record keyed by payment id. Re-provisioning the
// same payment (a retried delivery) refreshes the stored credentials but
// keeps the retrieval counters.
func (r *credentialRepository) Upsert(ctx context.Context, cred *models.PaymentCredential) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "payment_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"email",
			"password",
			"redirect_url",
		}),
	}).Create(cred).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.WithContext(ctx).Where("payment_id = ?", cred.PaymentID).First(cred).Error
}

// GetByPaymentID retrieves a recovery record by payment id
func (r *credentialRepository) GetByPaymentID(ctx context.Context, paymentID string) (*models.PaymentCredential, error) {
	var cred models.PaymentCredential
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&cred).Error
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// RecordRetrieval bumps the retrieval counter and timestamp for a record that
// was just served to the confirmation page.
func (r *credentialRepository) RecordRetrieval(ctx context.Context, paymentID string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.PaymentCredential{}).
		Where("payment_id = ?", paymentID).
		Updates(map[string]interface{}{
			"retrieval_count": gorm.Expr("retrieval_count + 1"),
			"retrieved_at":    &now,
		}).Error
}
