package repository

import (
	"context"
	"strings"

	"github.com/driverincontrol/checkout/app/models"
	"gorm.io/gorm"
)

// accountRepository implements the AccountRepository interface
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new account repository instance
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

// Create inserts a new account. The unique index on email makes this the
// atomic create-if-absent primitive: a concurrent duplicate surfaces as
// gorm.ErrDuplicatedKey for the caller to recover from.
func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

// GetByID retrieves an account by its id
func (r *accountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetByEmail retrieves an account by exact email. The column uses a binary
// collation, so the match is case-sensitive.
func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if strings.TrimSpace(email) == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var account models.Account
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// List returns accounts with pagination, newest first
func (r *accountRepository) List(ctx context.Context, offset, limit int) ([]models.Account, error) {
	var accounts []models.Account
	err := r.db.WithContext(ctx).Order("created_at DESC").Offset(offset).Limit(limit).Find(&accounts).Error
	return accounts, err
}

// Count returns the total number of accounts
func (r *accountRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Account{}).Count(&count).Error
	return count, err
}

// Delete removes an account and its profile. Used by the admin surface only;
// the payment pipeline never deletes accounts.
func (r *accountRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Delete(&models.Profile{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Account{}).Error
	})
}
