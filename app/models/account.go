package models

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Account is the authentication identity provisioned by the payment pipeline.
// Emails are stored with a binary collation so lookups are case-sensitive and
// the unique index enforces at most one account per exact email.
type Account struct {
	ID             string    `gorm:"type:char(36);primaryKey" json:"id"`
	Email          string    `gorm:"uniqueIndex;type:varchar(200) CHARACTER SET utf8 COLLATE utf8_bin" json:"email" validate:"required,email,min=5,max=200"`
	PasswordHash   string    `gorm:"type:text" json:"-" validate:"required"`
	EmailConfirmed bool      `gorm:"default:false" json:"email_confirmed"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a *Account) Validate() error {
	v := validator.New()

	return v.Struct(a)
}

// NewAccount builds an account with a generated id and a bcrypt hash of the
// given plaintext password. Accounts created by the webhook pipeline are
// email-confirmed from the start: the payment provider already verified the
// address during checkout.
func NewAccount(email, password string) (*Account, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	a := &Account{
		ID:             uuid.NewString(),
		Email:          email,
		PasswordHash:   hash,
		EmailConfirmed: true,
	}

	if err := a.Validate(); err != nil {
		return nil, err
	}

	return a, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))

	return err == nil
}

const passwordAlphabet = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GeneratePassword returns a random alphanumeric password of the given
// length (minimum 8). Ambiguous characters are excluded because issued
// passwords are shown to users on the confirmation page.
func GeneratePassword(length int) (string, error) {
	if length < 8 {
		length = 8
	}

	out := make([]byte, length)
	max := big.NewInt(int64(len(passwordAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = passwordAlphabet[n.Int64()]
	}
	return string(out), nil
}
