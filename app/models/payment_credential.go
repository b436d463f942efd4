package models

import "time"

// PaymentCredential caches login credentials issued during provisioning,
// keyed by any payment identifier that can later reappear in a redirect URL
// (checkout-session id, payment-intent id or subscription id). The recovery
// endpoint reads these when the redirect handoff loses its query parameters.
type PaymentCredential struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	PaymentID      string     `gorm:"type:varchar(191);uniqueIndex;not null" json:"payment_id"`
	Email          string     `gorm:"type:varchar(200);not null;index" json:"email"`
	Password       string     `gorm:"type:varchar(100)" json:"password"`
	RedirectURL    string     `gorm:"type:text" json:"redirect_url"`
	CreatedAt      time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	RetrievedAt    *time.Time `gorm:"type:timestamp;default:null" json:"retrieved_at,omitempty"`
	RetrievalCount int        `gorm:"default:0" json:"retrieval_count"`
}
