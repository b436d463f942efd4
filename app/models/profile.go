package models

import "time"

const (
	PaymentStatusPaid      = "paid"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusUnpaid    = "unpaid"
)

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusCanceled = "canceled"
	SubscriptionStatusPastDue  = "past_due"
)

// Profile is the durable business record attached 1:1 to an Account, keyed by
// the account id. It is created or merged on every processed payment event.
type Profile struct {
	ID                    string     `gorm:"type:char(36);primaryKey" json:"id"`
	Email                 string     `gorm:"type:varchar(200);not null;index" json:"email"`
	FullName              string     `gorm:"type:varchar(200)" json:"full_name"`
	StripeCustomerID      string     `gorm:"type:varchar(191);index" json:"stripe_customer_id"`
	SubscriptionStatus    string     `gorm:"type:varchar(32)" json:"subscription_status"`
	SubscriptionID        string     `gorm:"type:varchar(191)" json:"subscription_id"`
	PlanID                string     `gorm:"type:varchar(191)" json:"plan_id"`
	PaymentStatus         string     `gorm:"type:varchar(32)" json:"payment_status"`
	SubscriptionPeriodEnd *time.Time `gorm:"type:timestamp;default:null" json:"subscription_period_end,omitempty"`
	LastPaymentID         string     `gorm:"type:varchar(191)" json:"last_payment_id"`
	LastPaymentStatus     string     `gorm:"type:varchar(32)" json:"last_payment_status"`
	LastPaymentAmount     *float64   `gorm:"type:decimal(10,2);default:null" json:"last_payment_amount,omitempty"`
	LastPaymentDate       *time.Time `gorm:"type:timestamp;default:null" json:"last_payment_date,omitempty"`
	IsSubscribed          bool       `gorm:"default:false" json:"is_subscribed"`
	CreatedAt             time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
