package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/driverincontrol/checkout/app/models"
)

func TestMergeAssignmentsOnlySetFields(t *testing.T) {
	amount := 49.99
	now := time.Now()
	profile := &models.Profile{
		ID:                "acc-1",
		Email:             "driver@example.com",
		PaymentStatus:     models.PaymentStatusPaid,
		IsSubscribed:      true,
		LastPaymentAmount: &amount,
		LastPaymentDate:   &now,
	}

	assignments := mergeAssignments(profile)

	assert.Equal(t, "driver@example.com", assignments["email"])
	assert.Equal(t, models.PaymentStatusPaid, assignments["payment_status"])
	assert.Equal(t, true, assignments["is_subscribed"])
	assert.Equal(t, &amount, assignments["last_payment_amount"])
	assert.Contains(t, assignments, "updated_at")

	// unset fields must not appear, otherwise the upsert would null them out
	assert.NotContains(t, assignments, "full_name")
	assert.NotContains(t, assignments, "stripe_customer_id")
	assert.NotContains(t, assignments, "subscription_status")
	assert.NotContains(t, assignments, "subscription_id")
	assert.NotContains(t, assignments, "plan_id")
	assert.NotContains(t, assignments, "subscription_period_end")
}

func TestMergeAssignmentsNeverUnsubscribes(t *testing.T) {
	assignments := mergeAssignments(&models.Profile{ID: "acc-1", Email: "driver@example.com"})
	assert.NotContains(t, assignments, "is_subscribed")
}

func TestMergeAssignmentsEmptyProfile(t *testing.T) {
	assignments := mergeAssignments(&models.Profile{ID: "acc-1"})
	// only the timestamp refresh remains
	assert.Len(t, assignments, 1)
	assert.Contains(t, assignments, "updated_at")
}
