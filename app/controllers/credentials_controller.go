package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/driverincontrol/checkout/internal/pkg/cache"
	"github.com/driverincontrol/checkout/internal/pkg/payments"
)

const (
	recoveryTimeout  = 15 * time.Second
	recoveryCacheTTL = 15 * time.Minute
)

// CredentialsController serves the credential recovery endpoint. The
// confirmation page polls it when its redirect URL arrived without the
// credential query parameters.
type CredentialsController struct {
	recoverer    *payments.Recoverer
	cacheEnabled bool
	cacheGet     func(key string) (string, error)
	cacheSet     func(key string, value interface{}, expiration time.Duration) error
}

// NewCredentialsController wires the recovery endpoint. cacheEnabled toggles
// the redis result cache.
func NewCredentialsController(recoverer *payments.Recoverer, cacheEnabled bool) *CredentialsController {
	return &CredentialsController{
		recoverer:    recoverer,
		cacheEnabled: cacheEnabled,
		cacheGet:     cache.Get,
		cacheSet:     cache.Set,
	}
}

type recoverRequest struct {
	PaymentID string `json:"payment_id"`
}

type cachedRecovery struct {
	Result payments.RecoveryResult `json:"result"`
	Source string                  `json:"source"`
}

// HandleRecover recovers issued credentials by payment id. Accepts the id as a
// query parameter (GET) or a JSON body field (POST).
func (cc *CredentialsController) HandleRecover(c *fiber.Ctx) error {
	paymentID := c.Query("payment_id")
	if paymentID == "" && len(c.Body()) > 0 {
		var req recoverRequest
		if err := c.BodyParser(&req); err == nil {
			paymentID = req.PaymentID
		}
	}
	if paymentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "payment_id is required",
		})
	}

	if cached, ok := cc.fromCache(paymentID); ok {
		return c.JSON(recoveryResponse(&cached.Result, cached.Source))
	}

	ctx, cancel := context.WithTimeout(c.Context(), recoveryTimeout)
	defer cancel()

	result, err := cc.recoverer.Recover(ctx, paymentID)
	if err != nil {
		if errors.Is(err, payments.ErrNotRecovered) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "no credentials found for this payment",
			})
		}
		log.Errorf("[Credentials] recovery for %s failed: %v", paymentID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "credential recovery failed",
		})
	}

	cc.toCache(paymentID, result)

	return c.JSON(recoveryResponse(result, result.Source))
}

func recoveryResponse(result *payments.RecoveryResult, source string) fiber.Map {
	return fiber.Map{
		"success": true,
		"data":    result,
		"source":  source,
	}
}

func recoveryCacheKey(paymentID string) string {
	return fmt.Sprintf("credential_recovery:%s", paymentID)
}

func (cc *CredentialsController) fromCache(paymentID string) (*cachedRecovery, bool) {
	if !cc.cacheEnabled {
		return nil, false
	}
	raw, err := cc.cacheGet(recoveryCacheKey(paymentID))
	if err != nil {
		return nil, false
	}
	var cached cachedRecovery
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return nil, false
	}
	return &cached, true
}

func (cc *CredentialsController) toCache(paymentID string, result *payments.RecoveryResult) {
	if !cc.cacheEnabled {
		return
	}
	// A partial hit turns into a full one once the webhook finishes
	// provisioning, so it must stay uncached: a pinned partial would keep the
	// confirmation page from ever seeing the issued password.
	if result.Source == payments.SourceStripePartial {
		return
	}
	data, err := json.Marshal(cachedRecovery{Result: *result, Source: result.Source})
	if err != nil {
		return
	}
	if err := cc.cacheSet(recoveryCacheKey(paymentID), string(data), recoveryCacheTTL); err != nil {
		log.Warnf("[Credentials] caching recovery for %s failed: %v", paymentID, err)
	}
}
