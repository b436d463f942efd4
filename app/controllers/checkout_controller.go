package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/driverincontrol/checkout/internal/pkg/payments"
)

const checkoutTimeout = 15 * time.Second

// CheckoutController creates hosted checkout sessions for the frontend.
type CheckoutController struct {
	gateway payments.Gateway
}

// NewCheckoutController wires the checkout-session endpoint.
func NewCheckoutController(gateway payments.Gateway) *CheckoutController {
	return &CheckoutController{gateway: gateway}
}

type createSessionRequest struct {
	PriceID    string `json:"price_id"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

// HandleCreateSession creates a checkout session and returns the redirect URL.
func (cc *CheckoutController) HandleCreateSession(c *fiber.Ctx) error {
	var req createSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.PriceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "price_id is required"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), checkoutTimeout)
	defer cancel()

	result, err := cc.gateway.CreateCheckoutSession(ctx, payments.CheckoutSessionRequest{
		PriceID:    req.PriceID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		log.Errorf("[Checkout] session creation failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create checkout session"})
	}

	return c.JSON(fiber.Map{
		"sessionId": result.SessionID,
		"url":       result.URL,
	})
}
