package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/driverincontrol/checkout/app/models"
	"github.com/driverincontrol/checkout/app/repository"
	"github.com/driverincontrol/checkout/internal/pkg/payments"
)

const webhookHandlerTimeout = 20 * time.Second

// WebhookController receives payment-provider webhook deliveries.
type WebhookController struct {
	verifier *payments.Verifier
	service  *payments.Service
	repos    *repository.Repositories
}

// NewWebhookController wires the webhook endpoint.
func NewWebhookController(verifier *payments.Verifier, service *payments.Service, repos *repository.Repositories) *WebhookController {
	return &WebhookController{
		verifier: verifier,
		service:  service,
		repos:    repos,
	}
}

// HandleWebhook authenticates a delivery, journals it, dispatches it and
// acknowledges with 200 {received:true}. Handler failures after a successful
// dispatch attempt are logged, never surfaced: the payment itself succeeded
// and a retry storm from the provider helps nobody.
func (wc *WebhookController) HandleWebhook(c *fiber.Ctx) error {
	body := c.Body()
	signature := c.Get("stripe-signature")

	event, signatureValid, err := wc.verifier.VerifyAndParse(body, signature)
	if err != nil {
		if errors.Is(err, payments.ErrSignatureInvalid) {
			log.Warnf("[Webhook] rejected delivery with invalid signature from %s: %v", c.IP(), err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid signature"})
		}
		log.Warnf("[Webhook] rejected malformed delivery from %s: %v", c.IP(), err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), webhookHandlerTimeout)
	defer cancel()

	// Journal the delivery. Duplicate deliveries of an already processed
	// event are acknowledged without reprocessing.
	var journalID uint
	if event.ID != "" {
		record := &models.WebhookEvent{
			Provider:        "stripe",
			ProviderEventID: event.ID,
			EventType:       event.Type,
			PayloadJSON:     string(body),
			SignatureValid:  signatureValid,
		}
		created, stored, jerr := wc.repos.WebhookEvent.CreateIfNotExists(ctx, record)
		if jerr != nil {
			log.Warnf("[Webhook] journaling event %s failed: %v", event.ID, jerr)
		} else {
			if !created && stored.ProcessedAt != nil {
				log.Infof("[Webhook] duplicate delivery of %s, already processed", event.ID)
				return c.JSON(fiber.Map{"received": true})
			}
			if created {
				journalID = record.ID
			} else {
				journalID = stored.ID
			}
		}
	}

	handlerErr := wc.service.HandleEvent(ctx, event)
	if handlerErr != nil {
		log.Errorf("[Webhook] handler for %s event %s failed: %v", event.Type, event.ID, handlerErr)
	}

	if journalID != 0 {
		errMsg := ""
		if handlerErr != nil {
			errMsg = handlerErr.Error()
		}
		if err := wc.repos.WebhookEvent.MarkProcessed(ctx, journalID, errMsg); err != nil {
			log.Warnf("[Webhook] marking event %s processed failed: %v", event.ID, err)
		}
	}

	return c.JSON(fiber.Map{"received": true})
}
