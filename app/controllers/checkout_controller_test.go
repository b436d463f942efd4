package controllers

import (
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func newCheckoutTestApp(t *testing.T) *fiber.App {
	t.Helper()
	app := fiber.New()
	controller := NewCheckoutController(newMemGateway())
	app.Post("/api/v1/checkout/sessions", controller.HandleCreateSession)
	return app
}

func TestCreateSession(t *testing.T) {
	app := newCheckoutTestApp(t)

	status, body := doRequest(t, app, "POST", "/api/v1/checkout/sessions", `{"price_id": "price_99"}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "cs_test_1", body["sessionId"])
	assert.Equal(t, "https://pay.example.com/cs_test_1", body["url"])
}

func TestCreateSessionRequiresPriceID(t *testing.T) {
	app := newCheckoutTestApp(t)

	status, _ := doRequest(t, app, "POST", "/api/v1/checkout/sessions", `{}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = doRequest(t, app, "POST", "/api/v1/checkout/sessions", `not json`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestCreateSessionGatewayFailure(t *testing.T) {
	app := newCheckoutTestApp(t)

	status, body := doRequest(t, app, "POST", "/api/v1/checkout/sessions", `{"price_id": "fail"}`)
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.NotEmpty(t, body["error"])
}
