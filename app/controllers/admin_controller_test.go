package controllers

import (
	"context"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driverincontrol/checkout/app/models"
	"github.com/driverincontrol/checkout/app/repository"
)

func newAdminTestApp(t *testing.T) (*fiber.App, *repository.Repositories) {
	t.Helper()
	repos := newMemRepositories()
	controller := NewAdminController(repos)

	app := fiber.New()
	app.Get("/api/v1/admin/accounts", controller.HandleListAccounts)
	app.Get("/api/v1/admin/accounts/:id", controller.HandleGetAccount)
	app.Delete("/api/v1/admin/accounts/:id", controller.HandleDeleteAccount)
	return app, repos
}

func TestAdminListAccounts(t *testing.T) {
	app, repos := newAdminTestApp(t)
	account, err := models.NewAccount("driver@example.com", "secret-pass")
	require.NoError(t, err)
	require.NoError(t, repos.Account.Create(context.Background(), account))

	status, body := doRequest(t, app, "GET", "/api/v1/admin/accounts", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(1), body["total"])

	accounts, ok := body["accounts"].([]any)
	require.True(t, ok)
	require.Len(t, accounts, 1)
	first := accounts[0].(map[string]any)
	assert.Equal(t, "driver@example.com", first["email"])
	// password hashes must never leave the admin API
	_, leaked := first["password_hash"]
	assert.False(t, leaked)
}

func TestAdminGetAndDeleteAccount(t *testing.T) {
	app, repos := newAdminTestApp(t)
	account, err := models.NewAccount("driver@example.com", "secret-pass")
	require.NoError(t, err)
	require.NoError(t, repos.Account.Create(context.Background(), account))

	status, body := doRequest(t, app, "GET", "/api/v1/admin/accounts/"+account.ID, "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, account.ID, body["id"])

	status, body = doRequest(t, app, "DELETE", "/api/v1/admin/accounts/"+account.ID, "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["deleted"])

	status, _ = doRequest(t, app, "GET", "/api/v1/admin/accounts/"+account.ID, "")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestAdminAccountNotFound(t *testing.T) {
	app, _ := newAdminTestApp(t)

	status, _ := doRequest(t, app, "GET", "/api/v1/admin/accounts/missing-id", "")
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = doRequest(t, app, "DELETE", "/api/v1/admin/accounts/missing-id", "")
	assert.Equal(t, fiber.StatusNotFound, status)
}
