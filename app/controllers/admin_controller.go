package controllers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/driverincontrol/checkout/app/models"
	"github.com/driverincontrol/checkout/app/repository"
)

const adminDefaultPageSize = 50

// AdminController exposes account administration behind the API-key middleware.
type AdminController struct {
	repos *repository.Repositories
}

// NewAdminController wires the admin endpoints.
func NewAdminController(repos *repository.Repositories) *AdminController {
	return &AdminController{repos: repos}
}

// HandleListAccounts returns a paginated account listing.
func (ac *AdminController) HandleListAccounts(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.Query("limit", strconv.Itoa(adminDefaultPageSize)))
	if limit < 1 || limit > 200 {
		limit = adminDefaultPageSize
	}
	offset := (page - 1) * limit

	accounts, err := ac.repos.Account.List(c.Context(), offset, limit)
	if err != nil {
		log.Errorf("[Admin] account listing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list accounts"})
	}
	total, err := ac.repos.Account.Count(c.Context())
	if err != nil {
		log.Errorf("[Admin] account count failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to count accounts"})
	}

	items := make([]fiber.Map, 0, len(accounts))
	for _, account := range accounts {
		items = append(items, adminAccountView(&account))
	}

	return c.JSON(fiber.Map{
		"accounts": items,
		"total":    total,
		"page":     page,
		"limit":    limit,
	})
}

// HandleGetAccount returns one account with its profile.
func (ac *AdminController) HandleGetAccount(c *fiber.Ctx) error {
	id := c.Params("id")

	account, err := ac.repos.Account.GetByID(c.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "account not found"})
		}
		log.Errorf("[Admin] account lookup %s failed: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load account"})
	}

	view := adminAccountView(account)
	if profile, err := ac.repos.Profile.GetByID(c.Context(), id); err == nil {
		view["profile"] = profile
	}

	return c.JSON(view)
}

// HandleDeleteAccount removes an account and its profile.
func (ac *AdminController) HandleDeleteAccount(c *fiber.Ctx) error {
	id := c.Params("id")

	if _, err := ac.repos.Account.GetByID(c.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "account not found"})
		}
		log.Errorf("[Admin] account lookup %s failed: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load account"})
	}

	if err := ac.repos.Account.Delete(c.Context(), id); err != nil {
		log.Errorf("[Admin] account deletion %s failed: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete account"})
	}

	log.Infof("[Admin] account %s deleted", id)
	return c.JSON(fiber.Map{"deleted": true})
}

func adminAccountView(account *models.Account) fiber.Map {
	return fiber.Map{
		"id":              account.ID,
		"email":           account.Email,
		"email_confirmed": account.EmailConfirmed,
		"created_at":      account.CreatedAt.UTC().Format(time.RFC3339),
	}
}
