package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/pharmaproche/pharmacie-backend/models"
)

// TrendsProvider is the trends surface the handlers need.
type TrendsProvider interface {
	ComputeTrends(ctx context.Context, limit int) (*models.TrendsPayload, bool, error)
	PharmaNews(ctx context.Context) (*models.NewsPayload, bool, error)
}

type TrendsHandler struct {
	Service TrendsProvider
}

func NewTrendsHandler(service TrendsProvider) *TrendsHandler {
	return &TrendsHandler{Service: service}
}

// GetMedicamentTrends handles GET /api/trends/meds?limit=N. The limit is
// clamped to [1, 100] with a default of 20. Cache hits carry
// note: "from cache".
func (h *TrendsHandler) GetMedicamentTrends(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}

	payload, fromCache, err := h.Service.ComputeTrends(c.Context(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if fromCache {
		payload.Note = "from cache"
	}
	return c.JSON(payload)
}

// GetPharmaNews handles GET /api/news/pharma.
func (h *TrendsHandler) GetPharmaNews(c *fiber.Ctx) error {
	payload, fromCache, err := h.Service.PharmaNews(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if fromCache {
		payload.Note = "from cache"
	}
	return c.JSON(payload)
}
