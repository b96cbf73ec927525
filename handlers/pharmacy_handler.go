package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/pharmaproche/pharmacie-backend/models"
)

// PharmacySearcher is the search pipeline surface the handler needs.
type PharmacySearcher interface {
	Search(ctx context.Context, lat, lon, radiusKm float64, onlyGuard, openNow bool) []*models.Pharmacy
}

type PharmacyHandler struct {
	Service PharmacySearcher
}

func NewPharmacyHandler(service PharmacySearcher) *PharmacyHandler {
	return &PharmacyHandler{Service: service}
}

// SearchPharmacies handles GET /api/pharmacies/search. The pipeline
// itself never fails; only unparseable coordinates produce a 400.
func (h *PharmacyHandler) SearchPharmacies(c *fiber.Ctx) error {
	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lon, lonErr := strconv.ParseFloat(c.Query("lon"), 64)
	if latErr != nil || lonErr != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "lat and lon query parameters are required",
		})
	}

	radius, err := strconv.ParseFloat(c.Query("radius", "5"), 64)
	if err != nil || radius <= 0 {
		radius = 5
	}

	onlyGuard := c.QueryBool("guard", false)
	openNow := c.QueryBool("open_now", false)

	pharmacies := h.Service.Search(c.Context(), lat, lon, radius, onlyGuard, openNow)

	return c.JSON(fiber.Map{
		"success": true,
		"count":   len(pharmacies),
		"data":    pharmacies,
	})
}
