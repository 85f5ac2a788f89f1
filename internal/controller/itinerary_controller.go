package controller

import (
	"trip-pivot-be/internal/pkg/serverutils"
	"trip-pivot-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IItineraryController interface {
	RegisterRoutes(r fiber.Router)
	ListSlots(ctx *fiber.Ctx) error
	ListPivots(ctx *fiber.Ctx) error
	RebuildFallbacks(ctx *fiber.Ctx) error
}

type itineraryController struct {
	itineraries service.IItineraryService
	pivots      service.IPivotService
}

func NewItineraryController(itineraries service.IItineraryService, pivots service.IPivotService) IItineraryController {
	return &itineraryController{
		itineraries: itineraries,
		pivots:      pivots,
	}
}

func (c *itineraryController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/itineraries")
	h.Use(serverutils.JwtMiddleware)
	h.Get("/:id/slots", c.ListSlots)
	h.Get("/:id/pivots", c.ListPivots)
	h.Post("/:id/fallbacks/rebuild", c.RebuildFallbacks)
}

func itineraryID(ctx *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "Invalid itinerary id")
	}
	return id, nil
}

func (c *itineraryController) ListSlots(ctx *fiber.Ctx) error {
	id, err := itineraryID(ctx)
	if err != nil {
		return err
	}

	res, err := c.itineraries.ListSlots(ctx.Context(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get slots", res))
}

func (c *itineraryController) ListPivots(ctx *fiber.Ctx) error {
	id, err := itineraryID(ctx)
	if err != nil {
		return err
	}

	res, err := c.pivots.ListPivots(ctx.Context(), id, ctx.QueryInt("limit", 50))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get pivots", res))
}

func (c *itineraryController) RebuildFallbacks(ctx *fiber.Ctx) error {
	id, err := itineraryID(ctx)
	if err != nil {
		return err
	}

	res, err := c.itineraries.RebuildFallbacks(ctx.Context(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Fallbacks rebuilt", res))
}
