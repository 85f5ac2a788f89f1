package controller

import (
	"trip-pivot-be/internal/dto"
	"trip-pivot-be/internal/pkg/serverutils"
	"trip-pivot-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IPivotController interface {
	RegisterRoutes(r fiber.Router)
	Evaluate(ctx *fiber.Ctx) error
	Act(ctx *fiber.Ctx) error
}

type pivotController struct {
	service service.IPivotService
}

func NewPivotController(service service.IPivotService) IPivotController {
	return &pivotController{service: service}
}

func (c *pivotController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/pivot")
	h.Use(serverutils.JwtMiddleware)
	h.Post("/evaluate", c.Evaluate)
	h.Post("/:id/action", c.Act)
}

func (c *pivotController) Evaluate(ctx *fiber.Ctx) error {
	memberId, err := serverutils.MemberID(ctx)
	if err != nil {
		return err
	}

	var req dto.EvaluateRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Evaluate(ctx.Context(), memberId, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Trigger evaluated", res))
}

func (c *pivotController) Act(ctx *fiber.Ctx) error {
	memberId, err := serverutils.MemberID(ctx)
	if err != nil {
		return err
	}
	pivotId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid pivot id")
	}

	var req dto.ActionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Act(ctx.Context(), memberId, pivotId, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Member action recorded", res))
}
