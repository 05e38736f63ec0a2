package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/acme/lead-contact-engine/internal/domain"
)

type listReengagementResponse struct {
	Rules []domain.ReengagementRule `json:"rules"`
}

type listDialingResponse struct {
	Rules []domain.DialingRule `json:"rules"`
}

type listPriorizationResponse struct {
	Rules []domain.PriorizationRule `json:"rules"`
}

type redialIntervalRequest struct {
	IntervalMinutes int `json:"intervalMinutes"`
	MaxAttempts     int `json:"maxAttempts"`
}

type factorWeightRequest struct {
	Weight int `json:"weight"`
}

func (h *HandlerSet) createReengagement(ctx *fiber.Ctx) error {
	var req domain.ReengagementRule
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	rule, err := h.rules.AddReengagement(ctx.UserContext(), req)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusCreated).JSON(rule)
}

func (h *HandlerSet) listReengagement(ctx *fiber.Ctx) error {
	return ctx.Status(http.StatusOK).JSON(listReengagementResponse{Rules: h.rules.ListReengagement()})
}

func (h *HandlerSet) getReengagement(ctx *fiber.Ctx) error {
	rule, err := h.rules.GetReengagement(ctx.Params("id"))
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(rule)
}

func (h *HandlerSet) updateReengagement(ctx *fiber.Ctx) error {
	var req domain.ReengagementRule
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	req.ID = ctx.Params("id")
	rule, err := h.rules.UpdateReengagement(ctx.UserContext(), req)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(rule)
}

func (h *HandlerSet) deleteReengagement(ctx *fiber.Ctx) error {
	if err := h.rules.DeleteReengagement(ctx.UserContext(), ctx.Params("id")); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) toggleReengagement(ctx *fiber.Ctx) error {
	rule, err := h.rules.ToggleReengagement(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(rule)
}

func (h *HandlerSet) createDialing(ctx *fiber.Ctx) error {
	var req domain.DialingRule
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	rule, err := h.rules.AddDialingRule(ctx.UserContext(), req)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusCreated).JSON(rule)
}

func (h *HandlerSet) listDialing(ctx *fiber.Ctx) error {
	return ctx.Status(http.StatusOK).JSON(listDialingResponse{Rules: h.rules.ListDialingRules()})
}

func (h *HandlerSet) getDialing(ctx *fiber.Ctx) error {
	rule, err := h.rules.GetDialingRule(ctx.Params("id"))
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(rule)
}

func (h *HandlerSet) updateDialing(ctx *fiber.Ctx) error {
	var req domain.DialingRule
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	req.ID = ctx.Params("id")
	rule, err := h.rules.UpdateDialingRule(ctx.UserContext(), req)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(rule)
}

func (h *HandlerSet) deleteDialing(ctx *fiber.Ctx) error {
	if err := h.rules.DeleteDialingRule(ctx.UserContext(), ctx.Params("id")); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) toggleDialing(ctx *fiber.Ctx) error {
	rule, err := h.rules.ToggleDialingRule(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(rule)
}

func (h *HandlerSet) setRedialInterval(ctx *fiber.Ctx) error {
	ft := domain.FailureType(ctx.Params("failureType"))
	if !ft.Valid() {
		return fiber.NewError(http.StatusBadRequest, "unknown failure type")
	}
	var req redialIntervalRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	rule, err := h.rules.SetRedialInterval(ctx.UserContext(), ctx.Params("id"), domain.RedialInterval{
		FailureType:     ft,
		IntervalMinutes: req.IntervalMinutes,
		MaxAttempts:     req.MaxAttempts,
	})
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(rule)
}

func (h *HandlerSet) removeRedialInterval(ctx *fiber.Ctx) error {
	rule, err := h.rules.RemoveRedialInterval(ctx.UserContext(), ctx.Params("id"), domain.FailureType(ctx.Params("failureType")))
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(rule)
}

func (h *HandlerSet) createPriorization(ctx *fiber.Ctx) error {
	var req domain.PriorizationRule
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	rule, err := h.rules.AddPriorizationRule(ctx.UserContext(), req)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusCreated).JSON(rule)
}

func (h *HandlerSet) listPriorization(ctx *fiber.Ctx) error {
	return ctx.Status(http.StatusOK).JSON(listPriorizationResponse{Rules: h.rules.ListPriorizationRules()})
}

func (h *HandlerSet) getPriorization(ctx *fiber.Ctx) error {
	rule, err := h.rules.GetPriorizationRule(ctx.Params("id"))
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(rule)
}

func (h *HandlerSet) updatePriorization(ctx *fiber.Ctx) error {
	var req domain.PriorizationRule
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	req.ID = ctx.Params("id")
	rule, err := h.rules.UpdatePriorizationRule(ctx.UserContext(), req)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(rule)
}

func (h *HandlerSet) deletePriorization(ctx *fiber.Ctx) error {
	if err := h.rules.DeletePriorizationRule(ctx.UserContext(), ctx.Params("id")); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) togglePriorization(ctx *fiber.Ctx) error {
	rule, err := h.rules.TogglePriorizationRule(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(rule)
}

func (h *HandlerSet) addFactor(ctx *fiber.Ctx) error {
	var req domain.Factor
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	rule, err := h.rules.AddFactor(ctx.UserContext(), ctx.Params("id"), req)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(rule)
}

func (h *HandlerSet) updateFactorWeight(ctx *fiber.Ctx) error {
	var req factorWeightRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	rule, err := h.rules.UpdateFactorWeight(ctx.UserContext(), ctx.Params("id"), domain.FactorID(ctx.Params("factorId")), req.Weight)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(rule)
}

func (h *HandlerSet) removeFactor(ctx *fiber.Ctx) error {
	rule, err := h.rules.RemoveFactor(ctx.UserContext(), ctx.Params("id"), domain.FactorID(ctx.Params("factorId")))
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(rule)
}
