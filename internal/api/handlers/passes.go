package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/acme/lead-contact-engine/internal/domain"
	"github.com/acme/lead-contact-engine/internal/service/common"
)

const (
	defaultAttemptPage = 50
	maxAttemptPage     = 500
)

type listAttemptsResponse struct {
	Attempts []domain.AttemptRecord `json:"attempts"`
	NextPage string                 `json:"next_page_token,omitempty"`
}

type listFactorsResponse struct {
	Factors []domain.FactorDefinition `json:"factors"`
}

func (h *HandlerSet) runPass(ctx *fiber.Ctx) error {
	report, err := h.passes.Run(ctx.UserContext())
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(report)
}

func (h *HandlerSet) latestPass(ctx *fiber.Ctx) error {
	stats, err := h.passStats.Latest(ctx.UserContext())
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(stats)
}

func (h *HandlerSet) listAttempts(ctx *fiber.Ctx) error {
	limit, err := strconv.Atoi(ctx.Query("limit", strconv.Itoa(defaultAttemptPage)))
	if err != nil || limit <= 0 {
		return fiber.NewError(http.StatusBadRequest, "invalid limit")
	}
	if limit > maxAttemptPage {
		limit = maxAttemptPage
	}
	paging, err := common.DecodePageToken(ctx.Query("page_token"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid page token")
	}

	records, next, err := h.attempts.Page(ctx.UserContext(), ctx.Params("id"), limit, paging)
	if err != nil {
		return translateError(err)
	}
	if records == nil {
		records = []domain.AttemptRecord{}
	}

	return ctx.Status(http.StatusOK).JSON(listAttemptsResponse{
		Attempts: records,
		NextPage: common.EncodePageToken(next),
	})
}

func (h *HandlerSet) previewLead(ctx *fiber.Ctx) error {
	preview, err := h.passes.Preview(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(preview)
}

func (h *HandlerSet) listFactors(ctx *fiber.Ctx) error {
	return ctx.Status(http.StatusOK).JSON(listFactorsResponse{Factors: domain.FactorCatalog()})
}
