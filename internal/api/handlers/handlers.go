package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/acme/lead-contact-engine/internal/repository"
	"github.com/acme/lead-contact-engine/internal/scheduler"
	"github.com/acme/lead-contact-engine/internal/service/rules"
	apperrors "github.com/acme/lead-contact-engine/pkg/errors"
	"github.com/acme/lead-contact-engine/pkg/logger"
)

// PassService runs scheduling passes on demand.
type PassService interface {
	Run(ctx context.Context) (scheduler.Report, error)
	Preview(ctx context.Context, leadID string) (scheduler.LeadPreview, error)
}

// Dependencies are what the HTTP handlers operate on.
type Dependencies struct {
	Rules        *rules.Store
	Attempts     repository.AttemptStore
	PassStats    repository.PassStatsRepository
	Passes       PassService
	HealthChecks map[string]func(context.Context) error
	Logger       *logger.Logger
}

// HandlerSet bundles all HTTP handlers.
type HandlerSet struct {
	rules     *rules.Store
	attempts  repository.AttemptStore
	passStats repository.PassStatsRepository
	passes    PassService
	checks    map[string]func(context.Context) error
	log       *logger.Logger
}

// NewHandlerSet creates a new handler bundle.
func NewHandlerSet(deps Dependencies) *HandlerSet {
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &HandlerSet{
		rules:     deps.Rules,
		attempts:  deps.Attempts,
		passStats: deps.PassStats,
		passes:    deps.Passes,
		checks:    deps.HealthChecks,
		log:       log.Named("http"),
	}
}

// Register wires all routes onto the fiber app.
func (h *HandlerSet) Register(app *fiber.App) {
	app.Get("/healthz", h.health)

	api := app.Group("/api")
	v1 := api.Group("/v1")

	reengagement := v1.Group("/rules/reengagement")
	reengagement.Post("/", h.createReengagement)
	reengagement.Get("/", h.listReengagement)
	reengagement.Get("/:id", h.getReengagement)
	reengagement.Put("/:id", h.updateReengagement)
	reengagement.Delete("/:id", h.deleteReengagement)
	reengagement.Post("/:id/toggle", h.toggleReengagement)

	dialing := v1.Group("/rules/dialing")
	dialing.Post("/", h.createDialing)
	dialing.Get("/", h.listDialing)
	dialing.Get("/:id", h.getDialing)
	dialing.Put("/:id", h.updateDialing)
	dialing.Delete("/:id", h.deleteDialing)
	dialing.Post("/:id/toggle", h.toggleDialing)
	dialing.Put("/:id/redial-intervals/:failureType", h.setRedialInterval)
	dialing.Delete("/:id/redial-intervals/:failureType", h.removeRedialInterval)

	priorization := v1.Group("/rules/priorization")
	priorization.Post("/", h.createPriorization)
	priorization.Get("/", h.listPriorization)
	priorization.Get("/:id", h.getPriorization)
	priorization.Put("/:id", h.updatePriorization)
	priorization.Delete("/:id", h.deletePriorization)
	priorization.Post("/:id/toggle", h.togglePriorization)
	priorization.Post("/:id/factors", h.addFactor)
	priorization.Put("/:id/factors/:factorId", h.updateFactorWeight)
	priorization.Delete("/:id/factors/:factorId", h.removeFactor)

	passes := v1.Group("/passes")
	passes.Post("/", h.runPass)
	passes.Get("/latest", h.latestPass)

	leads := v1.Group("/leads")
	leads.Get("/:id/attempts", h.listAttempts)
	leads.Get("/:id/preview", h.previewLead)

	v1.Get("/factors", h.listFactors)
}

// ErrorHandler provides centralized error responses.
func (h *HandlerSet) ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()
	body := fiber.Map{}

	var verr *apperrors.ValidationError
	if fiberErr, ok := err.(*fiber.Error); ok {
		code = fiberErr.Code
		message = fiberErr.Message
	} else if apperrors.As(err, &verr) {
		code = fiber.StatusBadRequest
		body["issues"] = verr.Issues
	}

	if code == fiber.StatusInternalServerError {
		h.log.WithContext(ctx.UserContext()).Error("request failed",
			zap.String("method", ctx.Method()),
			zap.String("path", ctx.Path()),
			zap.Error(err),
		)
	}

	body["error"] = message
	body["trace_id"] = ctx.GetRespHeader("Trace-Id")
	return ctx.Status(code).JSON(body)
}

func (h *HandlerSet) health(ctx *fiber.Ctx) error {
	healthCtx, cancel := context.WithTimeout(ctx.UserContext(), 2*time.Second)
	defer cancel()

	errs := make(map[string]string)
	for name, check := range h.checks {
		if err := check(healthCtx); err != nil {
			errs[name] = err.Error()
		}
	}

	status := fiber.StatusOK
	state := "ok"
	if len(errs) > 0 {
		status = fiber.StatusServiceUnavailable
		state = "degraded"
	}

	return ctx.Status(status).JSON(fiber.Map{"status": state, "errors": errs})
}
