package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"OpportunityScout/internal/domain"
	"OpportunityScout/internal/usecase"
)

// Restarter rebuilds the daemon from the current stored configurations.
type Restarter interface {
	Restart(ctx context.Context) error
	Scheduled() int
}

// Handler serves the control API.
type Handler struct {
	svc            *usecase.ControlService
	daemon         Restarter
	baseCtx        context.Context
	expireAfterDay int
	logger         *slog.Logger
}

func (h *Handler) listConfigs(c *fiber.Ctx) error {
	configs, err := h.svc.ListConfigs(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"configs": configs})
}

func (h *Handler) createConfig(c *fiber.Ctx) error {
	var patch domain.ScoutConfigPatch
	if err := c.BodyParser(&patch); err != nil {
		return badRequest("invalid JSON body")
	}
	name := ""
	if patch.Name != nil {
		name = *patch.Name
	}
	cfg, err := h.svc.CreateConfig(c.UserContext(), name, patch)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(cfg)
}

func (h *Handler) getConfig(c *fiber.Ctx) error {
	cfg, err := h.svc.GetConfig(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(cfg)
}

func (h *Handler) updateConfig(c *fiber.Ctx) error {
	var patch domain.ScoutConfigPatch
	if err := c.BodyParser(&patch); err != nil {
		return badRequest("invalid JSON body")
	}
	cfg, err := h.svc.UpdateConfig(c.UserContext(), c.Params("id"), patch)
	if err != nil {
		return err
	}
	return c.JSON(cfg)
}

func (h *Handler) deleteConfig(c *fiber.Ctx) error {
	if err := h.svc.DeleteConfig(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) runConfig(c *fiber.Ctx) error {
	res, err := h.svc.RunConfig(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (h *Handler) listQueue(c *fiber.Ctx) error {
	filter := domain.QueueFilter{ConfigID: strings.TrimSpace(c.Query("configId"))}

	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		st, err := domain.ParseStatus(raw)
		if err != nil {
			return badRequest(err.Error())
		}
		filter.Status = st
	}
	var err error
	if filter.Limit, err = intQuery(c, "limit"); err != nil {
		return err
	}
	if filter.Offset, err = intQuery(c, "offset"); err != nil {
		return err
	}

	items, err := h.svc.ListQueue(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"items": items})
}

func (h *Handler) getItem(c *fiber.Ctx) error {
	item, err := h.svc.GetItem(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(item)
}

func (h *Handler) approveItem(c *fiber.Ctx) error {
	item, err := h.svc.ApproveItem(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(item)
}

func (h *Handler) rejectItem(c *fiber.Ctx) error {
	item, err := h.svc.RejectItem(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(item)
}

type listedRequest struct {
	ListingID string `json:"listingId"`
}

func (h *Handler) markListed(c *fiber.Ctx) error {
	var req listedRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid JSON body")
	}
	req.ListingID = strings.TrimSpace(req.ListingID)
	if req.ListingID == "" {
		return badRequest("listingId is required")
	}
	item, err := h.svc.MarkListed(c.UserContext(), c.Params("id"), req.ListingID)
	if err != nil {
		return err
	}
	return c.JSON(item)
}

type expireRequest struct {
	MaxAgeDays *int `json:"maxAgeDays"`
}

func (h *Handler) expireQueue(c *fiber.Ctx) error {
	days := h.expireAfterDay
	if len(c.Body()) > 0 {
		var req expireRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest("invalid JSON body")
		}
		if req.MaxAgeDays != nil {
			days = *req.MaxAgeDays
		}
	}
	n, err := h.svc.ExpireQueue(c.UserContext(), days)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"expired": n, "maxAgeDays": days})
}

func (h *Handler) stats(c *fiber.Ctx) error {
	stats, err := h.svc.Stats(c.UserContext(), strings.TrimSpace(c.Query("configId")))
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

func (h *Handler) restartDaemon(c *fiber.Ctx) error {
	if h.daemon == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "daemon is not managed by this server")
	}
	// The daemon outlives the request, so it is bound to the server context.
	if err := h.daemon.Restart(h.baseCtx); err != nil {
		return err
	}
	scheduled := h.daemon.Scheduled()
	h.logger.Info("daemon restarted via api", "scheduled", scheduled)
	return c.JSON(fiber.Map{"scheduled": scheduled})
}

func (h *Handler) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func intQuery(c *fiber.Ctx, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, badRequest(key + " must be a non-negative integer")
	}
	return v, nil
}

func badRequest(msg string) error {
	return fiber.NewError(fiber.StatusBadRequest, msg)
}

// errorHandler maps domain errors to status codes and hides internal ones.
func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		msg := "internal error"

		var (
			fe *fiber.Error
			ve *domain.ValidationError
		)
		switch {
		case errors.As(err, &fe):
			status, msg = fe.Code, fe.Message
		case errors.As(err, &ve):
			status, msg = fiber.StatusBadRequest, ve.Msg
		case errors.Is(err, domain.ErrNotFound):
			status, msg = fiber.StatusNotFound, "not found"
		case errors.Is(err, domain.ErrInvalidTransition):
			status, msg = fiber.StatusConflict, err.Error()
		}

		if status >= fiber.StatusInternalServerError {
			logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
		}
		return c.Status(status).JSON(fiber.Map{"error": msg})
	}
}
