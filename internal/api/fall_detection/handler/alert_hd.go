package fallHandler

import (
	"HealthVision/internal/api/fall_detection"
	contextPkg "HealthVision/pkg/context"
	"HealthVision/pkg/handlerUtil"
	"errors"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/context"
	"time"
)

func (h *FallDetectionHandler) ListAlerts(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	patientID := ctx.Params("patientId")
	if patientID == "" {
		return errHandler.Handle(ctx, requestID, fall_detection.ErrInvalidPatientID, ctx.Path(), "list_alerts")
	}

	var query fall_detection.ListAlertsQuery
	if err := ctx.QueryParser(&query); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}
	if err := h.validator.Struct(query); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	alerts, err := h.fallService.ListAlerts(c, patientID, query)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "list_alerts")
	}

	response := fall_detection.AlertListResponse{
		Alerts: alerts,
		Total:  len(alerts),
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, response)
	}
}

func (h *FallDetectionHandler) CountUnreadAlerts(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	count, err := h.fallService.CountUnreadAlerts(c)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "count_unread_alerts")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, fall_detection.UnreadCountResponse{Count: count})
	}
}

func (h *FallDetectionHandler) ResolveAlert(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	alertID := ctx.Params("alertId")
	if alertID == "" {
		return errHandler.HandleValidationError(ctx, requestID, errors.New("alert id is required"), ctx.Path())
	}

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"alert_id":   alertID,
		"staff_id":   contextPkg.GetStaffID(c),
	}).Info("Resolving alert")

	if err := h.fallService.ResolveAlert(c, alertID); err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "resolve_alert")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusNoContent, nil)
	}
}
