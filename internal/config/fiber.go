package config

import (
	"HealthVision/pkg/handlerUtil"
	"HealthVision/pkg/log"
	"errors"
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"os"
	"time"
)

// 16 frames of at most 5 MB each, plus multipart overhead.
const maxBodyBytes = 85 * 1024 * 1024

func NewFiber(logger *logrus.Logger) *fiber.App {
	production := os.Getenv("APP_ENV") == "production"

	app := fiber.New(
		fiber.Config{
			AppName:               "HealthVision Backend",
			BodyLimit:             maxBodyBytes,
			ReadTimeout:           90 * time.Second,
			IdleTimeout:           2 * time.Minute,
			StrictRouting:         true,
			CaseSensitive:         true,
			DisableStartupMessage: production,
			EnablePrintRoutes:     !production,
			JSONEncoder:           jsoniter.Marshal,
			JSONDecoder:           jsoniter.Unmarshal,
			ErrorHandler:          newErrorHandler(logger),
		})

	return app
}

// newErrorHandler renders errors that escape the handlers (unknown routes,
// oversized bodies, failed websocket upgrades) in the handlerUtil shape.
func newErrorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			logger.WithFields(logrus.Fields{
				"path":   c.Path(),
				"status": fiberErr.Code,
				"error":  fiberErr.Message,
			}).Debug("Request rejected by router")
			return c.Status(fiberErr.Code).JSON(handlerUtil.ErrorResponse{Error: fiberErr.Message})
		}

		traceID := log.ErrorWithTraceID(log.Fields{
			"path":  c.Path(),
			"error": err.Error(),
		}, "Unhandled error")
		return c.Status(fiber.StatusInternalServerError).JSON(handlerUtil.ErrorResponse{
			Error:   "An unexpected error occurred",
			TraceID: traceID,
		})
	}
}
