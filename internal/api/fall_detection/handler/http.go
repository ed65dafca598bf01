package fallHandler

import (
	fallService "HealthVision/internal/api/fall_detection/service"
	"HealthVision/internal/middleware"
	"HealthVision/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	"time"
)

const (
	maxUploadFrames = 16
	clipTimeout     = 60 * time.Second
)

type FallDetectionHandler struct {
	log         *logrus.Logger
	validator   *validator.Validate
	middleware  middleware.Middleware
	fallService fallService.IFallDetectionService
	utils       utils.IUtils
}

func New(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
	fs fallService.IFallDetectionService,
	utils utils.IUtils,
) *FallDetectionHandler {
	return &FallDetectionHandler{
		fallService: fs,
		log:         log,
		validator:   validator,
		middleware:  middleware,
		utils:       utils,
	}
}

func (h *FallDetectionHandler) Start(srv fiber.Router) {
	wsMiddleware := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}

	// token first, the rate limiter buckets by staff ID
	token, limiter := h.middleware.NewTokenMiddleware, h.middleware.NewRateLimiter

	patients := srv.Group("/patients", token, limiter)
	patients.Post("/:patientId/clips", h.AnalyzeClip)
	patients.Get("/:patientId/alerts", h.ListAlerts)

	clips := srv.Group("/clips")
	clips.Use("/ws", wsMiddleware, token, limiter)
	clips.Get("/ws", websocket.New(h.handleClipStream))
	clips.Get("/:clipId", token, limiter, h.GetClipResult)
	clips.Delete("/:clipId", token, limiter, h.DiscardClipResult)

	alerts := srv.Group("/alerts", token, limiter)
	alerts.Get("/unread-count", h.CountUnreadAlerts)
	alerts.Patch("/:alertId/resolve", h.ResolveAlert)
}
