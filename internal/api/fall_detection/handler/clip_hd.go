package fallHandler

import (
	"HealthVision/internal/api/fall_detection"
	contextPkg "HealthVision/pkg/context"
	"HealthVision/pkg/handlerUtil"
	"errors"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/context"
	"io"
	"strings"
	"time"
)

func (h *FallDetectionHandler) AnalyzeClip(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), clipTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing analyze clip request")

	var req fall_detection.AnalyzeClipRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
		}
	}
	req.PatientID = ctx.Params("patientId")

	if err := h.validator.Struct(req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	frames, err := h.readFrames(ctx)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "analyze_clip")
	}

	resp, err := h.fallService.AnalyzeClip(c, req, frames)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return errHandler.HandleRequestTimeout(ctx)
		}
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "analyze_clip")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, resp)
	}
}

func (h *FallDetectionHandler) GetClipResult(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	clipID := ctx.Params("clipId")
	if clipID == "" {
		return errHandler.HandleValidationError(ctx, requestID, errors.New("clip id is required"), ctx.Path())
	}

	resp, err := h.fallService.GetClipResult(c, clipID)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "get_clip_result")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, resp)
	}
}

func (h *FallDetectionHandler) DiscardClipResult(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	if err := h.fallService.DiscardClipResult(c, ctx.Params("clipId")); err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "discard_clip_result")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusNoContent, nil)
	}
}

// readFrames returns the uploaded frames in form order. A request that is not
// multipart carries no frames.
func (h *FallDetectionHandler) readFrames(ctx *fiber.Ctx) ([][]byte, error) {
	if !strings.HasPrefix(ctx.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		return nil, nil
	}

	form, err := ctx.MultipartForm()
	if err != nil {
		return nil, err
	}

	files := form.File["frames"]
	if len(files) > maxUploadFrames {
		return nil, fall_detection.ErrTooManyFrames
	}

	frames := make([][]byte, 0, len(files))
	for _, file := range files {
		if err := h.utils.ValidateImageFile(file); err != nil {
			return nil, err
		}

		f, err := file.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, err
		}

		frames = append(frames, data)
	}

	return frames, nil
}
