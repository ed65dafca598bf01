package handlerUtil

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"HealthVision/internal/api/fall_detection"
	"HealthVision/pkg/utils"
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandle(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "superseded", err: fall_detection.ErrClipSuperseded, wantStatus: http.StatusConflict, wantCode: "CLIP_SUPERSEDED"},
		{name: "wrapped superseded", err: fmt.Errorf("run: %w", fall_detection.ErrClipSuperseded), wantStatus: http.StatusConflict, wantCode: "CLIP_SUPERSEDED"},
		{name: "analysis failed", err: fall_detection.ErrAnalysisFailed, wantStatus: http.StatusInternalServerError, wantCode: "ANALYSIS_FAILED"},
		{name: "domain error", err: fall_detection.ErrClipNotFound, wantStatus: http.StatusNotFound, wantCode: "CLIP_NOT_FOUND"},
		{name: "storage disabled", err: fall_detection.ErrClipStorageUnavailable, wantStatus: http.StatusServiceUnavailable, wantCode: "CLIP_STORAGE_UNAVAILABLE"},
		{name: "bad upload", err: utils.ErrNotAnImage, wantStatus: http.StatusBadRequest},
		{name: "unexpected", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(ctx *fiber.Ctx) error {
				return New(log).Handle(ctx, "req-1", tt.err, ctx.Path(), "test")
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body ErrorResponse
			require.NoError(t, jsoniter.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, tt.wantCode, body.Code)
			if tt.wantStatus == http.StatusInternalServerError && tt.wantCode == "" {
				assert.Equal(t, "req-1", body.TraceID)
			}
		})
	}
}
