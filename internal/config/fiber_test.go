package config

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"HealthVision/pkg/handlerUtil"
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFiber_ErrorHandler(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	app := NewFiber(logger)
	app.Get("/upgrade", func(ctx *fiber.Ctx) error { return fiber.ErrUpgradeRequired })
	app.Get("/boom", func(ctx *fiber.Ctx) error { return errors.New("boom") })

	tests := []struct {
		path       string
		wantStatus int
		wantTrace  bool
	}{
		{path: "/missing", wantStatus: http.StatusNotFound},
		{path: "/upgrade", wantStatus: http.StatusUpgradeRequired},
		{path: "/boom", wantStatus: http.StatusInternalServerError, wantTrace: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body handlerUtil.ErrorResponse
			require.NoError(t, jsoniter.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, tt.wantTrace, body.TraceID != "")
		})
	}
}
