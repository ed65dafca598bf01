package fallHandler

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"HealthVision/internal/api/fall_detection"
	"HealthVision/internal/entity"
	"HealthVision/internal/middleware"
	jwtPkg "HealthVision/pkg/jwt"
	"HealthVision/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	analyzeReq    fall_detection.AnalyzeClipRequest
	analyzeFrames [][]byte
	analyzeErr    error
	alerts        []entity.Alert
	resolved      []string
	resolveErr    error
	clips         map[string]fall_detection.ClipResponse
}

func (f *fakeService) AnalyzeClip(_ context.Context, req fall_detection.AnalyzeClipRequest, frames [][]byte) (fall_detection.ClipResponse, error) {
	f.analyzeReq = req
	f.analyzeFrames = frames
	if f.analyzeErr != nil {
		return fall_detection.ClipResponse{}, f.analyzeErr
	}
	return fall_detection.ClipResponse{ClipID: "clip-1", PatientID: req.PatientID, IsFall: true, MaxConfidence: 0.9}, nil
}

func (f *fakeService) StreamClip(context.Context, fall_detection.StreamStartRequest, func(fall_detection.StreamMessage) error) (fall_detection.ClipResponse, error) {
	return fall_detection.ClipResponse{}, nil
}

func (f *fakeService) GetClipResult(_ context.Context, clipID string) (fall_detection.ClipResponse, error) {
	resp, ok := f.clips[clipID]
	if !ok {
		return fall_detection.ClipResponse{}, fall_detection.ErrClipNotFound
	}
	return resp, nil
}

func (f *fakeService) DiscardClipResult(_ context.Context, clipID string) error {
	if _, ok := f.clips[clipID]; !ok {
		return fall_detection.ErrClipNotFound
	}
	delete(f.clips, clipID)
	return nil
}

func (f *fakeService) ListAlerts(context.Context, string, fall_detection.ListAlertsQuery) ([]entity.Alert, error) {
	return f.alerts, nil
}

func (f *fakeService) CountUnreadAlerts(context.Context) (int, error) {
	return len(f.alerts), nil
}

func (f *fakeService) ResolveAlert(_ context.Context, alertID string) error {
	if f.resolveErr != nil {
		return f.resolveErr
	}
	f.resolved = append(f.resolved, alertID)
	return nil
}

func newTestApp(t *testing.T, svc *fakeService) (*fiber.App, string) {
	t.Helper()
	t.Setenv(middleware.AccessTokenSecret, "handler-secret")

	log := logrus.New()
	log.SetOutput(io.Discard)

	m := middleware.New(log, middleware.DefaultRateLimitConfig(), nil)
	app := fiber.New()
	app.Use(m.NewRequestIDMiddleware())
	New(log, validator.New(), m, svc, utils.New()).Start(app.Group("/api/v1"))

	token, _, err := jwtPkg.Sign(map[string]interface{}{"id": "staff-1", "role": "nurse"}, time.Hour)
	require.NoError(t, err)
	return app, "Bearer " + token
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.SetNRGBA(1, 1, color.NRGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartFrames(t *testing.T, n int, contentType string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for i := 0; i < n; i++ {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="frames"; filename="frame.png"`)
		header.Set("Content-Type", contentType)
		part, err := w.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(pngBytes(t))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func TestAnalyzeClip(t *testing.T) {
	svc := &fakeService{}
	app, auth := newTestApp(t, svc)

	body, contentType := multipartFrames(t, 3, "image/png")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients/p-9/clips", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", auth)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got fall_detection.ClipResponse
	require.NoError(t, jsoniter.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "clip-1", got.ClipID)
	assert.True(t, got.IsFall)

	assert.Equal(t, "p-9", svc.analyzeReq.PatientID)
	assert.Len(t, svc.analyzeFrames, 3)
}

func TestAnalyzeClip_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		frames     int
		partType   string
		auth       bool
		svcErr     error
		wantStatus int
	}{
		{name: "unauthenticated", frames: 1, partType: "image/png", wantStatus: http.StatusUnauthorized},
		{name: "not an image", frames: 1, partType: "text/plain", auth: true, wantStatus: http.StatusBadRequest},
		{name: "too many frames", frames: maxUploadFrames + 1, partType: "image/png", auth: true, wantStatus: http.StatusBadRequest},
		{name: "superseded", frames: 1, partType: "image/png", auth: true, svcErr: fall_detection.ErrClipSuperseded, wantStatus: http.StatusConflict},
		{name: "no frames", frames: 0, partType: "image/png", auth: true, svcErr: fall_detection.ErrNoFrames, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, auth := newTestApp(t, &fakeService{analyzeErr: tt.svcErr})

			body, contentType := multipartFrames(t, tt.frames, tt.partType)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/patients/p-1/clips", body)
			req.Header.Set("Content-Type", contentType)
			if tt.auth {
				req.Header.Set("Authorization", auth)
			}

			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestGetClipResult(t *testing.T) {
	svc := &fakeService{clips: map[string]fall_detection.ClipResponse{
		"clip-1": {ClipID: "clip-1", MaxConfidence: 0.3},
	}}
	app, auth := newTestApp(t, svc)

	for clipID, want := range map[string]int{"clip-1": http.StatusOK, "clip-2": http.StatusNotFound} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/clips/"+clipID, nil)
		req.Header.Set("Authorization", auth)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, clipID)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/clips/clip-1", nil)
	req.Header.Set("Authorization", auth)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.NotContains(t, svc.clips, "clip-1")
}

func TestAlertRoutes(t *testing.T) {
	svc := &fakeService{alerts: []entity.Alert{{ID: "a-1", PatientID: "p-1", Status: entity.AlertStatusNew}}}
	app, auth := newTestApp(t, svc)

	t.Run("list", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/patients/p-1/alerts?status=new&limit=10", nil)
		req.Header.Set("Authorization", auth)
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got fall_detection.AlertListResponse
		require.NoError(t, jsoniter.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, 1, got.Total)
	})

	t.Run("list rejects unknown status", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/patients/p-1/alerts?status=open", nil)
		req.Header.Set("Authorization", auth)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unread count", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/unread-count", nil)
		req.Header.Set("Authorization", auth)
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got fall_detection.UnreadCountResponse
		require.NoError(t, jsoniter.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, 1, got.Count)
	})

	t.Run("resolve", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/alerts/a-1/resolve", nil)
		req.Header.Set("Authorization", auth)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, []string{"a-1"}, svc.resolved)
	})
}

func TestClipStream_RequiresUpgrade(t *testing.T) {
	app, auth := newTestApp(t, &fakeService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/clips/ws", nil)
	req.Header.Set("Authorization", auth)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestStreamFailure(t *testing.T) {
	assert.Equal(t, "CLIP_SUPERSEDED", streamFailure(fall_detection.ErrClipSuperseded).Code)
	assert.Equal(t, "ANALYSIS_FAILED", streamFailure(fall_detection.ErrAnalysisFailed).Code)
	assert.Equal(t, fall_detection.ErrClipSourceNotFound.Error(), streamFailure(fall_detection.ErrClipSourceNotFound).Error)
	assert.Equal(t, "an unexpected error occurred", streamFailure(context.Canceled).Error)
}
