package fall_detection

import (
	"HealthVision/pkg/response"
	"net/http"
)

var (
	ErrNoFrames               = response.NewCodedError(http.StatusBadRequest, "NO_FRAMES", "either frames or clip_key is required")
	ErrTooManyFrames          = response.NewCodedError(http.StatusBadRequest, "TOO_MANY_FRAMES", "too many frames in one clip")
	ErrInvalidFrame           = response.NewCodedError(http.StatusBadRequest, "INVALID_FRAME", "frame is not a supported image")
	ErrInvalidPatientID       = response.NewCodedError(http.StatusBadRequest, "INVALID_PATIENT_ID", "invalid patient id")
	ErrInvalidClipKey         = response.NewCodedError(http.StatusBadRequest, "INVALID_CLIP_KEY", "clip_key must name a clip under the clips/ root")
	ErrInvalidAlertStatus     = response.NewCodedError(http.StatusBadRequest, "INVALID_ALERT_STATUS", "invalid alert status")
	ErrClipNotFound           = response.NewCodedError(http.StatusNotFound, "CLIP_NOT_FOUND", "clip not found")
	ErrClipSourceNotFound     = response.NewCodedError(http.StatusNotFound, "CLIP_SOURCE_NOT_FOUND", "no frames stored under clip key")
	ErrAlertNotFound          = response.NewCodedError(http.StatusNotFound, "ALERT_NOT_FOUND", "alert not found")
	ErrClipSuperseded         = response.NewCodedError(http.StatusConflict, "CLIP_SUPERSEDED", "clip superseded by a newer run")
	ErrClipCancelled          = response.NewCodedError(http.StatusConflict, "CLIP_CANCELLED", "clip cancelled")
	ErrAnalysisFailed         = response.NewCodedError(http.StatusInternalServerError, "ANALYSIS_FAILED", "analysis failed")
	ErrClipStorageUnavailable = response.NewCodedError(http.StatusServiceUnavailable, "CLIP_STORAGE_UNAVAILABLE", "clip storage is not configured")
)
