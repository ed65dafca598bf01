package fall_detection

import (
	"HealthVision/internal/entity"
	"HealthVision/internal/pipeline"
)

type AnalyzeClipRequest struct {
	PatientID string `json:"patient_id" form:"patient_id" validate:"required,max=64"`
	ClipKey   string `json:"clip_key" form:"clip_key" validate:"omitempty,max=512"`
}

type StreamStartRequest struct {
	// Type defaults to start.
	Type      string `json:"type" validate:"omitempty,oneof=start stop"`
	PatientID string `json:"patient_id" validate:"required_unless=Type stop,max=64"`
	ClipKey   string `json:"clip_key" validate:"required_unless=Type stop,max=512"`
}

type ListAlertsQuery struct {
	Status string `query:"status" validate:"omitempty,oneof=new acknowledged resolved"`
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=200"`
}

type FrameResponse struct {
	Mode       pipeline.Mode         `json:"mode"`
	IsFall     bool                  `json:"is_fall"`
	Confidence float64               `json:"confidence"`
	Keypoints  *entity.Keypoints     `json:"keypoints,omitempty"`
	Risk       *entity.PostureRisk   `json:"risk,omitempty"`
	Motion     pipeline.MotionSample `json:"motion"`
}

type PartialResponse struct {
	Index         int            `json:"index"`
	TimestampMs   int64          `json:"timestamp_ms"`
	Skipped       bool           `json:"skipped"`
	SkipReason    string         `json:"skip_reason,omitempty"`
	Frame         *FrameResponse `json:"frame,omitempty"`
	MaxConfidence float64        `json:"max_confidence"`
}

type AlertNoticeResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ClipResponse struct {
	ClipID        string               `json:"clip_id"`
	PatientID     string               `json:"patient_id"`
	Generation    int64                `json:"generation"`
	State         pipeline.ClipState   `json:"state"`
	MaxConfidence float64              `json:"max_confidence"`
	IsFall        bool                 `json:"is_fall"`
	LastKeypoints *entity.Keypoints    `json:"last_keypoints,omitempty"`
	Alerted       bool                 `json:"alerted"`
	AlertNotice   *AlertNoticeResponse `json:"alert_notice,omitempty"`
	SnapshotURL   string               `json:"snapshot_url,omitempty"`
	Partials      []PartialResponse    `json:"partials"`
	CompletedAt   string               `json:"completed_at"`
}

const (
	StreamMessagePartial = "partial"
	StreamMessageFinal   = "final"
	StreamMessageError   = "error"
)

type StreamMessage struct {
	Type       string           `json:"type"`
	ClipID     string           `json:"clip_id,omitempty"`
	Generation int64            `json:"generation,omitempty"`
	Partial    *PartialResponse `json:"partial,omitempty"`
	Result     *ClipResponse    `json:"result,omitempty"`
	Error      string           `json:"error,omitempty"`
	Code       string           `json:"code,omitempty"`
}

type AlertListResponse struct {
	Alerts []entity.Alert `json:"alerts"`
	Total  int            `json:"total"`
}

type UnreadCountResponse struct {
	Count int `json:"count"`
}
