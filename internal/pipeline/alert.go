package pipeline

import (
	"context"
	"fmt"
	"math"

	"HealthVision/internal/entity"
	"github.com/sirupsen/logrus"
)

// AlertStore persists alert records.
type AlertStore interface {
	CreateAlert(ctx context.Context, record entity.AlertRecord) error
}

// Notice reports a per-clip problem that does not change the verdict.
type Notice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (n *Notice) Error() string {
	if n.Err != nil {
		return fmt.Sprintf("%s: %v", n.Message, n.Err)
	}
	return n.Message
}

func (n *Notice) Unwrap() error {
	return n.Err
}

type AlertEmitter struct {
	store AlertStore
	log   *logrus.Entry
}

func NewAlertEmitter(store AlertStore, log *logrus.Entry) *AlertEmitter {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &AlertEmitter{store: store, log: log}
}

type EmitOption func(*entity.AlertRecord)

func WithSnapshotURL(url string) EmitOption {
	return func(r *entity.AlertRecord) {
		r.SnapshotURL = url
	}
}

func FallDescription(confidence float64) string {
	return fmt.Sprintf("Fall Detected (Conf: %d%%)", int(math.Round(entity.ClampUnit(confidence)*100)))
}

// Emit submits one critical alert for a finished positive clip. It reports
// whether a submission was attempted; each clip is attempted at most once.
func (e *AlertEmitter) Emit(ctx context.Context, clip *Clip, opts ...EmitOption) (bool, *Notice) {
	if clip.State() != ClipDone {
		return false, nil
	}
	result := clip.Result()
	if !result.IsFall {
		return false, nil
	}
	if !clip.alerted.CompareAndSwap(false, true) {
		return false, nil
	}

	record := entity.AlertRecord{
		PatientID:   clip.PatientID,
		Type:        entity.AlertTypeFall,
		Severity:    entity.AlertSeverityCritical,
		Description: FallDescription(result.MaxConfidence),
	}
	for _, opt := range opts {
		opt(&record)
	}

	if e.store == nil {
		return true, &Notice{Code: "ALERT_STORE_UNAVAILABLE", Message: "alert store is not configured"}
	}

	if err := e.store.CreateAlert(ctx, record); err != nil {
		e.log.WithFields(logrus.Fields{
			"clip_id":    clip.ID,
			"patient_id": clip.PatientID,
			"error":      err.Error(),
		}).Error("Failed to submit fall alert")
		return true, &Notice{Code: "ALERT_NOT_SENT", Message: "fall detected but the alert could not be submitted", Err: err}
	}

	e.log.WithFields(logrus.Fields{
		"clip_id":    clip.ID,
		"patient_id": clip.PatientID,
		"confidence": result.MaxConfidence,
	}).Info("Fall alert submitted")
	return true, nil
}
