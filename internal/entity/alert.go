package entity

import "time"

type AlertStatus string

const (
	AlertStatusNew          AlertStatus = "new"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

const (
	AlertTypeFall         = "Fall Detected"
	AlertSeverityCritical = "critical"
	AlertSeverityWarning  = "warning"
	AlertSeverityInfo     = "info"
)

// AlertRecord is what the pipeline hands to the alert store.
type AlertRecord struct {
	PatientID   string `json:"patient_id"`
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	SnapshotURL string `json:"snapshot_url,omitempty"`
}

type Alert struct {
	ID          string      `json:"id"`
	PatientID   string      `json:"patient_id"`
	Type        string      `json:"type"`
	Severity    string      `json:"severity"`
	Status      AlertStatus `json:"status"`
	Description string      `json:"description"`
	SnapshotURL string      `json:"snapshot_url,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func IsValidAlertStatus(status string) bool {
	switch AlertStatus(status) {
	case AlertStatusNew, AlertStatusAcknowledged, AlertStatusResolved:
		return true
	default:
		return false
	}
}
