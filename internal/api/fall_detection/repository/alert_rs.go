package fallRepository

import (
	"HealthVision/internal/api/fall_detection"
	"HealthVision/internal/entity"
	contextPkg "HealthVision/pkg/context"
	"context"
	"database/sql"
	"errors"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"time"
)

const defaultListLimit = 50

type AlertDB struct {
	ID          sql.NullString `db:"id"`
	PatientID   sql.NullString `db:"patient_id"`
	Type        sql.NullString `db:"type"`
	Severity    sql.NullString `db:"severity"`
	Status      sql.NullString `db:"status"`
	Description sql.NullString `db:"description"`
	SnapshotURL sql.NullString `db:"snapshot_url"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r *alertRepository) CreateAlert(c context.Context, alert entity.Alert) error {
	requestID := contextPkg.GetRequestID(c)
	now := time.Now()
	if alert.Status == "" {
		alert.Status = entity.AlertStatusNew
	}

	argsKV := map[string]interface{}{
		"id":           alert.ID,
		"patient_id":   alert.PatientID,
		"type":         alert.Type,
		"severity":     alert.Severity,
		"status":       string(alert.Status),
		"description":  alert.Description,
		"snapshot_url": sql.NullString{String: alert.SnapshotURL, Valid: alert.SnapshotURL != ""},
		"created_at":   now,
		"updated_at":   now,
	}

	query, args, err := sqlx.Named(queryCreateAlert, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to build SQL query for CreateAlert")
		return err
	}
	query = r.q.Rebind(query)

	if _, err := r.q.ExecContext(c, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"patient_id": alert.PatientID,
			"error":      err.Error(),
		}).Error("Database error when creating alert")
		return err
	}

	return nil
}

func (r *alertRepository) GetAlertByID(c context.Context, id string) (entity.Alert, error) {
	requestID := contextPkg.GetRequestID(c)
	argsKV := map[string]interface{}{
		"id": id,
	}

	query, args, err := sqlx.Named(queryGetAlertByID, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetAlertByID named query preparation err")
		return entity.Alert{}, err
	}
	query = r.q.Rebind(query)

	var alert AlertDB
	if err := r.q.QueryRowxContext(c, query, args...).StructScan(&alert); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Alert{}, fall_detection.ErrAlertNotFound
		}

		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetAlertByID execution err")
		return entity.Alert{}, err
	}

	return r.makeAlert(alert), nil
}

func (r *alertRepository) ListByPatient(c context.Context, patientID string, status string, limit int) ([]entity.Alert, error) {
	requestID := contextPkg.GetRequestID(c)
	if limit <= 0 {
		limit = defaultListLimit
	}

	argsKV := map[string]interface{}{
		"patient_id": patientID,
		"status":     status,
		"limit":      limit,
	}

	query, args, err := sqlx.Named(queryListAlertsByPatient, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("ListByPatient named query preparation err")
		return nil, err
	}
	query = r.q.Rebind(query)

	var alerts []AlertDB
	if err := r.q.SelectContext(c, &alerts, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"patient_id": patientID,
			"error":      err.Error(),
		}).Error("ListByPatient execution err")
		return nil, err
	}

	result := make([]entity.Alert, 0, len(alerts))
	for _, alert := range alerts {
		result = append(result, r.makeAlert(alert))
	}

	return result, nil
}

func (r *alertRepository) CountUnresolved(c context.Context) (int, error) {
	requestID := contextPkg.GetRequestID(c)

	var count int
	if err := r.q.GetContext(c, &count, queryCountUnresolvedAlerts); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("CountUnresolved execution err")
		return 0, err
	}

	return count, nil
}

func (r *alertRepository) UpdateStatus(c context.Context, id string, status entity.AlertStatus) error {
	requestID := contextPkg.GetRequestID(c)
	argsKV := map[string]interface{}{
		"id":         id,
		"status":     string(status),
		"updated_at": time.Now(),
	}

	query, args, err := sqlx.Named(queryUpdateAlertStatus, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("UpdateStatus named query preparation err")
		return err
	}
	query = r.q.Rebind(query)

	result, err := r.q.ExecContext(c, query, args...)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("UpdateStatus execution err")
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("UpdateStatus rows affected err")
		return err
	}

	if rowsAffected == 0 {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"alert_id":   id,
		}).Warn("UpdateStatus no rows affected")
		return fall_detection.ErrAlertNotFound
	}

	return nil
}

func (r *alertRepository) makeAlert(a AlertDB) entity.Alert {
	return entity.Alert{
		ID:          a.ID.String,
		PatientID:   a.PatientID.String,
		Type:        a.Type.String,
		Severity:    a.Severity.String,
		Status:      entity.AlertStatus(a.Status.String),
		Description: a.Description.String,
		SnapshotURL: a.SnapshotURL.String,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}
