package fallService

import (
	"HealthVision/internal/api/fall_detection"
	"HealthVision/internal/entity"
	contextPkg "HealthVision/pkg/context"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

func (s *fallDetectionService) ListAlerts(ctx context.Context, patientID string, query fall_detection.ListAlertsQuery) ([]entity.Alert, error) {
	requestID := contextPkg.GetRequestID(ctx)

	if query.Status != "" && !entity.IsValidAlertStatus(query.Status) {
		return nil, fall_detection.ErrInvalidAlertStatus
	}

	repo, err := s.repo.NewClient(false)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to create new client")
		return nil, err
	}

	alerts, err := repo.Alert.ListByPatient(ctx, patientID, query.Status, query.Limit)
	if err != nil {
		return nil, err
	}

	if s.s3 == nil {
		return alerts, nil
	}

	for i := range alerts {
		if alerts[i].SnapshotURL == "" {
			continue
		}
		signed, err := s.s3.PresignUrl(alerts[i].SnapshotURL)
		if err != nil {
			s.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"alert_id":   alerts[i].ID,
				"error":      err.Error(),
			}).Warn("Failed to presign snapshot url")
			continue
		}
		alerts[i].SnapshotURL = signed
	}

	return alerts, nil
}

func (s *fallDetectionService) CountUnreadAlerts(ctx context.Context) (int, error) {
	repo, err := s.repo.NewClient(false)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"error":      err.Error(),
		}).Error("Failed to create new client")
		return 0, err
	}

	return repo.Alert.CountUnresolved(ctx)
}

func (s *fallDetectionService) ResolveAlert(ctx context.Context, alertID string) error {
	requestID := contextPkg.GetRequestID(ctx)

	repo, err := s.repo.NewClient(true)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to begin transaction")
		return err
	}
	defer func() { _ = repo.Rollback() }()

	alert, err := repo.Alert.GetAlertByID(ctx, alertID)
	if err != nil {
		return err
	}

	if alert.Status != entity.AlertStatusResolved {
		if err := repo.Alert.UpdateStatus(ctx, alertID, entity.AlertStatusResolved); err != nil {
			return err
		}
	}

	if err := repo.Commit(); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"alert_id":   alertID,
			"error":      err.Error(),
		}).Error("Failed to commit alert resolution")
		return err
	}

	s.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"alert_id":   alertID,
		"patient_id": alert.PatientID,
	}).Info("Alert resolved")

	return nil
}
