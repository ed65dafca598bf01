package fallService

import (
	fallRepository "HealthVision/internal/api/fall_detection/repository"
	"HealthVision/internal/entity"
	"HealthVision/pkg/redis"
	"HealthVision/pkg/utils"
	"context"
	"time"
)

// redisGenerations shares clip generations between API instances.
type redisGenerations struct {
	redis redis.IRedis
}

func (g *redisGenerations) Next(ctx context.Context, patientID string) (int64, error) {
	return g.redis.NextGeneration(ctx, patientID)
}

// alertStore persists pipeline alert records as new alerts.
type alertStore struct {
	repo  fallRepository.Repository
	utils utils.IUtils
}

func (s *alertStore) CreateAlert(ctx context.Context, record entity.AlertRecord) error {
	client, err := s.repo.NewClient(false)
	if err != nil {
		return err
	}

	id, err := s.utils.NewULIDFromTimestamp(time.Now())
	if err != nil {
		return err
	}

	return client.Alert.CreateAlert(ctx, entity.Alert{
		ID:          id,
		PatientID:   record.PatientID,
		Type:        record.Type,
		Severity:    record.Severity,
		Status:      entity.AlertStatusNew,
		Description: record.Description,
		SnapshotURL: record.SnapshotURL,
	})
}
