package fallService

import (
	"HealthVision/internal/api/fall_detection"
	fallRepository "HealthVision/internal/api/fall_detection/repository"
	"HealthVision/internal/entity"
	"HealthVision/internal/pipeline"
	"HealthVision/pkg/redis"
	"HealthVision/pkg/s3"
	"HealthVision/pkg/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
	"time"
)

const defaultResultTTL = 24 * time.Hour

type IFallDetectionService interface {
	AnalyzeClip(ctx context.Context, req fall_detection.AnalyzeClipRequest, frames [][]byte) (fall_detection.ClipResponse, error)
	StreamClip(ctx context.Context, req fall_detection.StreamStartRequest, emit func(fall_detection.StreamMessage) error) (fall_detection.ClipResponse, error)
	GetClipResult(ctx context.Context, clipID string) (fall_detection.ClipResponse, error)
	DiscardClipResult(ctx context.Context, clipID string) error
	ListAlerts(ctx context.Context, patientID string, query fall_detection.ListAlertsQuery) ([]entity.Alert, error)
	CountUnreadAlerts(ctx context.Context) (int, error)
	ResolveAlert(ctx context.Context, alertID string) error
}

type fallDetectionService struct {
	log        *logrus.Logger
	repo       fallRepository.Repository
	engine     *pipeline.Engine
	supervisor *pipeline.Supervisor
	emitter    *pipeline.AlertEmitter
	redis      redis.IRedis
	s3         s3.ItfS3
	utils      utils.IUtils
	resultTTL  time.Duration
}

// NewFallDetectionService wires the clip pipeline to storage. rds and s3Client
// may be nil; clip results are then not cached and snapshots are not kept.
func NewFallDetectionService(log *logrus.Logger, repo fallRepository.Repository, engine *pipeline.Engine, rds redis.IRedis, s3Client s3.ItfS3, utils utils.IUtils) IFallDetectionService {
	entry := log.WithField("component", "fall_detection")

	var gens pipeline.GenerationSource
	if rds != nil {
		gens = &redisGenerations{redis: rds}
	}

	var store pipeline.AlertStore
	if repo != nil {
		store = &alertStore{repo: repo, utils: utils}
	}

	return &fallDetectionService{
		log:        log,
		repo:       repo,
		engine:     engine,
		supervisor: pipeline.NewSupervisor(gens, entry),
		emitter:    pipeline.NewAlertEmitter(store, entry),
		redis:      rds,
		s3:         s3Client,
		utils:      utils,
		resultTTL:  defaultResultTTL,
	}
}
