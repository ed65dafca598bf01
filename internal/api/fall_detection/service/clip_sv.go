package fallService

import (
	"HealthVision/internal/api/fall_detection"
	"HealthVision/internal/pipeline"
	contextPkg "HealthVision/pkg/context"
	logPkg "HealthVision/pkg/log"
	"HealthVision/pkg/redis"
	"HealthVision/pkg/s3"
	"errors"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
	"time"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func (s *fallDetectionService) AnalyzeClip(ctx context.Context, req fall_detection.AnalyzeClipRequest, frames [][]byte) (fall_detection.ClipResponse, error) {
	requestID := contextPkg.GetRequestID(ctx)

	var source pipeline.FrameSource
	switch {
	case len(frames) > 0:
		source = pipeline.NewMemorySource(frames, s.engine.Config().Clip.Interval)
	case req.ClipKey != "":
		stored, err := s.openStoredClip(ctx, req.ClipKey)
		if err != nil {
			return fall_detection.ClipResponse{}, err
		}
		source = stored
	default:
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"patient_id": req.PatientID,
		}).Warn("Clip request without frames")
		return fall_detection.ClipResponse{}, fall_detection.ErrNoFrames
	}

	return s.runClip(ctx, req.PatientID, source, nil)
}

func (s *fallDetectionService) StreamClip(ctx context.Context, req fall_detection.StreamStartRequest, emit func(fall_detection.StreamMessage) error) (fall_detection.ClipResponse, error) {
	source, err := s.openStoredClip(ctx, req.ClipKey)
	if err != nil {
		return fall_detection.ClipResponse{}, err
	}

	onPartial := func(clipID string, generation int64, p fall_detection.PartialResponse) error {
		return emit(fall_detection.StreamMessage{
			Type:       fall_detection.StreamMessagePartial,
			ClipID:     clipID,
			Generation: generation,
			Partial:    &p,
		})
	}

	resp, err := s.runClip(ctx, req.PatientID, source, onPartial)
	if err != nil {
		return resp, err
	}

	if err := emit(fall_detection.StreamMessage{
		Type:       fall_detection.StreamMessageFinal,
		ClipID:     resp.ClipID,
		Generation: resp.Generation,
		Result:     &resp,
	}); err != nil {
		return resp, err
	}
	return resp, nil
}

func (s *fallDetectionService) GetClipResult(ctx context.Context, clipID string) (fall_detection.ClipResponse, error) {
	requestID := contextPkg.GetRequestID(ctx)

	if s.redis == nil {
		return fall_detection.ClipResponse{}, fall_detection.ErrClipNotFound
	}

	payload, err := s.redis.GetClipResult(ctx, clipID)
	if err != nil {
		if errors.Is(err, redis.ErrNotFound) {
			return fall_detection.ClipResponse{}, fall_detection.ErrClipNotFound
		}
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"clip_id":    clipID,
			"error":      err.Error(),
		}).Error("Failed to read clip result")
		return fall_detection.ClipResponse{}, err
	}

	var resp fall_detection.ClipResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"clip_id":    clipID,
			"error":      err.Error(),
		}).Error("Cached clip result is corrupt")
		return fall_detection.ClipResponse{}, err
	}

	return resp, nil
}

func (s *fallDetectionService) DiscardClipResult(ctx context.Context, clipID string) error {
	if _, err := s.GetClipResult(ctx, clipID); err != nil {
		return err
	}

	if err := s.redis.DeleteClipResult(ctx, clipID); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"clip_id":    clipID,
			"error":      err.Error(),
		}).Error("Failed to discard clip result")
		return err
	}
	return nil
}

func (s *fallDetectionService) openStoredClip(ctx context.Context, clipKey string) (pipeline.FrameSource, error) {
	if _, err := s3.CleanClipKey(clipKey); err != nil {
		return nil, fall_detection.ErrInvalidClipKey
	}
	if s.s3 == nil {
		return nil, fall_detection.ErrClipStorageUnavailable
	}

	source, err := s.s3.OpenClip(ctx, clipKey)
	if err != nil {
		if errors.Is(err, s3.ErrEmptyClip) {
			return nil, fall_detection.ErrClipSourceNotFound
		}
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"clip_key":   clipKey,
			"error":      err.Error(),
		}).Error("Failed to list clip frames")
		return nil, err
	}
	return source, nil
}

type partialFunc func(clipID string, generation int64, p fall_detection.PartialResponse) error

// runClip samples one clip for a patient. A clip started later for the same
// patient cancels this one, and its result is then discarded.
func (s *fallDetectionService) runClip(ctx context.Context, patientID string, source pipeline.FrameSource, onPartial partialFunc) (fall_detection.ClipResponse, error) {
	requestID := contextPkg.GetRequestID(ctx)

	clipCtx, generation, release, err := s.supervisor.Begin(ctx, patientID)
	if err != nil {
		if errors.Is(err, pipeline.ErrSuperseded) {
			return fall_detection.ClipResponse{}, fall_detection.ErrClipSuperseded
		}
		return fall_detection.ClipResponse{}, err
	}
	defer release()

	clipID, err := s.utils.NewULIDFromTimestamp(time.Now())
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to generate ULID")
		return fall_detection.ClipResponse{}, err
	}

	entry := logPkg.WithClip(ctx, clipID, patientID, generation)
	clip := pipeline.NewClip(clipID, patientID, generation)
	frames := newConformedSource(source, s.utils, s.engine.Config().Clip.InputSize)
	aggregator := pipeline.NewClipAggregator(s.engine, clip, frames, entry)

	resp := fall_detection.ClipResponse{
		ClipID:     clipID,
		PatientID:  patientID,
		Generation: generation,
		Partials:   make([]fall_detection.PartialResponse, 0, len(aggregator.Schedule())),
	}

	var (
		peakFrame      []byte
		peakConfidence float64
		emitErr        error
	)

	for u := range aggregator.Run(clipCtx) {
		if u.Final || u.Err != nil {
			continue
		}

		partial := makePartial(u)
		resp.Partials = append(resp.Partials, partial)

		if u.Frame != nil && frames.last != nil && (peakFrame == nil || u.Frame.Confidence > peakConfidence) {
			peakFrame = frames.last
			peakConfidence = u.Frame.Confidence
		}

		if onPartial != nil {
			if emitErr = onPartial(clipID, generation, partial); emitErr != nil {
				break
			}
		}
	}

	resp.State = clip.State()
	result := clip.Result()
	resp.MaxConfidence = result.MaxConfidence
	resp.LastKeypoints = result.LastKeypoints

	switch resp.State {
	case pipeline.ClipFailed:
		return resp, fall_detection.ErrAnalysisFailed
	case pipeline.ClipCancelled:
		switch {
		case ctx.Err() != nil:
			return resp, ctx.Err()
		case !s.supervisor.IsCurrent(patientID, generation):
			return resp, fall_detection.ErrClipSuperseded
		case emitErr != nil:
			return resp, emitErr
		default:
			return resp, fall_detection.ErrClipCancelled
		}
	}

	if !s.supervisor.IsCurrent(patientID, generation) {
		entry.Info("Discarding result of superseded clip")
		return resp, fall_detection.ErrClipSuperseded
	}

	if err := clipCtx.Err(); err != nil {
		entry.Info("Clip cancelled after sampling, no alert raised")
		resp.State = pipeline.ClipCancelled
		if ctx.Err() != nil {
			return resp, ctx.Err()
		}
		return resp, fall_detection.ErrClipCancelled
	}

	resp.IsFall = result.IsFall
	resp.CompletedAt = time.Now().Format(time.RFC3339)

	if resp.IsFall {
		s.raiseAlert(ctx, entry, clip, peakFrame, &resp)
	}

	s.cacheResult(ctx, entry, resp)
	return resp, nil
}

func (s *fallDetectionService) raiseAlert(ctx context.Context, entry *logrus.Entry, clip *pipeline.Clip, peakFrame []byte, resp *fall_detection.ClipResponse) {
	var opts []pipeline.EmitOption

	if s.s3 != nil && peakFrame != nil {
		url, err := s.s3.UploadSnapshot(ctx, s3.SnapshotKey(clip.PatientID, clip.ID), peakFrame, "image/jpeg")
		if err != nil {
			entry.WithField("error", err.Error()).Warn("Failed to upload fall snapshot")
		} else {
			resp.SnapshotURL = url
			opts = append(opts, pipeline.WithSnapshotURL(url))
		}
	}

	attempted, notice := s.emitter.Emit(ctx, clip, opts...)
	resp.Alerted = attempted && notice == nil
	if notice == nil {
		return
	}

	resp.AlertNotice = &fall_detection.AlertNoticeResponse{
		Code:    notice.Code,
		Message: notice.Message,
	}

	// no alert references the snapshot
	if resp.SnapshotURL != "" {
		if err := s.s3.DeleteFile(s3.SnapshotKey(clip.PatientID, clip.ID)); err != nil {
			entry.WithField("error", err.Error()).Warn("Failed to delete orphaned snapshot")
			return
		}
		resp.SnapshotURL = ""
	}
}

func (s *fallDetectionService) cacheResult(ctx context.Context, entry *logrus.Entry, resp fall_detection.ClipResponse) {
	if s.redis == nil {
		return
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		entry.WithField("error", err.Error()).Warn("Failed to encode clip result")
		return
	}

	if err := s.redis.SetClipResult(ctx, resp.ClipID, payload, s.resultTTL); err != nil {
		entry.WithField("error", err.Error()).Warn("Failed to cache clip result")
	}
}

func makePartial(u pipeline.Update) fall_detection.PartialResponse {
	partial := fall_detection.PartialResponse{
		Index:         u.Index,
		TimestampMs:   u.Timestamp.Milliseconds(),
		Skipped:       u.Skipped,
		SkipReason:    u.SkipReason,
		MaxConfidence: u.Result.MaxConfidence,
	}

	if u.Frame != nil {
		partial.Frame = &fall_detection.FrameResponse{
			Mode:       u.Frame.Mode,
			IsFall:     u.Frame.IsFall,
			Confidence: u.Frame.Confidence,
			Keypoints:  u.Frame.Keypoints,
			Risk:       u.Frame.Risk,
			Motion:     u.Frame.Motion,
		}
	}

	return partial
}
