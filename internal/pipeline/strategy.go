package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"HealthVision/internal/entity"
	"golang.org/x/sync/semaphore"
)

// RemoteInference is the hosted pose/fall service.
type RemoteInference interface {
	Predict(ctx context.Context, image []byte) (*entity.RemotePrediction, error)
}

// PoseModel is an on-device pose network. Run takes a [1,H,W,3] tensor and
// returns the flat channel-major [56 x 8400] output.
type PoseModel interface {
	Run(t *Tensor) ([]float32, error)
	Close() error
}

// ModelFactory opens a pose model handle for one session.
type ModelFactory func() (PoseModel, error)

var errMalformedRemote = errors.New("malformed remote prediction")

type remoteStrategy struct {
	client  RemoteInference
	timeout time.Duration
}

func (s *remoteStrategy) Mode() Mode { return ModeRemote }

func (s *remoteStrategy) Infer(ctx context.Context, in Input, _ MotionSample) (Outcome, error) {
	if s.client == nil || len(in.Image) == 0 {
		return Outcome{}, ErrStrategyUnavailable
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	pred, err := s.client.Predict(ctx, in.Image)
	if err != nil {
		return Outcome{}, err
	}
	if pred == nil {
		return Outcome{}, errMalformedRemote
	}

	out := Outcome{
		IsFall:     pred.IsFall,
		Confidence: entity.ClampUnit(pred.Confidence),
	}
	switch len(pred.Keypoints) {
	case 0:
	case entity.NumKeypoints * 3:
		kps, _ := entity.KeypointsFromFlat(pred.Keypoints)
		out.Keypoints = &kps
	default:
		return Outcome{}, fmt.Errorf("%w: %d keypoint values", errMalformedRemote, len(pred.Keypoints))
	}
	return out, nil
}

type localStrategy struct {
	model   PoseModel
	decoder DecoderConfig
	scorer  PostureScorer
	// sem bounds how many CPU-bound model runs execute at once across sessions.
	sem *semaphore.Weighted
}

func (s *localStrategy) Mode() Mode { return ModeLocal }

func (s *localStrategy) Infer(ctx context.Context, in Input, _ MotionSample) (Outcome, error) {
	if s.model == nil || in.Tensor == nil {
		return Outcome{}, ErrStrategyUnavailable
	}

	if s.sem != nil {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return Outcome{}, err
		}
		defer s.sem.Release(1)
	}

	raw, err := s.model.Run(in.Tensor)
	if err != nil {
		return Outcome{}, fmt.Errorf("local pose model: %w", err)
	}

	det, err := DecodePose(raw, s.decoder)
	if err != nil {
		return Outcome{}, err
	}
	if det == nil {
		return Outcome{}, nil
	}

	risk := s.scorer.Score(det, float64(in.Tensor.Height))
	kps := det.Keypoints
	return Outcome{
		IsFall:     risk.Score > FallThreshold,
		Confidence: risk.Score,
		Keypoints:  &kps,
		Pose:       det,
		Risk:       &risk,
	}, nil
}

// heuristicStrategy always succeeds. Motion never raises confidence, so the
// frame contributes zero and only the motion sample is reported.
type heuristicStrategy struct{}

func (heuristicStrategy) Mode() Mode { return ModeHeuristic }

func (heuristicStrategy) Infer(context.Context, Input, MotionSample) (Outcome, error) {
	return Outcome{}, nil
}
