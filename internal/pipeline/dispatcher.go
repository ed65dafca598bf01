package pipeline

import (
	"context"
	"errors"

	"HealthVision/internal/entity"
	"github.com/sirupsen/logrus"
)

type Mode string

const (
	ModeRemote    Mode = "remote"
	ModeLocal     Mode = "local"
	ModeHeuristic Mode = "heuristic"
	ModeNone      Mode = "none"
)

// ErrStrategyUnavailable is returned by a strategy that is not configured for
// this session. The dispatcher moves on to the next one without logging.
var ErrStrategyUnavailable = errors.New("inference strategy unavailable")

type Input struct {
	Tensor *Tensor
	// Image holds the original compressed bytes, needed for remote mode.
	Image []byte
}

type Outcome struct {
	Mode       Mode
	IsFall     bool
	Confidence float64
	Keypoints  *entity.Keypoints
	Pose       *entity.PoseDetection
	Risk       *entity.PostureRisk
	Motion     MotionSample
}

// Strategy is one link of the fallback chain. Any error other than
// ErrOutputShape hands the frame to the next strategy.
type Strategy interface {
	Mode() Mode
	Infer(ctx context.Context, in Input, motion MotionSample) (Outcome, error)
}

// Dispatcher runs its strategies in order and returns the first success.
// It is owned by a single Session.
type Dispatcher struct {
	strategies []Strategy
	motion     *MotionTracker
	log        *logrus.Entry
}

func NewDispatcher(motion *MotionTracker, log *logrus.Entry, strategies ...Strategy) *Dispatcher {
	return &Dispatcher{
		strategies: strategies,
		motion:     motion,
		log:        log,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, in Input) (Outcome, error) {
	motion := d.motion.Observe(in.Tensor)

	for _, s := range d.strategies {
		out, err := s.Infer(ctx, in, motion)
		if err == nil {
			out.Mode = s.Mode()
			out.Motion = motion
			return out, nil
		}

		if errors.Is(err, ErrOutputShape) {
			d.log.WithFields(logrus.Fields{
				"mode":  s.Mode(),
				"error": err.Error(),
			}).Error("Pose model output rejected")
			return Outcome{}, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{}, ctxErr
		}
		if !errors.Is(err, ErrStrategyUnavailable) {
			d.log.WithFields(logrus.Fields{
				"mode":  s.Mode(),
				"error": err.Error(),
			}).Warn("Inference strategy failed, falling back")
		}
	}

	return Outcome{Mode: ModeNone, Motion: motion}, nil
}
