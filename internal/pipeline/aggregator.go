package pipeline

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"HealthVision/internal/entity"
	"github.com/sirupsen/logrus"
)

type ClipState string

const (
	ClipIdle       ClipState = "idle"
	ClipSampling   ClipState = "sampling"
	ClipFinalizing ClipState = "finalizing"
	ClipDone       ClipState = "done"
	ClipFailed     ClipState = "failed"
	ClipCancelled  ClipState = "cancelled"
)

// Clip is the shared record of one analysis run. The aggregator writes it;
// handlers and the alert emitter read it.
type Clip struct {
	ID         string
	PatientID  string
	Generation int64

	mu     sync.RWMutex
	state  ClipState
	result entity.ClipResult
	err    error

	alerted atomic.Bool
}

func NewClip(id, patientID string, generation int64) *Clip {
	return &Clip{
		ID:         id,
		PatientID:  patientID,
		Generation: generation,
		state:      ClipIdle,
	}
}

func (c *Clip) State() ClipState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Clip) Result() entity.ClipResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.result
}

func (c *Clip) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

func (c *Clip) set(state ClipState, result entity.ClipResult, err error) {
	c.mu.Lock()
	c.state = state
	c.result = result
	c.err = err
	c.mu.Unlock()
}

func (c *Clip) setState(state ClipState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// Update is one element of a clip's progressive result sequence.
type Update struct {
	ClipID     string
	Generation int64
	Index      int
	Timestamp  time.Duration

	// Frame is nil when the sample was skipped.
	Frame      *Outcome
	Skipped    bool
	SkipReason string

	// Result is the running aggregate. IsFall stays false until Final.
	Result entity.ClipResult
	State  ClipState
	Final  bool
	Err    error
}

type ClipAggregator struct {
	engine *Engine
	clip   *Clip
	source FrameSource
	cfg    ClipConfig
	log    *logrus.Entry
}

func NewClipAggregator(engine *Engine, clip *Clip, source FrameSource, log *logrus.Entry) *ClipAggregator {
	if log == nil {
		log = engine.log
	}
	return &ClipAggregator{
		engine: engine,
		clip:   clip,
		source: source,
		cfg:    engine.cfg.Clip,
		log: log.WithFields(logrus.Fields{
			"clip_id":    clip.ID,
			"generation": clip.Generation,
		}),
	}
}

// Schedule lists the sample timestamps 0, interval, 2*interval ... < duration.
func (a *ClipAggregator) Schedule() []time.Duration {
	if a.cfg.Interval <= 0 {
		if a.cfg.Duration > 0 {
			return []time.Duration{0}
		}
		return nil
	}
	var ts []time.Duration
	for t := time.Duration(0); t < a.cfg.Duration; t += a.cfg.Interval {
		ts = append(ts, t)
	}
	return ts
}

// Run returns the clip's progressive results. Each iteration opens a fresh
// session, so the sequence can be ranged over again. A completed run ends
// with a Final update; a cancelled run, or one whose consumer stops early,
// ends without one.
func (a *ClipAggregator) Run(ctx context.Context) iter.Seq[Update] {
	return func(yield func(Update) bool) {
		session := a.engine.NewSession(a.log)
		defer func() {
			if err := session.Close(); err != nil {
				a.log.WithField("error", err.Error()).Warn("Failed to release inference session")
			}
		}()

		var result entity.ClipResult
		a.clip.set(ClipSampling, result, nil)

		for i, ts := range a.Schedule() {
			if i > 0 && !a.pause(ctx) {
				a.cancel(ctx.Err())
				return
			}

			u, err := a.sample(ctx, session, i, ts, &result)
			if err != nil {
				if ctx.Err() != nil {
					a.cancel(ctx.Err())
					return
				}
				a.clip.set(ClipFailed, result, err)
				a.log.WithField("error", err.Error()).Error("Clip analysis failed")
				u.State = ClipFailed
				u.Err = err
				yield(u)
				return
			}

			u.State = ClipSampling
			if !yield(u) {
				a.cancel(context.Canceled)
				return
			}
		}

		// the last sample may have finished after a cancel
		if err := ctx.Err(); err != nil {
			a.cancel(err)
			return
		}

		a.clip.setState(ClipFinalizing)
		result.IsFall = result.MaxConfidence > FallThreshold
		a.clip.set(ClipDone, result, nil)

		a.log.WithFields(logrus.Fields{
			"max_confidence": result.MaxConfidence,
			"is_fall":        result.IsFall,
		}).Info("Clip analysis finished")

		yield(Update{
			ClipID:     a.clip.ID,
			Generation: a.clip.Generation,
			Index:      -1,
			Result:     result,
			State:      ClipDone,
			Final:      true,
		})
	}
}

// sample runs one timestamp through source, encoder and dispatcher. A non-nil
// error is either fatal or a cancellation.
func (a *ClipAggregator) sample(ctx context.Context, s *Session, i int, ts time.Duration, result *entity.ClipResult) (Update, error) {
	u := Update{
		ClipID:     a.clip.ID,
		Generation: a.clip.Generation,
		Index:      i,
		Timestamp:  ts,
	}

	skip := func(reason string, err error) (Update, error) {
		a.log.WithFields(logrus.Fields{
			"timestamp_ms": ts.Milliseconds(),
			"error":        err.Error(),
		}).Debug("Skipping frame")
		u.Skipped = true
		u.SkipReason = reason
		u.Result = *result
		return u, nil
	}

	data, err := a.source.FrameAt(ctx, ts)
	if err != nil {
		if ctx.Err() != nil {
			return u, ctx.Err()
		}
		return skip("frame unavailable", err)
	}

	tensor, err := EncodeFrame(Frame{Data: data, Width: a.cfg.InputSize, Height: a.cfg.InputSize})
	if err != nil {
		return skip("frame could not be decoded", err)
	}

	out, err := s.Dispatch(ctx, Input{Tensor: tensor, Image: data})
	if err != nil {
		return u, err
	}

	conf := entity.ClampUnit(out.Confidence)
	out.Confidence = conf
	if conf > result.MaxConfidence {
		result.MaxConfidence = conf
	}
	if out.Keypoints != nil {
		kps := *out.Keypoints
		result.LastKeypoints = &kps
	}

	u.Frame = &out
	u.Result = *result
	return u, nil
}

func (a *ClipAggregator) pause(ctx context.Context) bool {
	if a.cfg.YieldInterval <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(a.cfg.YieldInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (a *ClipAggregator) cancel(cause error) {
	a.clip.set(ClipCancelled, a.clip.Result(), cause)
	if cause != nil && !errors.Is(cause, context.Canceled) {
		a.log.WithField("cause", cause.Error()).Info("Clip cancelled")
		return
	}
	a.log.Info("Clip cancelled")
}

// Collect drains the sequence and returns every update plus the final one,
// if the run completed.
func Collect(seq iter.Seq[Update]) (updates []Update, final *Update) {
	for u := range seq {
		updates = append(updates, u)
		if u.Final {
			f := u
			final = &f
		}
	}
	return updates, final
}
