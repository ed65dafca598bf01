package pipeline

import (
	"context"
	"runtime"

	"HealthVision/pkg/log"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Engine holds the configuration and shared collaborators for inference.
// It owns no per-clip state; every clip gets its own Session.
type Engine struct {
	cfg    Config
	remote RemoteInference
	models ModelFactory
	scorer PostureScorer
	sem    *semaphore.Weighted
	log    *logrus.Entry
}

type EngineOption func(*Engine)

func WithRemote(r RemoteInference) EngineOption {
	return func(e *Engine) {
		e.remote = r
	}
}

func WithModelFactory(f ModelFactory) EngineOption {
	return func(e *Engine) {
		e.models = f
	}
}

// WithLocalConcurrency caps how many local model runs may execute at once.
func WithLocalConcurrency(n int64) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.sem = semaphore.NewWeighted(n)
		}
	}
}

func WithLogger(l *logrus.Entry) EngineOption {
	return func(e *Engine) {
		e.log = l
	}
}

func NewEngine(cfg Config, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:    cfg,
		scorer: NewPostureScorer(cfg.Posture),
		sem:    semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = log.NewLogger().WithField("component", "pipeline")
	}
	return e
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Session is the per-clip inference context: a fresh motion baseline, an
// optional model handle and the dispatcher that ties them together.
type Session struct {
	dispatcher *Dispatcher
	motion     *MotionTracker
	model      PoseModel
}

// NewSession never fails. When the model cannot be opened the session runs
// without local mode and the fallback chain carries on.
func (e *Engine) NewSession(l *logrus.Entry) *Session {
	if l == nil {
		l = e.log
	}

	s := &Session{motion: NewMotionTracker(e.cfg.Motion)}

	if e.models != nil {
		model, err := e.models()
		if err != nil {
			l.WithField("error", err.Error()).Warn("Local pose model unavailable for this clip")
		} else {
			s.model = model
		}
	}

	s.dispatcher = NewDispatcher(s.motion, l,
		&remoteStrategy{client: e.remote, timeout: e.cfg.Remote.Timeout},
		&localStrategy{model: s.model, decoder: e.cfg.Decoder, scorer: e.scorer, sem: e.sem},
		heuristicStrategy{},
	)
	return s
}

func (s *Session) Dispatch(ctx context.Context, in Input) (Outcome, error) {
	return s.dispatcher.Dispatch(ctx, in)
}

// Close releases the model handle and the motion baseline. Safe to call twice.
func (s *Session) Close() error {
	s.motion.Reset()
	if s.model == nil {
		return nil
	}
	err := s.model.Close()
	s.model = nil
	return err
}
