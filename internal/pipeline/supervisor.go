package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrSuperseded is returned when a newer clip for the same key has already
// started.
var ErrSuperseded = errors.New("clip superseded by a newer run")

// GenerationSource hands out increasing generation numbers per key.
type GenerationSource interface {
	Next(ctx context.Context, key string) (int64, error)
}

type activeClip struct {
	generation int64
	cancel     context.CancelFunc
}

// Supervisor keeps at most one running clip per monitoring key. Starting a
// clip cancels whichever one was running for that key.
type Supervisor struct {
	gens GenerationSource
	log  *logrus.Entry

	mu     sync.Mutex
	active map[string]*activeClip
	seen   map[string]int64
}

func NewSupervisor(gens GenerationSource, log *logrus.Entry) *Supervisor {
	return &Supervisor{
		gens:   gens,
		log:    log,
		active: make(map[string]*activeClip),
		seen:   make(map[string]int64),
	}
}

// Begin registers a new clip for key. The returned context is cancelled when
// a newer clip starts or when release is called. Only a clip that is still
// running with a newer generation rejects the call.
func (s *Supervisor) Begin(ctx context.Context, key string) (context.Context, int64, func(), error) {
	gen, external := s.external(ctx, key)

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, running := s.active[key]
	seen := s.seen[key]

	switch {
	case !external:
		gen = seen + 1
	case gen <= seen:
		if running && prev.generation > gen {
			return nil, 0, nil, ErrSuperseded
		}
		// counter was reset or lags the local fallback
		if s.log != nil {
			s.log.WithFields(logrus.Fields{
				"patient_id": key,
				"generation": gen,
				"seen":       seen,
			}).Warn("Generation source is behind, continuing from local counter")
		}
		gen = seen + 1
	}
	s.seen[key] = gen

	if running {
		prev.cancel()
		if s.log != nil {
			s.log.WithFields(logrus.Fields{
				"patient_id":    key,
				"generation":    prev.generation,
				"superseded_by": gen,
			}).Info("Cancelling superseded clip")
		}
	}

	clipCtx, cancel := context.WithCancel(ctx)
	s.active[key] = &activeClip{generation: gen, cancel: cancel}

	release := func() {
		cancel()
		s.mu.Lock()
		if cur, ok := s.active[key]; ok && cur.generation == gen {
			delete(s.active, key)
		}
		s.mu.Unlock()
	}
	return clipCtx, gen, release, nil
}

// IsCurrent reports whether gen is the newest generation started for key.
func (s *Supervisor) IsCurrent(key string, gen int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[key] == gen
}

// external asks the generation source for the next value. It reports false
// when there is no source or it failed, and Begin then counts locally.
func (s *Supervisor) external(ctx context.Context, key string) (int64, bool) {
	if s.gens == nil {
		return 0, false
	}
	gen, err := s.gens.Next(ctx, key)
	if err != nil {
		if s.log != nil {
			s.log.WithField("error", err.Error()).Warn("Generation source unavailable, using local counter")
		}
		return 0, false
	}
	return gen, true
}
