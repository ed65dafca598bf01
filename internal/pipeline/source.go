package pipeline

import (
	"context"
	"errors"
	"time"
)

// ErrFrameUnavailable means the source has nothing for the requested
// timestamp. The aggregator skips that sample.
var ErrFrameUnavailable = errors.New("frame unavailable")

// FrameSource yields the compressed frame closest to a timestamp within the
// clip. Implementations must honour ctx.
type FrameSource interface {
	FrameAt(ctx context.Context, t time.Duration) ([]byte, error)
}

type memorySource struct {
	frames   [][]byte
	interval time.Duration
}

// NewMemorySource serves frames[i] for timestamps in [i*interval, (i+1)*interval).
func NewMemorySource(frames [][]byte, interval time.Duration) FrameSource {
	return &memorySource{frames: frames, interval: interval}
}

func (s *memorySource) FrameAt(ctx context.Context, t time.Duration) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t < 0 || s.interval <= 0 {
		return nil, ErrFrameUnavailable
	}

	i := int(t / s.interval)
	if i >= len(s.frames) || len(s.frames[i]) == 0 {
		return nil, ErrFrameUnavailable
	}
	return s.frames[i], nil
}
