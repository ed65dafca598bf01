package fallService

import (
	"HealthVision/internal/pipeline"
	"HealthVision/pkg/utils"
	"context"
	"time"
)

// conformedSource resizes every frame to the model input and remembers the
// last frame it served, so the clip can keep its peak frame as a snapshot.
type conformedSource struct {
	source pipeline.FrameSource
	utils  utils.IUtils
	size   int
	last   []byte
}

func newConformedSource(source pipeline.FrameSource, u utils.IUtils, size int) *conformedSource {
	return &conformedSource{source: source, utils: u, size: size}
}

func (s *conformedSource) FrameAt(ctx context.Context, t time.Duration) ([]byte, error) {
	s.last = nil

	data, err := s.source.FrameAt(ctx, t)
	if err != nil {
		return nil, err
	}

	conformed, err := s.utils.ConformFrame(data, s.size)
	if err != nil {
		return nil, err
	}

	s.last = conformed
	return conformed, nil
}
