package pipeline

import "math"

// MotionSample is the advisory inter-frame change signal.
type MotionSample struct {
	Score       float64 `json:"score"`
	HasBaseline bool    `json:"has_baseline"`
}

// MotionTracker keeps a private copy of the previous frame's tensor. One
// tracker belongs to exactly one clip session.
type MotionTracker struct {
	stride int
	prev   []float32
}

func NewMotionTracker(cfg MotionConfig) *MotionTracker {
	stride := cfg.SampleStride
	if stride < 1 {
		stride = 1
	}
	return &MotionTracker{stride: stride}
}

// Observe scores t against the previous frame and then makes t the new
// baseline. The first frame after construction or Reset has no baseline.
func (m *MotionTracker) Observe(t *Tensor) MotionSample {
	if t == nil {
		return MotionSample{}
	}

	var sample MotionSample
	if m.prev != nil {
		limit := min(len(t.Data), len(m.prev))
		var sum float64
		var n int
		for i := 0; i < limit; i += m.stride {
			sum += math.Abs(float64(t.Data[i]) - float64(m.prev[i]))
			n++
		}
		sample.HasBaseline = true
		if n > 0 {
			sample.Score = sum / float64(n)
		}
	}

	m.prev = append(m.prev[:0], t.Data...)
	return sample
}

func (m *MotionTracker) HasBaseline() bool {
	return m.prev != nil
}

// Reset drops the baseline and releases its buffer.
func (m *MotionTracker) Reset() {
	m.prev = nil
}
