package pipeline

import (
	"context"
	"testing"
	"time"

	"HealthVision/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAggregator(t *testing.T, frames [][]byte, opts ...EngineOption) (*ClipAggregator, *Clip) {
	t.Helper()
	cfg := testConfig()
	opts = append([]EngineOption{WithLogger(quietLogger())}, opts...)
	engine := NewEngine(cfg, opts...)
	clip := NewClip("clip-1", "patient-1", 1)
	return NewClipAggregator(engine, clip, NewMemorySource(frames, cfg.Clip.Interval), nil), clip
}

func TestClipAggregator_Schedule(t *testing.T) {
	t.Parallel()

	agg, _ := newAggregator(t, nil)
	assert.Equal(t, []time.Duration{0, 1500 * time.Millisecond, 3000 * time.Millisecond, 4500 * time.Millisecond}, agg.Schedule())
}

func TestClipAggregator_MaxIsMonotone(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{confidences: []float64{0.2, 0.6, 0.1, 0.3}}
	agg, clip := newAggregator(t, clipFrames(t, 4), WithRemote(remote))

	updates, final := Collect(agg.Run(context.Background()))
	require.NotNil(t, final)
	require.Len(t, updates, 5)

	prev := 0.0
	for _, u := range updates[:4] {
		assert.False(t, u.Final)
		assert.False(t, u.Result.IsFall, "partial updates never carry a verdict")
		assert.GreaterOrEqual(t, u.Result.MaxConfidence, prev)
		prev = u.Result.MaxConfidence
	}
	assert.InDelta(t, 0.6, final.Result.MaxConfidence, 1e-9)
	assert.True(t, final.Result.IsFall)
	assert.Equal(t, ClipDone, clip.State())
	assert.Equal(t, final.Result, clip.Result())
}

func TestClipAggregator_FallBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		conf   float64
		isFall bool
	}{
		{conf: 0.45, isFall: false},
		{conf: 0.4501, isFall: true},
		{conf: 0, isFall: false},
		{conf: 1, isFall: true},
	}

	for _, tt := range tests {
		remote := &fakeRemote{confidences: []float64{tt.conf}}
		agg, _ := newAggregator(t, clipFrames(t, 4), WithRemote(remote))

		_, final := Collect(agg.Run(context.Background()))
		require.NotNil(t, final)
		assert.Equal(t, tt.isFall, final.Result.IsFall, "confidence %v", tt.conf)
	}
}

func TestClipAggregator_RemoteHitOnFirstFrame(t *testing.T) {
	t.Parallel()

	flat := make([]float64, entity.NumKeypoints*3)
	remote := &fakeRemote{confidences: []float64{0.8, 0.1, 0.05, 0.2}, keypoints: flat}
	agg, _ := newAggregator(t, clipFrames(t, 4), WithRemote(remote))

	_, final := Collect(agg.Run(context.Background()))
	require.NotNil(t, final)
	assert.GreaterOrEqual(t, final.Result.MaxConfidence, 0.8)
	assert.True(t, final.Result.IsFall)
	assert.NotNil(t, final.Result.LastKeypoints)
	assert.Equal(t, 4, remote.Calls())
}

func TestClipAggregator_NothingAvailable(t *testing.T) {
	t.Parallel()

	agg, clip := newAggregator(t, clipFrames(t, 4))

	updates, final := Collect(agg.Run(context.Background()))
	require.NotNil(t, final)
	for _, u := range updates[:len(updates)-1] {
		require.NotNil(t, u.Frame)
		assert.Equal(t, ModeHeuristic, u.Frame.Mode)
	}
	assert.Zero(t, final.Result.MaxConfidence)
	assert.False(t, final.Result.IsFall)
	assert.Nil(t, final.Result.LastKeypoints)

	store := &fakeStore{}
	emitted, notice := NewAlertEmitter(store, quietLogger()).Emit(context.Background(), clip)
	assert.False(t, emitted)
	assert.Nil(t, notice)
	assert.Zero(t, store.Count())
}

func TestClipAggregator_SkipsBadFrames(t *testing.T) {
	t.Parallel()

	frames := clipFrames(t, 4)
	frames[1] = []byte("corrupt")
	frames[3] = nil
	remote := &fakeRemote{confidences: []float64{0.3}}
	agg, _ := newAggregator(t, frames, WithRemote(remote))

	updates, final := Collect(agg.Run(context.Background()))
	require.NotNil(t, final)
	require.Len(t, updates, 5)

	assert.False(t, updates[0].Skipped)
	assert.True(t, updates[1].Skipped)
	assert.Nil(t, updates[1].Frame)
	assert.False(t, updates[2].Skipped)
	assert.True(t, updates[3].Skipped)
	assert.Equal(t, 2, remote.Calls())
	assert.InDelta(t, 0.3, final.Result.MaxConfidence, 1e-9)
}

func TestClipAggregator_CancelledMidClip(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{confidences: []float64{0.95}}
	agg, clip := newAggregator(t, clipFrames(t, 4), WithRemote(remote))

	ctx, cancel := context.WithCancel(context.Background())
	var updates []Update
	for u := range agg.Run(ctx) {
		updates = append(updates, u)
		cancel()
	}

	require.Len(t, updates, 1)
	assert.False(t, updates[0].Final)
	assert.InDelta(t, 0.95, updates[0].Result.MaxConfidence, 1e-9)
	assert.Equal(t, ClipCancelled, clip.State())

	store := &fakeStore{}
	emitted, _ := NewAlertEmitter(store, quietLogger()).Emit(context.Background(), clip)
	assert.False(t, emitted)
	assert.Zero(t, store.Count())
}

func TestClipAggregator_CancelledDuringLastSample(t *testing.T) {
	t.Parallel()

	remote := &fakeRemote{confidences: []float64{0.1, 0.1, 0.1, 0.95}}
	agg, clip := newAggregator(t, clipFrames(t, 4), WithRemote(remote))
	last := len(agg.Schedule()) - 1

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, final := Collect(func(yield func(Update) bool) {
		for u := range agg.Run(ctx) {
			if u.Index == last {
				cancel()
			}
			if !yield(u) {
				return
			}
		}
	})

	assert.Nil(t, final)
	require.Len(t, updates, 4)
	assert.InDelta(t, 0.95, updates[last].Result.MaxConfidence, 1e-9)
	assert.Equal(t, ClipCancelled, clip.State())
	assert.False(t, clip.Result().IsFall)

	store := &fakeStore{}
	emitted, _ := NewAlertEmitter(store, quietLogger()).Emit(context.Background(), clip)
	assert.False(t, emitted)
	assert.Zero(t, store.Count())
}

func TestClipAggregator_ConsumerStopsEarly(t *testing.T) {
	t.Parallel()

	agg, clip := newAggregator(t, clipFrames(t, 4))

	for u := range agg.Run(context.Background()) {
		require.Equal(t, 0, u.Index)
		break
	}
	assert.Equal(t, ClipCancelled, clip.State())
}

func TestClipAggregator_FatalOutputShape(t *testing.T) {
	t.Parallel()

	model := &fakeModel{output: make([]float32, 10)}
	agg, clip := newAggregator(t, clipFrames(t, 4), WithModelFactory(modelFactory(model)))

	updates, final := Collect(agg.Run(context.Background()))
	assert.Nil(t, final)
	require.Len(t, updates, 1)
	assert.Equal(t, ClipFailed, updates[0].State)
	assert.ErrorIs(t, updates[0].Err, ErrOutputShape)
	assert.Equal(t, ClipFailed, clip.State())
	assert.ErrorIs(t, clip.Err(), ErrOutputShape)
}

func TestClipAggregator_Restartable(t *testing.T) {
	t.Parallel()

	kps := lyingPose()
	model := &fakeModel{output: rawOutput(0, 0.9, entity.Box{W: 400, H: 100}, &kps)}
	opened := 0
	factory := func() (PoseModel, error) {
		opened++
		return model, nil
	}

	cfg := testConfig()
	engine := NewEngine(cfg, WithLogger(quietLogger()), WithModelFactory(factory))
	clip := NewClip("clip-2", "patient-2", 7)
	agg := NewClipAggregator(engine, clip, NewMemorySource(clipFrames(t, 4), cfg.Clip.Interval), quietLogger())
	seq := agg.Run(context.Background())

	_, first := Collect(seq)
	_, second := Collect(seq)

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, first.Result, second.Result)
	assert.Equal(t, int64(7), second.Generation)
	assert.Equal(t, 2, opened)
	assert.Equal(t, 2, model.closed)
}

func TestClipAggregator_YieldIsCancellable(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Clip.YieldInterval = time.Hour
	engine := NewEngine(cfg, WithLogger(quietLogger()))
	clip := NewClip("clip-3", "patient-3", 1)
	agg := NewClipAggregator(engine, clip, NewMemorySource(clipFrames(t, 4), cfg.Clip.Interval), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	updates, final := Collect(agg.Run(ctx))
	assert.Nil(t, final)
	assert.Len(t, updates, 1)
	assert.Equal(t, ClipCancelled, clip.State())
}
