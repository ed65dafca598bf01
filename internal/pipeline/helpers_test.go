package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"testing"

	"HealthVision/internal/entity"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func pngFrame(t *testing.T, size int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// testConfig is DefaultConfig shrunk to tiny frames and no pauses.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Clip.InputSize = 8
	cfg.Clip.YieldInterval = 0
	cfg.Motion.SampleStride = 1
	return cfg
}

// clipFrames returns one small frame per default sample timestamp.
func clipFrames(t *testing.T, n int) [][]byte {
	t.Helper()
	frames := make([][]byte, n)
	for i := range frames {
		shade := uint8(40 * i)
		frames[i] = pngFrame(t, 8, color.NRGBA{R: shade, G: shade, B: shade, A: 255})
	}
	return frames
}

// fakeRemote replays scripted confidences, one per call.
type fakeRemote struct {
	mu          sync.Mutex
	confidences []float64
	keypoints   []float64
	err         error
	block       bool
	calls       int
}

func (f *fakeRemote) Predict(ctx context.Context, _ []byte) (*entity.RemotePrediction, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}

	conf := 0.0
	if len(f.confidences) > 0 {
		conf = f.confidences[min(i, len(f.confidences)-1)]
	}
	return &entity.RemotePrediction{
		IsFall:     conf > FallThreshold,
		Confidence: conf,
		Keypoints:  f.keypoints,
	}, nil
}

func (f *fakeRemote) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeModel struct {
	output []float32
	err    error
	runs   int
	closed int
}

func (m *fakeModel) Run(*Tensor) ([]float32, error) {
	m.runs++
	return m.output, m.err
}

func (m *fakeModel) Close() error {
	m.closed++
	return nil
}

// rawOutput builds a channel-major model buffer with a single detection at
// anchor, or an empty buffer when obj is zero.
func rawOutput(anchor int, obj float32, box entity.Box, kps *entity.Keypoints) []float32 {
	raw := make([]float32, OutputChannels*OutputAnchors)
	if obj == 0 {
		return raw
	}
	set := func(ch int, v float64) {
		raw[ch*OutputAnchors+anchor] = float32(v)
	}
	set(boxWidthChannel, box.W)
	set(boxHeightChannel, box.H)
	set(objectnessChannel, float64(obj))
	if kps != nil {
		for k, kp := range kps {
			set(keypointChannel+k*3, kp.X)
			set(keypointChannel+k*3+1, kp.Y)
			set(keypointChannel+k*3+2, kp.Confidence)
		}
	}
	return raw
}

func standingPose() entity.Keypoints {
	var kp entity.Keypoints
	set := func(i int, x, y float64) { kp[i] = entity.Keypoint{X: x, Y: y, Confidence: 0.9} }
	set(entity.KeypointNose, 320, 100)
	set(entity.KeypointLeftShoulder, 300, 150)
	set(entity.KeypointRightShoulder, 340, 150)
	set(entity.KeypointLeftHip, 300, 300)
	set(entity.KeypointRightHip, 340, 300)
	set(entity.KeypointLeftKnee, 300, 450)
	set(entity.KeypointRightKnee, 340, 450)
	set(entity.KeypointLeftAnkle, 300, 600)
	set(entity.KeypointRightAnkle, 340, 600)
	return kp
}

func lyingPose() entity.Keypoints {
	var kp entity.Keypoints
	set := func(i int, x, y float64) { kp[i] = entity.Keypoint{X: x, Y: y, Confidence: 0.9} }
	set(entity.KeypointNose, 60, 500)
	set(entity.KeypointLeftShoulder, 100, 495)
	set(entity.KeypointRightShoulder, 100, 505)
	set(entity.KeypointLeftHip, 300, 495)
	set(entity.KeypointRightHip, 300, 505)
	set(entity.KeypointLeftKnee, 400, 505)
	set(entity.KeypointRightKnee, 400, 515)
	set(entity.KeypointLeftAnkle, 500, 505)
	set(entity.KeypointRightAnkle, 500, 515)
	return kp
}

type fakeStore struct {
	mu      sync.Mutex
	records []entity.AlertRecord
	err     error
}

func (s *fakeStore) CreateAlert(_ context.Context, r entity.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, r)
	return nil
}

func (s *fakeStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
