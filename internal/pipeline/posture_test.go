package pipeline

import (
	"math/rand"
	"testing"

	"HealthVision/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostureScorer_WorkedExamples(t *testing.T) {
	t.Parallel()

	scorer := NewPostureScorer(DefaultPostureThresholds())

	tests := []struct {
		name    string
		sig     PostureSignals
		want    float64
		reasons int
	}{
		{
			name: "leaning spine only",
			sig: PostureSignals{
				SpineAngle:       40,
				CompressionRatio: 0.5,
				BodyY:            200,
				FrameHeight:      640,
				AspectRatio:      1.0,
			},
			want:    0.85,
			reasons: 1,
		},
		{
			name: "compressed low and wide",
			sig: PostureSignals{
				SpineAngle:       10,
				CompressionRatio: 0.2,
				BodyY:            500,
				FrameHeight:      640,
				AspectRatio:      1.3,
			},
			want:    0.99,
			reasons: 3,
		},
		{
			name: "partial compression and mild lean",
			sig: PostureSignals{
				SpineAngle:       25,
				CompressionRatio: 0.3,
				BodyY:            100,
				FrameHeight:      640,
			},
			want:    0.99,
			reasons: 2,
		},
		{
			name: "upright",
			sig: PostureSignals{
				SpineAngle:       5,
				CompressionRatio: 0.7,
				BodyY:            200,
				FrameHeight:      640,
				AspectRatio:      0.4,
			},
			want:    0,
			reasons: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			risk := scorer.ScoreSignals(tt.sig)
			assert.InDelta(t, tt.want, risk.Score, 1e-9)
			assert.Len(t, risk.Reasons, tt.reasons)
			assert.Equal(t, tt.want > FallThreshold, risk.Score > FallThreshold)
		})
	}
}

func TestPostureScorer_AspectContributionIsCapped(t *testing.T) {
	t.Parallel()

	th := DefaultPostureThresholds()
	th.MaxRisk = 10
	scorer := NewPostureScorer(th)

	risk := scorer.ScoreSignals(PostureSignals{CompressionRatio: 1, FrameHeight: 640, AspectRatio: 1.3})
	assert.InDelta(t, 0.39, risk.Score, 1e-9)

	risk = scorer.ScoreSignals(PostureSignals{CompressionRatio: 1, FrameHeight: 640, AspectRatio: 4})
	assert.InDelta(t, 0.5, risk.Score, 1e-9)
}

func TestPostureScorer_MeasuredPoses(t *testing.T) {
	t.Parallel()

	scorer := NewPostureScorer(DefaultPostureThresholds())

	standing := &entity.PoseDetection{Box: entity.Box{W: 100, H: 500}, Keypoints: standingPose()}
	sig := MeasurePosture(standing, 640)
	assert.InDelta(t, 425.0/640, sig.CompressionRatio, 1e-9)
	assert.InDelta(t, 0, sig.SpineAngle, 1e-9)
	assert.InDelta(t, 200, sig.BodyY, 1e-9)
	assert.InDelta(t, 0.2, sig.AspectRatio, 1e-9)
	assert.Zero(t, scorer.Score(standing, 640).Score)

	lying := &entity.PoseDetection{Box: entity.Box{W: 400, H: 100}, Keypoints: lyingPose()}
	sig = MeasurePosture(lying, 640)
	assert.InDelta(t, 90, sig.SpineAngle, 1e-9)
	assert.InDelta(t, 0.99, scorer.Score(lying, 640).Score, 1e-9)
}

func TestPostureScorer_ZeroHeightBoxSkipsAspect(t *testing.T) {
	t.Parallel()

	det := &entity.PoseDetection{Box: entity.Box{W: 100, H: 0}, Keypoints: standingPose()}
	assert.Zero(t, MeasurePosture(det, 640).AspectRatio)
}

func TestPostureScorer_EmptyInput(t *testing.T) {
	t.Parallel()

	scorer := NewPostureScorer(DefaultPostureThresholds())
	assert.Zero(t, scorer.Score(nil, 640).Score)

	det := &entity.PoseDetection{Keypoints: lyingPose()}
	assert.Zero(t, scorer.Score(det, 0).Score)
}

func TestPostureScorer_BoundedAndDeterministic(t *testing.T) {
	t.Parallel()

	scorer := NewPostureScorer(DefaultPostureThresholds())
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		det := &entity.PoseDetection{
			Box: entity.Box{W: rng.Float64() * 640, H: rng.Float64() * 640},
		}
		for k := range det.Keypoints {
			det.Keypoints[k] = entity.Keypoint{
				X:          rng.Float64() * 640,
				Y:          rng.Float64() * 640,
				Confidence: rng.Float64(),
			}
		}

		first := scorer.Score(det, 640)
		require.GreaterOrEqual(t, first.Score, 0.0)
		require.LessOrEqual(t, first.Score, 0.99)

		for j := 0; j < 3; j++ {
			again := scorer.Score(det, 640)
			require.Equal(t, first, again)
		}
	}
}
