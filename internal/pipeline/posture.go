package pipeline

import (
	"fmt"
	"math"

	"HealthVision/internal/entity"
)

// PostureSignals are the raw geometric measurements behind a PostureRisk.
type PostureSignals struct {
	// CompressionRatio is |noseY - mean(knees, ankles Y)| / frameHeight.
	CompressionRatio float64
	// SpineAngle is the shoulder-to-hip vector's angle from vertical, in degrees.
	SpineAngle float64
	// BodyY is the mean Y of nose, shoulders and hips.
	BodyY       float64
	FrameHeight float64
	// AspectRatio is box w/h, zero when h is not positive.
	AspectRatio float64
}

type PostureScorer struct {
	th PostureThresholds
}

func NewPostureScorer(th PostureThresholds) PostureScorer {
	return PostureScorer{th: th}
}

// Score is pure: the same detection and frame height always give the same risk.
func (s PostureScorer) Score(det *entity.PoseDetection, frameHeight float64) entity.PostureRisk {
	if det == nil || frameHeight <= 0 {
		return entity.PostureRisk{Reasons: []string{}}
	}
	return s.ScoreSignals(MeasurePosture(det, frameHeight))
}

func MeasurePosture(det *entity.PoseDetection, frameHeight float64) PostureSignals {
	kp := &det.Keypoints

	nose := kp[entity.KeypointNose]
	ls, rs := kp[entity.KeypointLeftShoulder], kp[entity.KeypointRightShoulder]
	lh, rh := kp[entity.KeypointLeftHip], kp[entity.KeypointRightHip]

	lowerY := (kp[entity.KeypointLeftKnee].Y + kp[entity.KeypointRightKnee].Y +
		kp[entity.KeypointLeftAnkle].Y + kp[entity.KeypointRightAnkle].Y) / 4

	dx := (lh.X+rh.X)/2 - (ls.X+rs.X)/2
	dy := (lh.Y+rh.Y)/2 - (ls.Y+rs.Y)/2

	sig := PostureSignals{
		CompressionRatio: math.Abs(nose.Y-lowerY) / frameHeight,
		SpineAngle:       math.Atan2(math.Abs(dx), math.Abs(dy)) * 180 / math.Pi,
		BodyY:            (nose.Y + ls.Y + rs.Y + lh.Y + rh.Y) / 5,
		FrameHeight:      frameHeight,
	}
	if det.Box.H > 0 {
		sig.AspectRatio = det.Box.W / det.Box.H
	}
	return sig
}

// ScoreSignals sums the four independent contributions and clamps the total
// into [0, MaxRisk].
func (s PostureScorer) ScoreSignals(sig PostureSignals) entity.PostureRisk {
	th := s.th
	var risk float64
	reasons := []string{}

	switch {
	case sig.CompressionRatio < th.CompressionStrong:
		risk += th.CompressionStrongWeight
		reasons = append(reasons, fmt.Sprintf("vertical compression %.0f%%", sig.CompressionRatio*100))
	case sig.CompressionRatio < th.CompressionPartial:
		risk += th.CompressionPartialWeight
		reasons = append(reasons, "partial compression")
	}

	switch {
	case sig.SpineAngle > th.SpineHorizontalDeg:
		risk += th.SpineHorizontalWeight
		reasons = append(reasons, fmt.Sprintf("horizontal spine %.0f°", sig.SpineAngle))
	case sig.SpineAngle > th.SpineLeaningDeg:
		risk += th.SpineLeaningWeight
		reasons = append(reasons, fmt.Sprintf("leaning %.0f°", sig.SpineAngle))
	}

	if sig.BodyY > sig.FrameHeight*th.LowBodyRatio {
		risk += th.LowBodyWeight
		reasons = append(reasons, "low body position")
	}

	if sig.AspectRatio > th.AspectMin {
		risk += math.Min(th.AspectCap, sig.AspectRatio*th.AspectScale)
		reasons = append(reasons, fmt.Sprintf("wide aspect %.1f", sig.AspectRatio))
	}

	return entity.PostureRisk{
		Score:   clamp(risk, 0, th.MaxRisk),
		Reasons: reasons,
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
