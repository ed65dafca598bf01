package entity

import (
	"errors"
	"math"
)

// NumKeypoints is the number of COCO body landmarks a pose carries.
const NumKeypoints = 17

// Keypoint indices in COCO order.
const (
	KeypointNose = iota
	KeypointLeftEye
	KeypointRightEye
	KeypointLeftEar
	KeypointRightEar
	KeypointLeftShoulder
	KeypointRightShoulder
	KeypointLeftElbow
	KeypointRightElbow
	KeypointLeftWrist
	KeypointRightWrist
	KeypointLeftHip
	KeypointRightHip
	KeypointLeftKnee
	KeypointRightKnee
	KeypointLeftAnkle
	KeypointRightAnkle
)

var ErrKeypointCount = errors.New("keypoint list must hold 17 x,y,confidence triples")

type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

type Keypoints [NumKeypoints]Keypoint

type Box struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type PoseDetection struct {
	Box        Box       `json:"box"`
	Keypoints  Keypoints `json:"keypoints"`
	Objectness float64   `json:"objectness"`
}

type PostureRisk struct {
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
}

// RemotePrediction is the body returned by the remote inference service.
type RemotePrediction struct {
	IsFall     bool      `json:"isFall"`
	Confidence float64   `json:"confidence"`
	Keypoints  []float64 `json:"keypoints"`
}

// ClampUnit bounds v to [0,1]. NaN becomes 0.
func ClampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Flatten returns the keypoints as [x0, y0, c0, x1, y1, c1, ...].
func (k *Keypoints) Flatten() []float64 {
	flat := make([]float64, 0, NumKeypoints*3)
	for _, kp := range k {
		flat = append(flat, kp.X, kp.Y, kp.Confidence)
	}
	return flat
}

// KeypointsFromFlat is the inverse of Flatten. Confidences are clamped.
func KeypointsFromFlat(flat []float64) (Keypoints, error) {
	var kps Keypoints
	if len(flat) != NumKeypoints*3 {
		return kps, ErrKeypointCount
	}
	for i := range kps {
		kps[i] = Keypoint{
			X:          flat[i*3],
			Y:          flat[i*3+1],
			Confidence: ClampUnit(flat[i*3+2]),
		}
	}
	return kps, nil
}
