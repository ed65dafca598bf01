package pipeline

import (
	"errors"
	"fmt"

	"HealthVision/internal/entity"
)

// ErrOutputShape means the model produced a buffer that does not match the
// channel-major [56 x 8400] layout. It is never recovered from.
var ErrOutputShape = errors.New("pose model output has unexpected shape")

const (
	boxWidthChannel   = 2
	boxHeightChannel  = 3
	objectnessChannel = 4
	keypointChannel   = 5
)

// DecodePose picks the anchor with the highest objectness among every
// AnchorStride-th anchor and extracts its box and keypoints. A nil detection
// with a nil error means nothing in the frame cleared DetectionThreshold.
func DecodePose(raw []float32, cfg DecoderConfig) (*entity.PoseDetection, error) {
	if want := OutputChannels * OutputAnchors; len(raw) != want {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrOutputShape, len(raw), want)
	}

	stride := cfg.AnchorStride
	if stride < 1 {
		stride = 1
	}

	at := func(channel, anchor int) float64 {
		return float64(raw[channel*OutputAnchors+anchor])
	}

	best := -1
	var bestObj float64
	for i := 0; i < OutputAnchors; i += stride {
		// strict comparison keeps the first anchor on ties
		if obj := at(objectnessChannel, i); obj > bestObj {
			bestObj = obj
			best = i
		}
	}

	if best < 0 || bestObj <= cfg.DetectionThreshold {
		return nil, nil
	}

	det := &entity.PoseDetection{
		Box: entity.Box{
			W: at(boxWidthChannel, best),
			H: at(boxHeightChannel, best),
		},
		Objectness: entity.ClampUnit(bestObj),
	}
	for k := 0; k < entity.NumKeypoints; k++ {
		base := keypointChannel + k*3
		det.Keypoints[k] = entity.Keypoint{
			X:          at(base, best),
			Y:          at(base+1, best),
			Confidence: entity.ClampUnit(at(base+2, best)),
		}
	}

	return det, nil
}
