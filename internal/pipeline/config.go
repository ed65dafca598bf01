package pipeline

import (
	"os"
	"strconv"
	"time"
)

// FallThreshold is the clip-level decision boundary: a clip is a fall when
// its max confidence is strictly greater than this value.
const FallThreshold = 0.45

const (
	OutputChannels   = 56
	OutputAnchors    = 8400
	DefaultInputSize = 640
)

type DecoderConfig struct {
	AnchorStride       int
	DetectionThreshold float64
}

// PostureThresholds are calibration constants for the geometric scorer.
// They are not physically derived.
type PostureThresholds struct {
	CompressionStrong        float64
	CompressionStrongWeight  float64
	CompressionPartial       float64
	CompressionPartialWeight float64

	SpineHorizontalDeg    float64
	SpineHorizontalWeight float64
	SpineLeaningDeg       float64
	SpineLeaningWeight    float64

	LowBodyRatio  float64
	LowBodyWeight float64

	AspectMin   float64
	AspectScale float64
	AspectCap   float64

	MaxRisk float64
}

type MotionConfig struct {
	SampleStride int
}

type ClipConfig struct {
	Duration      time.Duration
	Interval      time.Duration
	YieldInterval time.Duration
	InputSize     int
}

type RemoteConfig struct {
	URL     string
	Timeout time.Duration
}

type LocalConfig struct {
	ModelPath   string
	LibraryPath string
}

type Config struct {
	Decoder DecoderConfig
	Posture PostureThresholds
	Motion  MotionConfig
	Clip    ClipConfig
	Remote  RemoteConfig
	Local   LocalConfig
}

func DefaultDecoderConfig() DecoderConfig {
	return DecoderConfig{
		AnchorStride:       10,
		DetectionThreshold: 0.15,
	}
}

func DefaultPostureThresholds() PostureThresholds {
	return PostureThresholds{
		CompressionStrong:        0.25,
		CompressionStrongWeight:  0.9,
		CompressionPartial:       0.35,
		CompressionPartialWeight: 0.6,

		SpineHorizontalDeg:    35,
		SpineHorizontalWeight: 0.85,
		SpineLeaningDeg:       20,
		SpineLeaningWeight:    0.5,

		LowBodyRatio:  0.6,
		LowBodyWeight: 0.7,

		AspectMin:   1.2,
		AspectScale: 0.3,
		AspectCap:   0.5,

		MaxRisk: 0.99,
	}
}

func DefaultConfig() Config {
	return Config{
		Decoder: DefaultDecoderConfig(),
		Posture: DefaultPostureThresholds(),
		Motion:  MotionConfig{SampleStride: 100},
		Clip: ClipConfig{
			Duration:      5000 * time.Millisecond,
			Interval:      1500 * time.Millisecond,
			YieldInterval: 50 * time.Millisecond,
			InputSize:     DefaultInputSize,
		},
		Remote: RemoteConfig{Timeout: 8 * time.Second},
	}
}

// ConfigFromEnv starts from DefaultConfig and applies any overrides found in
// the environment. Malformed values are ignored.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	cfg.Remote.URL = os.Getenv("REMOTE_INFERENCE_URL")
	cfg.Remote.Timeout = envMillis("REMOTE_INFERENCE_TIMEOUT_MS", cfg.Remote.Timeout)
	cfg.Local.ModelPath = os.Getenv("POSE_MODEL_PATH")
	cfg.Local.LibraryPath = os.Getenv("ONNXRUNTIME_LIB_PATH")

	cfg.Clip.InputSize = envInt("MODEL_INPUT_SIZE", cfg.Clip.InputSize)
	cfg.Clip.Duration = envMillis("CLIP_DURATION_MS", cfg.Clip.Duration)
	cfg.Clip.Interval = envMillis("CLIP_INTERVAL_MS", cfg.Clip.Interval)
	cfg.Clip.YieldInterval = envMillis("CLIP_YIELD_MS", cfg.Clip.YieldInterval)

	cfg.Decoder.AnchorStride = envInt("POSE_ANCHOR_STRIDE", cfg.Decoder.AnchorStride)
	cfg.Decoder.DetectionThreshold = envFloat("POSE_DETECTION_THRESHOLD", cfg.Decoder.DetectionThreshold)
	cfg.Motion.SampleStride = envInt("MOTION_SAMPLE_STRIDE", cfg.Motion.SampleStride)

	p := &cfg.Posture
	p.CompressionStrong = envFloat("POSTURE_COMPRESSION_STRONG", p.CompressionStrong)
	p.CompressionStrongWeight = envFloat("POSTURE_COMPRESSION_STRONG_WEIGHT", p.CompressionStrongWeight)
	p.CompressionPartial = envFloat("POSTURE_COMPRESSION_PARTIAL", p.CompressionPartial)
	p.CompressionPartialWeight = envFloat("POSTURE_COMPRESSION_PARTIAL_WEIGHT", p.CompressionPartialWeight)
	p.SpineHorizontalDeg = envFloat("POSTURE_SPINE_HIGH_DEG", p.SpineHorizontalDeg)
	p.SpineHorizontalWeight = envFloat("POSTURE_SPINE_HIGH_WEIGHT", p.SpineHorizontalWeight)
	p.SpineLeaningDeg = envFloat("POSTURE_SPINE_LOW_DEG", p.SpineLeaningDeg)
	p.SpineLeaningWeight = envFloat("POSTURE_SPINE_LOW_WEIGHT", p.SpineLeaningWeight)
	p.LowBodyRatio = envFloat("POSTURE_LOW_BODY_RATIO", p.LowBodyRatio)
	p.LowBodyWeight = envFloat("POSTURE_LOW_BODY_WEIGHT", p.LowBodyWeight)
	p.AspectMin = envFloat("POSTURE_ASPECT_MIN", p.AspectMin)
	p.AspectScale = envFloat("POSTURE_ASPECT_SCALE", p.AspectScale)
	p.AspectCap = envFloat("POSTURE_ASPECT_CAP", p.AspectCap)
	p.MaxRisk = envFloat("POSTURE_MAX_RISK", p.MaxRisk)

	return cfg
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func envFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return def
	}
	return v
}

func envMillis(key string, def time.Duration) time.Duration {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v < 0 {
		return def
	}
	return time.Duration(v) * time.Millisecond
}
