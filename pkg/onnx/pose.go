package onnx

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"HealthVision/internal/pipeline"
	ort "github.com/yalue/onnxruntime_go"
)

var ErrDisabled = errors.New("local pose model is not configured")

const (
	inputName  = "images"
	outputName = "output0"
)

var (
	initOnce sync.Once
	initErr  error
)

func initRuntime(libraryPath string) error {
	initOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		initErr = ort.InitializeEnvironment()
	})
	return initErr
}

// NewFactory checks the model file and loads the runtime once. Each call of
// the returned factory opens an independent session with its own tensors.
func NewFactory(cfg pipeline.LocalConfig, inputSize int) (pipeline.ModelFactory, error) {
	if cfg.ModelPath == "" {
		return nil, ErrDisabled
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("pose model %s: %w", cfg.ModelPath, err)
	}
	if err := initRuntime(cfg.LibraryPath); err != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", err)
	}

	return func() (pipeline.PoseModel, error) {
		return newPoseSession(cfg.ModelPath, inputSize)
	}, nil
}

type poseSession struct {
	size    int
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func newPoseSession(modelPath string, size int) (*poseSession, error) {
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(size), int64(size)))
	if err != nil {
		return nil, err
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, pipeline.OutputChannels, pipeline.OutputAnchors))
	if err != nil {
		input.Destroy()
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, err
	}
	defer options.Destroy()

	// clips already run in parallel, keep each session single-threaded
	_ = options.SetIntraOpNumThreads(1)
	_ = options.SetInterOpNumThreads(1)

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{inputName},
		[]string{outputName},
		[]ort.Value{input},
		[]ort.Value{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, err
	}

	return &poseSession{size: size, session: session, input: input, output: output}, nil
}

func (p *poseSession) Run(t *pipeline.Tensor) ([]float32, error) {
	if t.Width != p.size || t.Height != p.size {
		return nil, fmt.Errorf("tensor is %dx%d, session expects %dx%d", t.Width, t.Height, p.size, p.size)
	}

	ToNCHW(t, p.input.GetData())
	if err := p.session.Run(); err != nil {
		return nil, err
	}

	out := p.output.GetData()
	res := make([]float32, len(out))
	copy(res, out)
	return res, nil
}

func (p *poseSession) Close() error {
	err := p.session.Destroy()
	p.input.Destroy()
	p.output.Destroy()
	return err
}

// ToNCHW reorders an interleaved [1,H,W,3] tensor into planar [1,3,H,W].
func ToNCHW(t *pipeline.Tensor, dst []float32) {
	plane := t.Width * t.Height
	for i := 0; i < plane; i++ {
		dst[i] = t.Data[i*3]
		dst[plane+i] = t.Data[i*3+1]
		dst[2*plane+i] = t.Data[i*3+2]
	}
}
