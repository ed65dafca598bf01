package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"HealthVision/internal/entity"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

var (
	ErrBadStatus        = errors.New("remote inference returned non-2xx status")
	ErrMalformedPayload = errors.New("remote inference returned a malformed payload")
	ErrCircuitOpen      = errors.New("remote inference circuit is open")
)

const maxResponseBytes = 1 << 20

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type IRemote interface {
	Predict(ctx context.Context, image []byte) (*entity.RemotePrediction, error)
}

type Config struct {
	URL string
	// Timeout bounds one HTTP round trip, on top of whatever deadline ctx carries.
	Timeout time.Duration
	// MaxFailures consecutive failures open the breaker for OpenTimeout.
	MaxFailures uint32
	OpenTimeout time.Duration
}

type remoteClient struct {
	url     string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *logrus.Logger
}

func New(cfg Config, log *logrus.Logger) IRemote {
	return NewWithHTTPClient(cfg, &http.Client{Timeout: cfg.Timeout}, log)
}

func NewWithHTTPClient(cfg Config, client *http.Client, log *logrus.Logger) IRemote {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	r := &remoteClient{
		url:  cfg.URL,
		http: client,
		log:  log,
	}

	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "remote-inference",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		// a clip being cancelled says nothing about the endpoint's health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Remote inference circuit changed state")
		},
	})

	return r
}

func (r *remoteClient) Predict(ctx context.Context, image []byte) (*entity.RemotePrediction, error) {
	res, err := r.breaker.Execute(func() (interface{}, error) {
		return r.post(ctx, image)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	if err != nil {
		return nil, err
	}
	return res.(*entity.RemotePrediction), nil
}

func (r *remoteClient) post(ctx context.Context, image []byte) (*entity.RemotePrediction, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(image); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"status":     resp.StatusCode,
		"latency_ms": time.Since(start).Milliseconds(),
	}).Debug("Remote inference responded")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	return decodePrediction(raw)
}

func decodePrediction(raw []byte) (*entity.RemotePrediction, error) {
	var pred entity.RemotePrediction
	if err := json.Unmarshal(raw, &pred); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if math.IsNaN(pred.Confidence) || pred.Confidence < 0 || pred.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v outside [0,1]", ErrMalformedPayload, pred.Confidence)
	}
	if n := len(pred.Keypoints); n != 0 && n != entity.NumKeypoints*3 {
		return nil, fmt.Errorf("%w: %d keypoint values", ErrMalformedPayload, n)
	}

	return &pred, nil
}
