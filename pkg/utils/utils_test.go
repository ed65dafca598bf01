package utils

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/textproto"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestConformFrame_Resizes(t *testing.T) {
	u := New()

	tests := []struct {
		name string
		w, h int
	}{
		{name: "landscape", w: 64, h: 36},
		{name: "portrait", w: 20, h: 50},
		{name: "already square", w: 32, h: 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := u.ConformFrame(encodePNG(t, tt.w, tt.h), 32)
			require.NoError(t, err)

			cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
			require.NoError(t, err)
			assert.Equal(t, "jpeg", format)
			assert.Equal(t, 32, cfg.Width)
			assert.Equal(t, 32, cfg.Height)
		})
	}
}

func TestConformFrame_KeepsMatchingJPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	out, err := New().ConformFrame(buf.Bytes(), 16)
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), out)
}

func TestConformFrame_Errors(t *testing.T) {
	_, err := New().ConformFrame([]byte("nope"), 32)
	assert.Error(t, err)

	_, err = New().ConformFrame(encodePNG(t, 4, 4), 0)
	assert.Error(t, err)
}

func TestValidateImageFile(t *testing.T) {
	header := func(size int64, contentType string) *multipart.FileHeader {
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", contentType)
		return &multipart.FileHeader{Filename: "frame.jpg", Size: size, Header: h}
	}

	u := New()
	assert.NoError(t, u.ValidateImageFile(header(1024, "image/jpeg")))
	assert.ErrorIs(t, u.ValidateImageFile(nil), ErrNoFile)
	assert.ErrorIs(t, u.ValidateImageFile(header(6*1024*1024, "image/jpeg")), ErrFileTooLarge)
	assert.ErrorIs(t, u.ValidateImageFile(header(1024, "text/plain")), ErrNotAnImage)
}

func TestNewULIDFromTimestamp(t *testing.T) {
	now := time.Now()
	id, err := New().NewULIDFromTimestamp(now)
	require.NoError(t, err)

	parsed, err := ulid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(now), parsed.Time())
}
