package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

var (
	ErrFrameDecode     = errors.New("frame could not be decoded")
	ErrFrameDimensions = errors.New("frame dimensions do not match model input")
)

// Frame is one compressed image as handed over by a FrameSource.
type Frame struct {
	Data   []byte
	Width  int
	Height int
}

// Tensor is a [1, Height, Width, 3] RGB buffer with values in [0,1].
type Tensor struct {
	Data   []float32
	Width  int
	Height int
}

func (t *Tensor) Shape() [4]int {
	return [4]int{1, t.Height, t.Width, 3}
}

// EncodeFrame decodes f.Data and scales its RGB channels into [0,1]. The
// image must already have the requested dimensions; nothing is resized here.
func EncodeFrame(f Frame) (*Tensor, error) {
	img, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrameDecode, err)
	}

	b := img.Bounds()
	if b.Dx() != f.Width || b.Dy() != f.Height {
		return nil, fmt.Errorf("%w: got %dx%d, want %dx%d", ErrFrameDimensions, b.Dx(), b.Dy(), f.Width, f.Height)
	}

	t := &Tensor{
		Data:   make([]float32, f.Width*f.Height*3),
		Width:  f.Width,
		Height: f.Height,
	}

	j := 0
	switch src := img.(type) {
	case *image.YCbCr:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := src.YCbCrAt(x, y)
				r, g, bl := color.YCbCrToRGB(c.Y, c.Cb, c.Cr)
				t.Data[j] = float32(r) / 255
				t.Data[j+1] = float32(g) / 255
				t.Data[j+2] = float32(bl) / 255
				j += 3
			}
		}
	case *image.NRGBA:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := src.Pix[(y-b.Min.Y)*src.Stride:]
			for x := 0; x < b.Dx(); x++ {
				p := row[x*4 : x*4+3]
				t.Data[j] = float32(p[0]) / 255
				t.Data[j+1] = float32(p[1]) / 255
				t.Data[j+2] = float32(p[2]) / 255
				j += 3
			}
		}
	default:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				t.Data[j] = float32(c.R) / 255
				t.Data[j+1] = float32(c.G) / 255
				t.Data[j+2] = float32(c.B) / 255
				j += 3
			}
		}
	}

	return t, nil
}
