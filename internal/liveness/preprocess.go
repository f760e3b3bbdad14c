package liveness

import (
	"errors"
	"image"

	"github.com/disintegration/imaging"

	"github.com/kozaktomas/face-service/internal/facematch"
)

// ErrEmptyCrop means the expanded face region lies outside the image.
var ErrEmptyCrop = errors.New("face crop is empty")

// Preprocessing describes how a face region becomes the model's input tensor.
type Preprocessing struct {
	Width      int
	Height     int
	CropScale  float64 // square side as a multiple of the longer face edge
	PixelScale float64 // multiplier applied to 0-255 channel values
	BGR        bool    // channel order of the tensor
}

// Shape returns the NCHW tensor shape for one image.
func (p Preprocessing) Shape() []int {
	return []int{1, 3, p.Height, p.Width}
}

// Tensor crops a square around the face, resizes it bilinearly and lays it out
// as a planar CHW float tensor.
func (p Preprocessing) Tensor(img image.Image, box facematch.BBox) ([]float32, error) {
	region := facematch.ExpandSquare(box, p.CropScale, img.Bounds())
	if region.Empty() {
		return nil, ErrEmptyCrop
	}

	crop := imaging.Crop(img, region)
	resized := imaging.Resize(crop, p.Width, p.Height, imaging.Linear)

	plane := p.Width * p.Height
	tensor := make([]float32, 3*plane)
	r, g, b := 0, 1, 2
	if p.BGR {
		r, b = 2, 0
	}
	for y := range p.Height {
		row := resized.Pix[y*resized.Stride:]
		for x := range p.Width {
			px := row[x*4 : x*4+3]
			i := y*p.Width + x
			tensor[r*plane+i] = float32(float64(px[0]) * p.PixelScale)
			tensor[g*plane+i] = float32(float64(px[1]) * p.PixelScale)
			tensor[b*plane+i] = float32(float64(px[2]) * p.PixelScale)
		}
	}
	return tensor, nil
}
