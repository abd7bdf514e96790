package transform

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

const (
	// DefaultTargetWidth and DefaultTargetHeight match the original capture
	// pipeline output size.
	DefaultTargetWidth  = 64
	DefaultTargetHeight = 64
)

// Pipeline is the default transform: grayscale conversion, anti-aliased
// resize to a fixed target, then brightness normalization against the
// brightest pixel. It declares value_min and value_max scalars describing the
// normalized range.
type Pipeline struct {
	width  int
	height int
}

// NewPipeline builds a pipeline targeting the given output size. Non-positive
// dimensions fall back to the defaults.
func NewPipeline(width, height int) *Pipeline {
	if width <= 0 {
		width = DefaultTargetWidth
	}
	if height <= 0 {
		height = DefaultTargetHeight
	}
	return &Pipeline{width: width, height: height}
}

// Name identifies the pipeline and its target size, so cached results keyed
// by transform name never collide across configurations.
func (p *Pipeline) Name() string {
	return fmt.Sprintf("grayscale-%dx%d", p.width, p.height)
}

// Apply runs the three stages, honoring ctx cancellation between them.
func (p *Pipeline) Apply(ctx context.Context, src image.Image) (*Output, error) {
	if src == nil {
		return nil, errors.New("nil source image")
	}
	bounds := src.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("degenerate source bounds %v", bounds)
	}

	gray := image.NewGray(bounds)
	xdraw.Draw(gray, bounds, src, bounds.Min, xdraw.Src)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resized := image.NewGray(image.Rect(0, 0, p.width, p.height))
	xdraw.CatmullRom.Scale(resized, resized.Bounds(), gray, bounds, xdraw.Src, nil)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	valueMin, valueMax := normalize(resized)

	return &Output{
		Image: resized,
		Scalars: map[string]float64{
			"value_min": valueMin,
			"value_max": valueMax,
		},
	}, nil
}

// normalize stretches pixel values so the brightest pixel reaches full scale,
// mirroring a divide-by-max normalization on a unit-range raster. Returns the
// normalized min and max on the [0,1] scale.
func normalize(img *image.Gray) (float64, float64) {
	var min, max uint8 = 255, 0
	for _, v := range img.Pix {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max == 0 {
		// All-black frame: nothing to scale against.
		return 0, 0
	}

	for i, v := range img.Pix {
		img.Pix[i] = uint8(math.Round(float64(v) * 255 / float64(max)))
	}
	return float64(min) / float64(max), 1
}
