// Package transform defines the pluggable raster transform applied by the
// processing service.
package transform

import (
	"context"
	"image"
)

// Output bundles the processed raster with the scalar values the transform
// declares for the response metadata.
type Output struct {
	Image   image.Image
	Scalars map[string]float64
}

// Transform processes one raster image. Implementations must be
// deterministic: identical input pixels produce identical output pixels and
// scalars.
type Transform interface {
	Name() string
	Apply(ctx context.Context, src image.Image) (*Output, error)
}
