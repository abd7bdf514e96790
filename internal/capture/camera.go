package capture

import (
	"context"
	"image"

	"github.com/example/photo-capture/pkg/models"
)

// Camera is the single owned frame source for a controller. Acquire is called
// on the first Idle→Countdown transition and Release on controller teardown;
// canceling a countdown never touches camera state.
type Camera interface {
	Acquire(ctx context.Context) error
	Frame(ctx context.Context) (image.Image, error)
	Release() error
}

// Processor submits one encoded capture to the processing service and returns
// the paired result. The production implementation is HTTPProcessor.
type Processor interface {
	Process(ctx context.Context, req models.ProcessingRequest) (*models.ProcessingResponse, error)
}
