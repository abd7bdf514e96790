// Package capture implements the client-side capture controller: a finite
// state machine that grabs one frame from a camera, ships it to the
// processing service, and holds the result for display until reset.
package capture

import (
	"image"

	"github.com/example/photo-capture/pkg/models"
)

// State enumerates the capture cycle positions.
type State int

const (
	StateIdle State = iota
	StateCountdown
	StateCapturing
	StateEncoding
	StateSubmitting
	StateAwaitingResult
	StateDisplaying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCountdown:
		return "countdown"
	case StateCapturing:
		return "capturing"
	case StateEncoding:
		return "encoding"
	case StateSubmitting:
		return "submitting"
	case StateAwaitingResult:
		return "awaiting_result"
	case StateDisplaying:
		return "displaying"
	}
	return "unknown"
}

// Session is the controller-owned capture state. Invariants: EncodedImage is
// non-empty only between Encoding and AwaitingResult; Result is non-nil only
// in Displaying. Generation distinguishes successive attempts so stale async
// completions can be discarded.
type Session struct {
	State        State
	RawFrame     image.Image
	EncodedImage string
	Result       *models.ProcessingResponse
	Err          *Error
	Generation   uint64
}
