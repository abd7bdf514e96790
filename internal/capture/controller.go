package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/photo-capture/internal/imaging"
	"github.com/example/photo-capture/pkg/models"
)

// Options tunes a Controller. Zero values fall back to sensible defaults.
type Options struct {
	CountdownTicks int
	TickInterval   time.Duration
	SubmitTimeout  time.Duration
	Filename       string

	// OnTransition is invoked after every state change with a session
	// snapshot. OnTick is invoked once per countdown tick with the remaining
	// tick count. Both are optional and called outside the controller lock.
	OnTransition func(Session)
	OnTick       func(remaining int)
}

// Controller drives the capture cycle. All triggers are safe for concurrent
// use; at most one capture attempt is in flight at a time, enforced by the
// state machine itself.
type Controller struct {
	camera    Camera
	processor Processor
	logger    *zap.Logger
	opts      Options

	mu       sync.Mutex
	session  Session
	cancel   context.CancelFunc
	acquired bool
	closed   bool
}

// NewController builds a controller in Idle over the given camera and
// processing client.
func NewController(camera Camera, processor Processor, logger *zap.Logger, opts Options) *Controller {
	if opts.CountdownTicks <= 0 {
		opts.CountdownTicks = 3
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = 15 * time.Second
	}
	return &Controller{
		camera:    camera,
		processor: processor,
		logger:    logger.Named("capture_controller"),
		opts:      opts,
	}
}

// Snapshot returns a copy of the current session.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Start begins a capture attempt. It is a no-op outside Idle: the attempt is
// rejected with ErrInvalidTransition, logged, and the session is untouched.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.session.State != StateIdle {
		state := c.session.State
		c.mu.Unlock()
		c.logger.Warn("start rejected",
			zap.String("state", state.String()),
			zap.Error(ErrInvalidTransition))
		return ErrInvalidTransition
	}

	c.session.Generation++
	c.session.Err = nil
	gen := c.session.Generation

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	needAcquire := !c.acquired
	c.setStateLocked(StateCountdown)
	c.mu.Unlock()
	c.notifyTransition()

	go c.run(ctx, gen, needAcquire)
	return nil
}

// Reset is always accepted. It cancels any in-flight attempt, discards frame,
// encoded payload, result, and error, and returns the session to Idle. An
// async operation that completes after Reset sees a stale generation and its
// outcome is dropped.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.session = Session{Generation: c.session.Generation + 1}
	c.mu.Unlock()
	c.notifyTransition()
}

// CancelCountdown aborts a running countdown and returns to Idle without
// recording an error and without touching camera state. Outside Countdown it
// fails with ErrInvalidTransition.
func (c *Controller) CancelCountdown() error {
	c.mu.Lock()
	if c.session.State != StateCountdown {
		state := c.session.State
		c.mu.Unlock()
		c.logger.Warn("countdown cancel rejected", zap.String("state", state.String()))
		return ErrInvalidTransition
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.session = Session{Generation: c.session.Generation + 1}
	c.mu.Unlock()
	c.notifyTransition()
	return nil
}

// Close tears the controller down: resets the session and releases the
// camera. The controller cannot be reused afterwards.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.session = Session{Generation: c.session.Generation + 1}
	release := c.acquired
	c.acquired = false
	c.mu.Unlock()

	if release {
		if err := c.camera.Release(); err != nil {
			c.logger.Warn("camera release failed", zap.Error(err))
			return err
		}
	}
	return nil
}

// run executes one capture attempt. Each stage revalidates the generation
// before mutating the session, so a Reset anywhere along the way makes the
// rest of the attempt inert.
func (c *Controller) run(ctx context.Context, gen uint64, needAcquire bool) {
	if needAcquire {
		if err := c.camera.Acquire(ctx); err != nil {
			c.fail(gen, &Error{Kind: ErrorCameraAccess, Message: "camera access denied", Err: err})
			return
		}
		c.mu.Lock()
		c.acquired = true
		c.mu.Unlock()
	}

	for remaining := c.opts.CountdownTicks; remaining > 0; remaining-- {
		if c.opts.OnTick != nil {
			c.opts.OnTick(remaining)
		}
		select {
		case <-ctx.Done():
			// Countdown canceled or reset; state was already handled there.
			return
		case <-time.After(c.opts.TickInterval):
		}
	}

	if !c.advance(gen, StateCapturing) {
		return
	}
	frame, err := c.camera.Frame(ctx)
	if err != nil {
		c.fail(gen, &Error{Kind: ErrorCameraRead, Message: "failed to read a frame from the camera", Err: err})
		return
	}

	c.mu.Lock()
	if gen != c.session.Generation {
		c.mu.Unlock()
		return
	}
	c.session.RawFrame = frame
	c.setStateLocked(StateEncoding)
	c.mu.Unlock()
	c.notifyTransition()

	encoded, err := imaging.EncodeBase64PNG(frame)
	if err != nil {
		c.fail(gen, &Error{Kind: ErrorEncoding, Message: "failed to encode the captured frame", Err: err})
		return
	}

	c.mu.Lock()
	if gen != c.session.Generation {
		c.mu.Unlock()
		return
	}
	c.session.EncodedImage = encoded
	c.setStateLocked(StateSubmitting)
	c.mu.Unlock()
	c.notifyTransition()

	if !c.advance(gen, StateAwaitingResult) {
		return
	}

	submitCtx, cancel := context.WithTimeout(ctx, c.opts.SubmitTimeout)
	defer cancel()

	resp, err := c.processor.Process(submitCtx, models.ProcessingRequest{
		Image:    encoded,
		Filename: c.opts.Filename,
	})
	if err != nil {
		c.fail(gen, classifySubmitError(err))
		return
	}

	c.mu.Lock()
	if gen != c.session.Generation || c.session.State != StateAwaitingResult {
		c.mu.Unlock()
		c.logger.Info("discarding stale processing result", zap.Uint64("generation", gen))
		return
	}
	c.session.Result = resp
	c.session.EncodedImage = ""
	c.setStateLocked(StateDisplaying)
	c.mu.Unlock()
	c.notifyTransition()
}

// advance moves to the next state if the attempt is still current.
func (c *Controller) advance(gen uint64, next State) bool {
	c.mu.Lock()
	if gen != c.session.Generation {
		c.mu.Unlock()
		return false
	}
	c.setStateLocked(next)
	c.mu.Unlock()
	c.notifyTransition()
	return true
}

// fail funnels every attempt failure into the session error and forces Idle,
// so the cycle can always be restarted.
func (c *Controller) fail(gen uint64, capErr *Error) {
	c.mu.Lock()
	if gen != c.session.Generation {
		c.mu.Unlock()
		c.logger.Info("discarding stale failure", zap.Uint64("generation", gen), zap.Error(capErr))
		return
	}
	c.session.RawFrame = nil
	c.session.EncodedImage = ""
	c.session.Result = nil
	c.session.Err = capErr
	c.cancel = nil
	c.setStateLocked(StateIdle)
	c.mu.Unlock()

	c.logger.Warn("capture attempt failed",
		zap.String("kind", capErr.Kind.String()),
		zap.Error(capErr))
	c.notifyTransition()
}

func (c *Controller) setStateLocked(next State) {
	c.logger.Debug("state transition",
		zap.String("from", c.session.State.String()),
		zap.String("to", next.String()),
		zap.Uint64("generation", c.session.Generation))
	c.session.State = next
}

func (c *Controller) notifyTransition() {
	if c.opts.OnTransition == nil {
		return
	}
	c.opts.OnTransition(c.Snapshot())
}

func classifySubmitError(err error) *Error {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return &Error{Kind: ErrorService, Message: svcErr.Message, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: ErrorTimeout, Message: "processing timed out", Err: err}
	}
	return &Error{Kind: ErrorNetwork, Message: "could not reach the processing service", Err: err}
}
