package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/photo-capture/internal/imaging"
	"github.com/example/photo-capture/internal/logging"
	"github.com/example/photo-capture/internal/repository"
	"github.com/example/photo-capture/internal/transform"
	"github.com/example/photo-capture/pkg/models"
)

// Sentinel errors for the two failure classes the service reports to clients.
var (
	ErrInvalidImageEncoding = errors.New("invalid image encoding")
	ErrTransform            = errors.New("image transform failed")
	ErrHistoryDisabled      = errors.New("capture history is disabled")
)

// CaptureLogRepository defines the persistence operations needed by the use case.
type CaptureLogRepository interface {
	SaveLog(ctx context.Context, log *repository.CaptureLog) error
	ListRecent(ctx context.Context, limit int) ([]*repository.CaptureLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// Sink receives the original capture bytes for out-of-band persistence. It
// must never block the caller.
type Sink interface {
	Save(data []byte, suggestedFilename string)
}

// ProcessingUseCase implements the process contract: decode, transform,
// compute metadata, re-encode. Cache, repository, and sink are optional
// collaborators; a nil value disables the concern.
type ProcessingUseCase struct {
	transform      transform.Transform
	cache          Cache
	repo           CaptureLogRepository
	sink           Sink
	logger         *zap.Logger
	cacheTTL       time.Duration
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewProcessingUseCase constructs a new use case instance.
func NewProcessingUseCase(tf transform.Transform, cache Cache, repo CaptureLogRepository, sink Sink, logger *zap.Logger) *ProcessingUseCase {
	return &ProcessingUseCase{
		transform:      tf,
		cache:          cache,
		repo:           repo,
		sink:           sink,
		logger:         logger.Named("processing_usecase"),
		cacheTTL:       5 * time.Minute,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// Process runs one capture through the full contract. The response always
// pairs the processed image with its metadata; on error no partial result is
// returned.
func (uc *ProcessingUseCase) Process(ctx context.Context, req models.ProcessingRequest) (*models.ProcessingResponse, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.process", requestID)

	src, raw, err := imaging.DecodeBase64Image(req.Image)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.decode_image", requestID,
			fmt.Errorf("%w: %v", ErrInvalidImageEncoding, err))
		opLogger.Warn("rejected undecodable payload", zap.Error(wrapped))
		return nil, wrapped
	}

	hash := sha1.Sum(raw)
	cacheKey := fmt.Sprintf("process:%s:%s", uc.transform.Name(), hex.EncodeToString(hash[:]))

	if uc.sink != nil {
		uc.sink.Save(raw, req.Filename)
	}

	// Cached entries are keyed by pixel content and transform only, so the
	// filename is request state stitched back in on every hit.
	if cached, ok := uc.cachedResponse(ctx, requestID, cacheKey); ok {
		cached.Metadata.OriginalFilename = req.Filename
		opLogger.Debug("serving cached result", zap.String("cache_key", cacheKey))
		return cached, nil
	}

	out, err := uc.transform.Apply(ctx, src)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.apply_transform", requestID,
			fmt.Errorf("%w: %v", ErrTransform, err))
		opLogger.Error("transform failed", zap.Error(wrapped))
		return nil, wrapped
	}

	encoded, err := imaging.EncodeBase64PNG(out.Image)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.encode_result", requestID,
			fmt.Errorf("%w: %v", ErrTransform, err))
		opLogger.Error("result encoding failed", zap.Error(wrapped))
		return nil, wrapped
	}

	srcBounds := src.Bounds()
	outBounds := out.Image.Bounds()
	resp := &models.ProcessingResponse{
		ProcessedImage: encoded,
		Metadata: models.Metadata{
			Width:            outBounds.Dx(),
			Height:           outBounds.Dy(),
			OriginalWidth:    srcBounds.Dx(),
			OriginalHeight:   srcBounds.Dy(),
			OriginalFilename: req.Filename,
			Extra:            out.Scalars,
		},
	}

	uc.persistLog(ctx, requestID, resp)
	uc.cacheResponse(ctx, requestID, cacheKey, resp)

	opLogger.Info("capture processed",
		zap.Int("width", resp.Metadata.Width),
		zap.Int("height", resp.Metadata.Height),
		zap.Int("original_width", resp.Metadata.OriginalWidth),
		zap.Int("original_height", resp.Metadata.OriginalHeight))

	return resp, nil
}

// RecentCaptures lists persisted capture logs, newest first.
func (uc *ProcessingUseCase) RecentCaptures(ctx context.Context, limit int) ([]*repository.CaptureLog, error) {
	if uc.repo == nil {
		return nil, ErrHistoryDisabled
	}
	return uc.repo.ListRecent(ctx, limit)
}

func (uc *ProcessingUseCase) cachedResponse(ctx context.Context, requestID, cacheKey string) (*models.ProcessingResponse, bool) {
	if uc.cache == nil {
		return nil, false
	}
	opLogger := logging.WithOperation(uc.logger, "cache.get.result", requestID)

	var serialized string
	err := uc.withCacheRetry(ctx, requestID, "cache.get.result", func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		serialized = value
		return nil
	})
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			opLogger.Warn("failed to read result cache", zap.Error(err))
		}
		return nil, false
	}

	var resp models.ProcessingResponse
	if err := json.Unmarshal([]byte(serialized), &resp); err != nil {
		opLogger.Warn("failed to decode cached result", zap.Error(err))
		return nil, false
	}
	return &resp, true
}

// cacheResponse and persistLog are best-effort: the capture cycle must
// survive without either collaborator, so failures are logged, not returned.
func (uc *ProcessingUseCase) cacheResponse(ctx context.Context, requestID, cacheKey string, resp *models.ProcessingResponse) {
	if uc.cache == nil {
		return
	}
	opLogger := logging.WithOperation(uc.logger, "cache.set.result", requestID)

	// The key carries no filename, so the entry must not either.
	toCache := *resp
	toCache.Metadata.OriginalFilename = ""
	serialized, err := json.Marshal(toCache)
	if err != nil {
		opLogger.Warn("failed to serialize result for cache", zap.Error(err))
		return
	}
	if err := uc.withCacheRetry(ctx, requestID, "cache.set.result", func() error {
		return uc.cache.Set(ctx, cacheKey, string(serialized), uc.cacheTTL)
	}); err != nil {
		opLogger.Warn("failed to cache result", zap.Error(err))
	}
}

func (uc *ProcessingUseCase) persistLog(ctx context.Context, requestID string, resp *models.ProcessingResponse) {
	if uc.repo == nil {
		return
	}
	log := &repository.CaptureLog{
		RequestID:      requestID,
		Filename:       resp.Metadata.OriginalFilename,
		Width:          resp.Metadata.Width,
		Height:         resp.Metadata.Height,
		OriginalWidth:  resp.Metadata.OriginalWidth,
		OriginalHeight: resp.Metadata.OriginalHeight,
		ValueMin:       resp.Metadata.Extra["value_min"],
		ValueMax:       resp.Metadata.Extra["value_max"],
		CreatedAt:      time.Now().UTC(),
	}
	if err := uc.repo.SaveLog(ctx, log); err != nil {
		logging.WithOperation(uc.logger, "usecase.save_log", requestID).
			Warn("failed to persist capture log", zap.Error(err))
	}
}

func (uc *ProcessingUseCase) withCacheRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		err := fn()
		return logging.NewOperationError(operation, requestID, err)
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("cache operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if errors.Is(err, redis.Nil) || !isTransientError(err) || attempt == uc.retryAttempts-1 {
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient cache error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
