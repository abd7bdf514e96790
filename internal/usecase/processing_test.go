package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/photo-capture/internal/imaging"
	"github.com/example/photo-capture/internal/repository"
	"github.com/example/photo-capture/internal/transform"
	"github.com/example/photo-capture/pkg/models"
)

type stubTransform struct {
	err     error
	calls   int
	scalars map[string]float64
}

func (s *stubTransform) Name() string { return "stub-4x4" }

func (s *stubTransform) Apply(ctx context.Context, src image.Image) (*transform.Output, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range out.Pix {
		out.Pix[i] = uint8(i * 16)
	}
	return &transform.Output{Image: out, Scalars: s.scalars}, nil
}

type stubRepository struct {
	savedLogs []*repository.CaptureLog
	saveErr   error
	recent    []*repository.CaptureLog
	agg       *repository.MetricsAggregation
	aggErr    error
}

func (s *stubRepository) SaveLog(ctx context.Context, log *repository.CaptureLog) error {
	s.savedLogs = append(s.savedLogs, log)
	return s.saveErr
}

func (s *stubRepository) ListRecent(ctx context.Context, limit int) ([]*repository.CaptureLog, error) {
	return s.recent, nil
}

func (s *stubRepository) AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error) {
	if s.aggErr != nil {
		return nil, s.aggErr
	}
	return s.agg, nil
}

type stubCache struct {
	setErrs   []error
	getErrs   []error
	getValues []string
	setKeys   []string
	setValues []string
	getKeys   []string
}

func (s *stubCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	s.setKeys = append(s.setKeys, key)
	if str, ok := value.(string); ok {
		s.setValues = append(s.setValues, str)
	}
	if len(s.setErrs) == 0 {
		return nil
	}
	err := s.setErrs[0]
	s.setErrs = s.setErrs[1:]
	return err
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	s.getKeys = append(s.getKeys, key)
	var value string
	if len(s.getValues) > 0 {
		value = s.getValues[0]
		s.getValues = s.getValues[1:]
	}
	var err error
	if len(s.getErrs) > 0 {
		err = s.getErrs[0]
		s.getErrs = s.getErrs[1:]
	}
	return value, err
}

type stubSink struct {
	saved [][]byte
	names []string
}

func (s *stubSink) Save(data []byte, suggestedFilename string) {
	s.saved = append(s.saved, data)
	s.names = append(s.names, suggestedFilename)
}

type memoryCache struct {
	entries map[string]string
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.entries == nil {
		m.entries = map[string]string{}
	}
	if str, ok := value.(string); ok {
		m.entries[key] = str
	}
	return nil
}

func (m *memoryCache) Get(ctx context.Context, key string) (string, error) {
	value, ok := m.entries[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

type transientCacheError struct{}

func (transientCacheError) Error() string   { return "cache transient" }
func (transientCacheError) Timeout() bool   { return true }
func (transientCacheError) Temporary() bool { return true }

func encodedTestFrame(t *testing.T, width, height int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 20), G: uint8(y * 30), B: 10, A: 255})
		}
	}
	payload, err := imaging.EncodeBase64PNG(img)
	if err != nil {
		t.Fatalf("failed to encode test frame: %v", err)
	}
	return payload
}

func TestProcessReturnsPairedResultAndMetadata(t *testing.T) {
	tf := &stubTransform{scalars: map[string]float64{"value_min": 0.5, "value_max": 1}}
	repo := &stubRepository{}
	sink := &stubSink{}
	uc := NewProcessingUseCase(tf, nil, repo, sink, zap.NewNop())

	resp, err := uc.Process(context.Background(), models.ProcessingRequest{
		Image:    encodedTestFrame(t, 8, 6),
		Filename: "frame.png",
	})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	processed, decodeErr := imaging.DecodeBase64PNG(resp.ProcessedImage)
	if decodeErr != nil {
		t.Fatalf("processed image does not decode: %v", decodeErr)
	}
	if processed.Bounds().Dx() != 4 || processed.Bounds().Dy() != 4 {
		t.Fatalf("unexpected processed bounds: %v", processed.Bounds())
	}

	meta := resp.Metadata
	if meta.Width != 4 || meta.Height != 4 {
		t.Fatalf("unexpected processed dimensions: %dx%d", meta.Width, meta.Height)
	}
	if meta.OriginalWidth != 8 || meta.OriginalHeight != 6 {
		t.Fatalf("unexpected original dimensions: %dx%d", meta.OriginalWidth, meta.OriginalHeight)
	}
	if meta.OriginalFilename != "frame.png" {
		t.Fatalf("filename not carried through: %q", meta.OriginalFilename)
	}
	if meta.Extra["value_max"] != 1 {
		t.Fatalf("transform scalars not in metadata: %+v", meta.Extra)
	}

	if len(repo.savedLogs) != 1 {
		t.Fatalf("expected one persisted log, got %d", len(repo.savedLogs))
	}
	if repo.savedLogs[0].Width != 4 || repo.savedLogs[0].ValueMax != 1 {
		t.Fatalf("log fields wrong: %+v", repo.savedLogs[0])
	}
	if len(sink.saved) != 1 || sink.names[0] != "frame.png" {
		t.Fatalf("sink did not receive the original capture: %d saves", len(sink.saved))
	}
}

func TestProcessRejectsInvalidEncoding(t *testing.T) {
	tf := &stubTransform{}
	uc := NewProcessingUseCase(tf, nil, nil, nil, zap.NewNop())

	for _, payload := range []string{"", "not-base64!!!", "aGVsbG8gd29ybGQ="} {
		resp, err := uc.Process(context.Background(), models.ProcessingRequest{Image: payload})
		if resp != nil {
			t.Fatalf("payload %q: expected nil response, got %+v", payload, resp)
		}
		if !errors.Is(err, ErrInvalidImageEncoding) {
			t.Fatalf("payload %q: expected ErrInvalidImageEncoding, got %v", payload, err)
		}
	}
	if tf.calls != 0 {
		t.Fatalf("transform must not run on undecodable input, ran %d times", tf.calls)
	}
}

func TestProcessTransformFailureReturnsNoPartialResult(t *testing.T) {
	tf := &stubTransform{err: errors.New("kernel exploded")}
	uc := NewProcessingUseCase(tf, nil, nil, nil, zap.NewNop())

	resp, err := uc.Process(context.Background(), models.ProcessingRequest{Image: encodedTestFrame(t, 4, 4)})
	if resp != nil {
		t.Fatalf("expected nil response on transform failure, got %+v", resp)
	}
	if !errors.Is(err, ErrTransform) {
		t.Fatalf("expected ErrTransform, got %v", err)
	}
}

func TestProcessIsIdempotent(t *testing.T) {
	tf := &stubTransform{scalars: map[string]float64{"value_max": 1}}
	uc := NewProcessingUseCase(tf, nil, nil, nil, zap.NewNop())
	req := models.ProcessingRequest{Image: encodedTestFrame(t, 8, 8), Filename: "same.png"}

	first, err := uc.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	second, err := uc.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}

	if first.ProcessedImage != second.ProcessedImage {
		t.Fatal("identical input produced different processed images")
	}
	a, _ := json.Marshal(first.Metadata)
	b, _ := json.Marshal(second.Metadata)
	if string(a) != string(b) {
		t.Fatalf("identical input produced different metadata: %s vs %s", a, b)
	}
}

func TestProcessServesCachedResult(t *testing.T) {
	cachedResp := models.ProcessingResponse{
		ProcessedImage: "cached-payload",
		Metadata:       models.Metadata{Width: 4, Height: 4},
	}
	serialized, _ := json.Marshal(cachedResp)

	tf := &stubTransform{}
	cache := &stubCache{getValues: []string{string(serialized)}}
	uc := NewProcessingUseCase(tf, cache, nil, nil, zap.NewNop())

	resp, err := uc.Process(context.Background(), models.ProcessingRequest{Image: encodedTestFrame(t, 4, 4)})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if resp.ProcessedImage != "cached-payload" {
		t.Fatalf("expected cached payload, got %q", resp.ProcessedImage)
	}
	if tf.calls != 0 {
		t.Fatalf("transform must not run on cache hit, ran %d times", tf.calls)
	}
}

func TestProcessCacheHitUsesRequestFilename(t *testing.T) {
	tf := &stubTransform{scalars: map[string]float64{"value_max": 1}}
	cache := &memoryCache{}
	sink := &stubSink{}
	uc := NewProcessingUseCase(tf, cache, nil, sink, zap.NewNop())

	frame := encodedTestFrame(t, 8, 8)

	first, err := uc.Process(context.Background(), models.ProcessingRequest{Image: frame, Filename: "alice.png"})
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if first.Metadata.OriginalFilename != "alice.png" {
		t.Fatalf("first filename wrong: %q", first.Metadata.OriginalFilename)
	}

	second, err := uc.Process(context.Background(), models.ProcessingRequest{Image: frame, Filename: "bob.png"})
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if tf.calls != 1 {
		t.Fatalf("expected cache hit on second call, transform ran %d times", tf.calls)
	}
	if second.Metadata.OriginalFilename != "bob.png" {
		t.Fatalf("cache hit returned stale filename: got %q, want %q", second.Metadata.OriginalFilename, "bob.png")
	}
	if second.ProcessedImage != first.ProcessedImage {
		t.Fatal("cache hit changed the processed image")
	}

	// Every request hands its original to the sink, hit or miss.
	if len(sink.names) != 2 || sink.names[0] != "alice.png" || sink.names[1] != "bob.png" {
		t.Fatalf("sink missed a capture: %v", sink.names)
	}
}

func TestProcessRetriesTransientCacheSet(t *testing.T) {
	tf := &stubTransform{}
	cache := &stubCache{
		getErrs: []error{redis.Nil},
		setErrs: []error{transientCacheError{}},
	}
	uc := NewProcessingUseCase(tf, cache, nil, nil, zap.NewNop())
	uc.initialBackoff = time.Millisecond
	uc.maxBackoff = 2 * time.Millisecond

	resp, err := uc.Process(context.Background(), models.ProcessingRequest{Image: encodedTestFrame(t, 4, 4)})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if resp == nil {
		t.Fatal("expected response")
	}
	if len(cache.setKeys) < 2 {
		t.Fatalf("expected retried set, got %d attempts", len(cache.setKeys))
	}
	if cache.setKeys[0] != cache.setKeys[1] {
		t.Fatalf("retry targeted a different key: %s vs %s", cache.setKeys[0], cache.setKeys[1])
	}
}

func TestProcessCacheFailureIsNotFatal(t *testing.T) {
	tf := &stubTransform{}
	cache := &stubCache{
		getErrs: []error{errors.New("cache down")},
		setErrs: []error{errors.New("cache down")},
	}
	uc := NewProcessingUseCase(tf, cache, nil, nil, zap.NewNop())

	resp, err := uc.Process(context.Background(), models.ProcessingRequest{Image: encodedTestFrame(t, 4, 4)})
	if err != nil {
		t.Fatalf("cache failure must not fail the cycle: %v", err)
	}
	if resp == nil || resp.ProcessedImage == "" {
		t.Fatal("expected a full response despite cache failure")
	}
}

func TestProcessRepositoryFailureIsNotFatal(t *testing.T) {
	tf := &stubTransform{}
	repo := &stubRepository{saveErr: errors.New("db down")}
	uc := NewProcessingUseCase(tf, nil, repo, nil, zap.NewNop())

	resp, err := uc.Process(context.Background(), models.ProcessingRequest{Image: encodedTestFrame(t, 4, 4)})
	if err != nil {
		t.Fatalf("persistence failure must not fail the cycle: %v", err)
	}
	if resp == nil {
		t.Fatal("expected a response despite persistence failure")
	}
}

func TestHistoryEndpointsWithoutRepository(t *testing.T) {
	uc := NewProcessingUseCase(&stubTransform{}, nil, nil, nil, zap.NewNop())

	if _, err := uc.RecentCaptures(context.Background(), 10); !errors.Is(err, ErrHistoryDisabled) {
		t.Fatalf("expected ErrHistoryDisabled, got %v", err)
	}
	if _, err := uc.GetMetricsSummary(context.Background()); !errors.Is(err, ErrHistoryDisabled) {
		t.Fatalf("expected ErrHistoryDisabled, got %v", err)
	}
}

func TestGetMetricsSummary(t *testing.T) {
	repo := &stubRepository{agg: &repository.MetricsAggregation{
		TotalCount:      5,
		AverageWidth:    64,
		AverageHeight:   64,
		AverageValueMax: 0.9,
	}}
	uc := NewProcessingUseCase(&stubTransform{}, nil, repo, nil, zap.NewNop())

	summary, err := uc.GetMetricsSummary(context.Background())
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if summary.TotalCaptures != 5 || summary.AverageValueMax != 0.9 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
