// Package storage persists captured originals to disk without ever blocking
// the processing response path.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type saveJob struct {
	data []byte
	name string
}

// DiskSink writes captures to a directory through a buffered queue served by
// a single writer goroutine. Save never blocks: when the queue is full the
// capture is dropped with a log entry.
type DiskSink struct {
	dir    string
	logger *zap.Logger
	jobs   chan saveJob
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewDiskSink creates the directory if needed and starts the writer.
func NewDiskSink(dir string, queueSize int, logger *zap.Logger) (*DiskSink, error) {
	if dir == "" {
		return nil, errors.New("storage directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	if queueSize <= 0 {
		queueSize = 16
	}

	s := &DiskSink{
		dir:    dir,
		logger: logger.Named("disk_sink"),
		jobs:   make(chan saveJob, queueSize),
	}
	s.wg.Add(1)
	go s.writer()
	return s, nil
}

// Save enqueues one capture. The suggested filename only contributes its
// extension; saved files always get a unique name so captures are never
// overwritten.
func (s *DiskSink) Save(data []byte, suggestedFilename string) {
	buf := make([]byte, len(data))
	copy(buf, data)

	// The enqueue happens under the same lock that closes the channel, so a
	// Save racing Close degrades to a logged drop instead of a panic.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logger.Warn("sink closed, dropping capture",
			zap.String("suggested_filename", suggestedFilename),
			zap.Int("size", len(data)))
		return
	}

	select {
	case s.jobs <- saveJob{data: buf, name: suggestedFilename}:
	default:
		s.logger.Warn("storage queue full, dropping capture",
			zap.String("suggested_filename", suggestedFilename),
			zap.Int("size", len(data)))
	}
}

// List returns the saved capture filenames in lexical order.
func (s *DiskSink) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read storage dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Path resolves a stored capture name to its on-disk path, rejecting anything
// that could escape the storage directory.
func (s *DiskSink) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid capture name %q", name)
	}
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("capture not found: %w", err)
	}
	return path, nil
}

// Close stops accepting new saves and drains the queue.
func (s *DiskSink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.jobs)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *DiskSink) writer() {
	defer s.wg.Done()
	for job := range s.jobs {
		name := uniqueName(job.name)
		path := filepath.Join(s.dir, name)
		if err := os.WriteFile(path, job.data, 0o644); err != nil {
			s.logger.Error("failed to save capture", zap.String("path", path), zap.Error(err))
			continue
		}
		s.logger.Info("capture saved", zap.String("filename", name), zap.Int("size", len(job.data)))
	}
}

func uniqueName(suggested string) string {
	ext := filepath.Ext(filepath.Base(suggested))
	if ext == "" {
		ext = ".png"
	}
	stamp := time.Now().UTC().Format("20060102T150405")
	return fmt.Sprintf("%s_%s%s", stamp, uuid.NewString()[:8], ext)
}
