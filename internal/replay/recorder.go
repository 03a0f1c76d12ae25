// File: internal/replay/recorder.go

// Package replay persists executor-emitted replay steps. The file recorder
// writes one JSON object per line so a run can be replayed or inspected with
// standard tooling.
package replay

import (
	"context"
	"fmt"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/kfalter89/webpilot/api/schemas"
)

// FileRecorder appends replay steps to a JSONL file. Safe for concurrent use.
type FileRecorder struct {
	mu     sync.Mutex
	file   *os.File
	logger *zap.Logger
}

var _ schemas.ReplayRecorder = (*FileRecorder)(nil)

// NewFileRecorder opens (or creates) the target file for appending.
func NewFileRecorder(path string, logger *zap.Logger) (*FileRecorder, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("replay: failed to open %s: %w", path, err)
	}
	return &FileRecorder{
		file:   file,
		logger: logger.Named("replay"),
	}, nil
}

// Record appends one step. Steps are flushed immediately so a crashed run
// still leaves a usable trace.
func (r *FileRecorder) Record(ctx context.Context, step schemas.ReplayStep) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	line, err := jsoniter.Marshal(step)
	if err != nil {
		return fmt.Errorf("replay: failed to encode step: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("replay: failed to write step: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}
