// Package chunk computes how a source file is split into upload parts.
package chunk

import (
	"fmt"

	"github.com/docker/go-units"
)

// Chunk size bounds enforced at plan creation.
const (
	MinSizeBytes     int64 = 5 * 1024 * 1024
	MaxSizeBytes     int64 = 128 * 1024 * 1024
	DefaultSizeBytes int64 = 50 * 1024 * 1024
)

// Plan describes the fixed-size split of a file. Chunk ranges are derived,
// never stored: they are recomputed from (FileSize, ChunkSize) on demand.
type Plan struct {
	FileSize  int64
	ChunkSize int64
}

// NewPlan validates the chunk size and returns a plan for the given file size.
// A zero chunkSize selects DefaultSizeBytes.
func NewPlan(fileSize, chunkSize int64) (Plan, error) {
	if fileSize < 0 {
		return Plan{}, fmt.Errorf("file size should not be negative, got %d", fileSize)
	}
	if chunkSize == 0 {
		chunkSize = DefaultSizeBytes
	}
	if chunkSize < MinSizeBytes || chunkSize > MaxSizeBytes {
		return Plan{}, fmt.Errorf("chunk size should be between %s and %s, got %s",
			units.BytesSize(float64(MinSizeBytes)),
			units.BytesSize(float64(MaxSizeBytes)),
			units.BytesSize(float64(chunkSize)))
	}
	return Plan{FileSize: fileSize, ChunkSize: chunkSize}, nil
}

// ParseSize converts a human-readable size string (e.g. "50MB", "64MiB") to bytes.
func ParseSize(size string) (int64, error) {
	bytes, err := units.RAMInBytes(size)
	if err != nil {
		return 0, fmt.Errorf("parse chunk size %q: %w", size, err)
	}
	return bytes, nil
}

// Count returns the number of parts. An empty file still produces a single
// zero-length part: the server expects one request, not zero.
func (p Plan) Count() int {
	if p.FileSize == 0 {
		return 1
	}
	return int((p.FileSize + p.ChunkSize - 1) / p.ChunkSize)
}

// Range returns the half-open byte range [start, end) of the 0-based part index.
func (p Plan) Range(index int) (start, end int64) {
	start = int64(index) * p.ChunkSize
	end = start + p.ChunkSize
	if end > p.FileSize {
		end = p.FileSize
	}
	if start > p.FileSize {
		start = p.FileSize
	}
	return start, end
}

// SizeOf returns the byte length of the given part.
func (p Plan) SizeOf(index int) int64 {
	start, end := p.Range(index)
	return end - start
}
