package storage

import (
	"context"
	"sync"

	"github.com/bdougie/framesort/internal/models"
)

// Storage receives classified frames as they are produced.
type Storage interface {
	// AddResult adds a single frame record
	AddResult(ctx context.Context, result models.FrameRecord) error

	// Flush ensures all pending results are saved
	Flush() error
}

// CSVStorage collects records in memory and writes the result table once,
// on Flush.
type CSVStorage struct {
	path    string
	mu      sync.Mutex
	results []models.FrameRecord
}

func NewCSVStorage(path string) *CSVStorage {
	return &CSVStorage{path: path}
}

func (s *CSVStorage) AddResult(ctx context.Context, result models.FrameRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

// Flush writes every collected record to the table file.
func (s *CSVStorage) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return WriteTable(s.path, s.results)
}

// Results returns a copy of the collected records.
func (s *CSVStorage) Results() []models.FrameRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.FrameRecord(nil), s.results...)
}

// Multi fans records out to several sinks. The first error wins.
type Multi []Storage

func (m Multi) AddResult(ctx context.Context, result models.FrameRecord) error {
	for _, s := range m {
		if err := s.AddResult(ctx, result); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Flush() error {
	for _, s := range m {
		if err := s.Flush(); err != nil {
			return err
		}
	}
	return nil
}
