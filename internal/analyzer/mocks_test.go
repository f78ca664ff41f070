package analyzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stretchr/testify/mock"

	"github.com/bdougie/framesort/internal/models"
)

type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, videoPath, outDir string, secsPerExport int) (int, error) {
	args := m.Called(ctx, videoPath, outDir, secsPerExport)
	return args.Int(0), args.Error(1)
}

// writeFrames makes the mock behave like a real extractor by creating the
// frame files with the given indices.
func (m *MockExtractor) writeFrames(indices ...int) *mock.Call {
	return m.On("Extract", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			outDir := args.String(2)
			for _, i := range indices {
				path := filepath.Join(outDir, models.FrameName(i))
				if err := os.WriteFile(path, []byte(fmt.Sprintf("frame %d", i)), 0644); err != nil {
					panic(err)
				}
			}
		}).
		Return(len(indices), nil)
}

type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) Analyze(ctx context.Context, image []byte) (*models.Analysis, error) {
	args := m.Called(ctx, image)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Analysis), args.Error(1)
}

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) AddResult(ctx context.Context, result models.FrameRecord) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *MockStorage) Flush() error {
	args := m.Called()
	return args.Error(0)
}
