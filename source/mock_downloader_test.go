package source

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockDownloader ...
type MockDownloader struct {
	mock.Mock
}

// Download ...
func (m *MockDownloader) Download(ctx context.Context, destination, source string) error {
	args := m.Called(ctx, destination, source)
	return args.Error(0)
}

// GivenDownloadSucceeds ...
func (m *MockDownloader) GivenDownloadSucceeds() *MockDownloader {
	m.On("Download", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return m
}

// GivenDownloadFails ...
func (m *MockDownloader) GivenDownloadFails(reason error) *MockDownloader {
	m.On("Download", mock.Anything, mock.Anything, mock.Anything).Return(reason)
	return m
}
