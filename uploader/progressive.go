package uploader

import (
	"context"
	"sync"

	"github.com/docker/go-units"

	"github.com/avcloud-io/go-uploader/uploader/auth"
	"github.com/avcloud-io/go-uploader/uploader/chunk"
	"github.com/avcloud-io/go-uploader/uploader/retrier"
	"github.com/avcloud-io/go-uploader/uploader/transport"
)

// ProgressiveSession uploads parts whose total count is unknown up front,
// for sources that are still being produced. Parts go out strictly
// sequentially with "part i/*" ranges; the closing part repeats its own
// ordinal as the total.
type ProgressiveSession struct {
	uploader *Uploader
	retrier  *retrier.Retrier
	fileName string

	mu      sync.Mutex
	part    int
	videoID string
}

// NewProgressiveSession opens a progressive upload session. fileName is the
// name sent with every part; it falls back to the configured VideoName.
func (u *Uploader) NewProgressiveSession(fileName string) (*ProgressiveSession, error) {
	if u.creds.Mode() == auth.ModeNone {
		return nil, configError("progressive upload requires credentials")
	}
	if fileName == "" {
		fileName = u.config.videoName
	}
	if fileName == "" {
		return nil, configError("progressive upload requires a file name")
	}

	return &ProgressiveSession{
		uploader: u,
		retrier:  retrier.New(u.strategy, u.logger),
		fileName: fileName,
		part:     1,
		videoID:  u.config.videoID,
	}, nil
}

// UploadPart sends the next part. Every part except the last one must be at
// least the minimum chunk size.
func (s *ProgressiveSession) UploadPart(ctx context.Context, data []byte) (*Video, error) {
	if int64(len(data)) < chunk.MinSizeBytes {
		return nil, configError("progressive part should be at least %s, got %s",
			units.BytesSize(float64(chunk.MinSizeBytes)),
			units.BytesSize(float64(len(data))))
	}
	return s.send(ctx, data, false)
}

// UploadLastPart sends the closing part, which may be any size, and returns
// the final video record.
func (s *ProgressiveSession) UploadLastPart(ctx context.Context, data []byte) (*Video, error) {
	return s.send(ctx, data, true)
}

// VideoID returns the resource id adopted from the responses so far.
func (s *ProgressiveSession) VideoID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoID
}

func (s *ProgressiveSession) send(ctx context.Context, data []byte, last bool) (*Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	part := transport.Part{Current: s.part}
	if last {
		part.Total = s.part
	}

	requestURL, err := s.uploader.creds.RequestURL(s.uploader.config.baseURL, s.videoID)
	if err != nil {
		return nil, err
	}

	videoID := s.videoID
	video, err := s.retrier.Do(ctx, func(ctx context.Context) (*transport.Video, error) {
		return s.uploader.uploadChunkOnce(ctx, requestURL, videoID, s.fileName, data, part, nil)
	})
	if err != nil {
		return nil, err
	}

	if video.VideoID != "" {
		s.videoID = video.VideoID
	}
	s.part++
	return video, nil
}
