package uploader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/docker/go-units"
	"github.com/gofrs/uuid"

	"github.com/avcloud-io/go-uploader/uploader/auth"
	"github.com/avcloud-io/go-uploader/uploader/chunk"
	"github.com/avcloud-io/go-uploader/uploader/retrier"
	"github.com/avcloud-io/go-uploader/uploader/transport"
)

// Upload starts the chunked upload of the configured source and returns a
// cancelable handle. The transfer itself runs in the background; await it
// with Operation.Wait or Operation.Done.
func (u *Uploader) Upload(ctx context.Context) (*Operation, error) {
	return u.startOperation(ctx, u.config.filePath)
}

// UploadAll uploads every file matching the doublestar pattern (e.g.
// "videos/**/*.mp4") as independent concurrent operations sharing the
// cancellation registry. Each match creates its own video, so only the
// upload-token mode without a preset video id is accepted.
func (u *Uploader) UploadAll(ctx context.Context, pattern string) ([]*Operation, error) {
	if u.creds.Mode() != auth.ModeUploadToken || u.config.videoID != "" {
		return nil, configError("batch upload requires upload-token credentials without a preset video id")
	}

	base, pat := doublestar.SplitPattern(pattern)
	matches, err := doublestar.Glob(os.DirFS(base), pat, doublestar.WithNoFollow())
	if err != nil {
		return nil, fmt.Errorf("invalid path pattern %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no match for path pattern: %s", pattern)
	}

	ops := make([]*Operation, 0, len(matches))
	for _, match := range matches {
		op, err := u.startOperation(ctx, filepath.Join(base, match))
		if err != nil {
			for _, started := range ops {
				started.Cancel()
			}
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (u *Uploader) startOperation(ctx context.Context, filePath string) (*Operation, error) {
	if filePath == "" {
		return nil, configError("file path is required")
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("generate operation id: %w", err)
	}

	opCtx, cancel := context.WithCancel(ctx)
	op := &Operation{
		id:      id.String(),
		cancel:  cancel,
		done:    make(chan struct{}),
		videoID: u.config.videoID,
	}
	u.registry.add(op)

	go func() {
		defer cancel()

		video, err := u.run(opCtx, op, filePath)
		u.registry.remove(op.id)
		op.settle(video, err)

		if err == nil && video != nil {
			// The poll loop outlives the operation's own context on purpose:
			// it is bounded only by the caller's ctx.
			u.maybePollPlayable(ctx, video)
		}
	}()

	return op, nil
}

// run drives the strictly sequential chunk loop. Chunk i+1 is not started
// before chunk i's retry loop has resolved; a terminal failure on any chunk
// fails the whole operation with the raw cause.
func (u *Uploader) run(ctx context.Context, op *Operation, filePath string) (*Video, error) {
	localPath, err := u.source.LocalPath(ctx, filePath)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open source file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			u.logger.Warnf("failed to close source file: %s", err)
		}
	}()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat source file: %w", err)
	}

	plan, err := chunk.NewPlan(info.Size(), u.config.chunkSizeBytes)
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}

	if u.creds.Mode() == auth.ModeNone {
		return u.dryRun(op, plan), nil
	}

	fileName := u.config.videoName
	if fileName == "" {
		fileName = filepath.Base(localPath)
	}

	count := plan.Count()
	u.logger.Infof("Uploading %s (%s) in %d chunks of up to %s",
		fileName,
		units.HumanSizeWithPrecision(float64(info.Size()), 3),
		count,
		units.BytesSize(float64(plan.ChunkSize)))

	chunkRetrier := retrier.New(u.strategy, u.logger)
	var uploadedBytes int64
	var last *Video

	for i := 0; i < count; i++ {
		start, end := plan.Range(i)
		data, err := io.ReadAll(io.NewSectionReader(file, start, end-start))
		if err != nil {
			return nil, fmt.Errorf("read chunk %d: %w", i+1, err)
		}

		part := transport.Part{Current: i + 1, Total: count}
		videoID := op.VideoID()
		requestURL, err := u.creds.RequestURL(u.config.baseURL, videoID)
		if err != nil {
			return nil, err
		}

		chunkLen := end - start
		baseUploaded := uploadedBytes
		currentChunk := i + 1
		onProgress := func(sent int64) {
			// The counting reader sees multipart framing too; clamp to the
			// chunk payload so UploadedBytes never overshoots TotalBytes.
			if sent > chunkLen {
				sent = chunkLen
			}
			u.progress.emit(ProgressEvent{
				UploadedBytes:             baseUploaded + sent,
				TotalBytes:                plan.FileSize,
				ChunkCount:                count,
				ChunkSizeBytes:            plan.ChunkSize,
				CurrentChunk:              currentChunk,
				CurrentChunkUploadedBytes: sent,
			})
		}

		video, err := chunkRetrier.Do(ctx, func(ctx context.Context) (*transport.Video, error) {
			return u.uploadChunkOnce(ctx, requestURL, videoID, fileName, data, part, onProgress)
		})
		if err != nil {
			u.logger.Errorf("Chunk %d/%d failed: %s", i+1, count, err)
			return nil, err
		}

		op.setVideoID(video.VideoID)
		uploadedBytes += chunkLen
		onProgress(chunkLen)
		last = video
		u.logger.Debugf("Chunk %d/%d uploaded", i+1, count)
	}

	u.logger.Donef("Upload complete, video id: %s", op.VideoID())
	return last, nil
}

// uploadChunkOnce is one retry attempt: a single POST, except that a 401 in a
// refresh-capable mode triggers exactly one token refresh and one
// resubmission with the updated Authorization header. A second consecutive
// 401 is surfaced to the retry strategy, which treats it as terminal.
func (u *Uploader) uploadChunkOnce(ctx context.Context, requestURL, videoID, fileName string, data []byte, part transport.Part, onProgress func(int64)) (*transport.Video, error) {
	req := transport.Request{
		URL:        requestURL,
		Headers:    u.requestHeaders(),
		VideoID:    videoID,
		FileName:   fileName,
		Data:       data,
		Part:       part,
		OnProgress: onProgress,
	}

	video, err := u.transport.Upload(ctx, req)
	if err == nil || !transport.IsStatus(err, http.StatusUnauthorized) || !u.creds.CanRefresh() {
		return video, err
	}

	u.logger.Debugf("Access token rejected, refreshing credentials")
	if refreshErr := u.creds.Refresh(ctx); refreshErr != nil {
		return nil, refreshErr
	}

	req.Headers = u.requestHeaders()
	return u.transport.Upload(ctx, req)
}

// dryRun walks the chunk plan without any network calls, emitting the same
// progress shape a real transfer would.
func (u *Uploader) dryRun(op *Operation, plan chunk.Plan) *Video {
	count := plan.Count()
	var uploaded int64
	for i := 0; i < count; i++ {
		size := plan.SizeOf(i)
		uploaded += size
		u.progress.emit(ProgressEvent{
			UploadedBytes:             uploaded,
			TotalBytes:                plan.FileSize,
			ChunkCount:                count,
			ChunkSizeBytes:            plan.ChunkSize,
			CurrentChunk:              i + 1,
			CurrentChunkUploadedBytes: size,
		})
	}
	return &Video{VideoID: op.VideoID()}
}
