// Package transport issues the chunk upload requests and maps their
// responses to a parsed video record or a structured error.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
)

// Part is the 1-based position of a chunk within the whole transfer.
// A non-positive Total marks an unknown total (progressive upload).
type Part struct {
	Current int
	Total   int
}

// ContentRange returns the "part i/n" header value, with "*" for an
// unknown total.
func (p Part) ContentRange() string {
	if p.Total <= 0 {
		return fmt.Sprintf("part %d/*", p.Current)
	}
	return fmt.Sprintf("part %d/%d", p.Current, p.Total)
}

// Request describes one chunk upload POST.
type Request struct {
	URL      string
	Headers  map[string]string
	VideoID  string
	FileName string
	Data     []byte
	Part     Part

	// OnProgress, when set, is called with the number of body bytes handed to
	// the network so far. Calls are monotonic within one request attempt.
	OnProgress func(sentBytes int64)
}

// Client posts chunk requests over a plain HTTP client. Retry policy is
// owned by the caller, not the transport.
type Client struct {
	httpClient *http.Client
	logger     log.Logger
}

// NewClient ...
func NewClient(httpClient *http.Client, logger log.Logger) *Client {
	if httpClient == nil {
		httpClient = DefaultHTTPClient()
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
	}
}

// DefaultHTTPClient creates an HTTP client tuned for long-running chunk
// uploads. There is no global timeout: per-request deadlines come from the
// caller's context.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 0,
		Transport: &http.Transport{
			MaxIdleConns:        50,
			MaxConnsPerHost:     20,
			IdleConnTimeout:     10 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
			Proxy:               http.ProxyFromEnvironment,
		},
	}
}

// Upload performs a single chunk POST and returns the parsed video record.
// Failures are returned as *Error with the kind set for retry classification.
func (c *Client) Upload(ctx context.Context, uploadReq Request) (*Video, error) {
	body, contentType, err := buildMultipartBody(uploadReq)
	if err != nil {
		return nil, fmt.Errorf("build request body: %w", err)
	}

	bodySize := int64(body.Len())
	var reader io.Reader = body
	if uploadReq.OnProgress != nil {
		reader = &progressReader{reader: body, onProgress: uploadReq.OnProgress}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadReq.URL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for k, v := range uploadReq.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", contentType)
	if uploadReq.Part.Current > 0 {
		req.Header.Set("Content-Range", uploadReq.Part.ContentRange())
	}
	req.ContentLength = bodySize

	c.logger.Debugf("POST %s (%s, %d body bytes)", uploadReq.URL, uploadReq.Part.ContentRange(), bodySize)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warnf("failed to close response body: %s", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, NewHTTPError(resp.StatusCode, raw)
	}

	var video Video
	if err := json.Unmarshal(raw, &video); err != nil {
		return nil, fmt.Errorf("decode response body: %w", err)
	}

	return &video, nil
}

// buildMultipartBody assembles the multipart form: the optional videoId field
// first, then the chunk bytes as a "file" part carrying the source filename.
// Chunks are size-bounded, so buffering the body keeps it replayable for the
// caller's retries the same way a bytes.Reader would.
func buildMultipartBody(uploadReq Request) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if uploadReq.VideoID != "" {
		if err := writer.WriteField("videoId", uploadReq.VideoID); err != nil {
			return nil, "", fmt.Errorf("write videoId field: %w", err)
		}
	}

	filePart, err := writer.CreateFormFile("file", uploadReq.FileName)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := filePart.Write(uploadReq.Data); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}

// progressReader reports the cumulative number of bytes the HTTP transport
// has consumed from the request body.
type progressReader struct {
	reader     io.Reader
	sent       int64
	onProgress func(sentBytes int64)
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.sent += int64(n)
		r.onProgress(r.sent)
	}
	return n, err
}
