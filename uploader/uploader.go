// Package uploader implements chunked video uploads: chunk planning, a
// retry/backoff loop per chunk request, cancellation, transparent credential
// refresh, progress fan-out and optional playable polling.
package uploader

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/avcloud-io/go-uploader/source"
	"github.com/avcloud-io/go-uploader/uploader/auth"
	"github.com/avcloud-io/go-uploader/uploader/chunk"
	"github.com/avcloud-io/go-uploader/uploader/retrier"
	"github.com/avcloud-io/go-uploader/uploader/transport"
)

const (
	clientName    = "go-uploader"
	clientVersion = "1.3.0"

	// DefaultBaseURL is the production ingest endpoint.
	DefaultBaseURL = "https://ws.avcloud.io"

	// baseURLEnvKey overrides DefaultBaseURL when Options.BaseURL is empty.
	baseURLEnvKey = "VIDEO_UPLOADER_BASE_URL"
)

// Video is the server's record of the uploaded resource.
type Video = transport.Video

// VideoAssets holds the URLs of the derived assets.
type VideoAssets = transport.VideoAssets

// ConfigurationError reports invalid constructor input. It is raised
// synchronously and never retried.
type ConfigurationError struct {
	Err error
}

// Error ...
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid uploader configuration: %s", e.Err)
}

// Unwrap ...
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func configError(format string, args ...interface{}) error {
	return &ConfigurationError{Err: fmt.Errorf(format, args...)}
}

// Options configures an Uploader. The zero value is not usable: a credential
// and a source are required.
type Options struct {
	// Exactly one of UploadToken, AccessToken or APIKey must be provided.
	UploadToken  string
	AccessToken  string
	RefreshToken string
	APIKey       string

	// VideoID is the pre-known resource id. Required with AccessToken and
	// APIKey, optional with UploadToken.
	VideoID string

	// FilePath is the source: a local path, a file:// URL or an http(s) URL.
	FilePath string
	// VideoName overrides the filename sent in the multipart body.
	VideoName string

	// BaseURL defaults to $VIDEO_UPLOADER_BASE_URL, then DefaultBaseURL.
	BaseURL string
	// AuthHost is the token refresh host; defaults to BaseURL.
	AuthHost string

	// ChunkSize is a human-readable chunk size ("64MB"). ChunkSizeBytes takes
	// precedence when both are set. Valid range: 5MiB to 128MiB inclusive,
	// default 50MiB.
	ChunkSize      string
	ChunkSizeBytes int64

	// MaxRetries bounds the default retry strategy. Ignored when
	// RetryStrategy is set.
	MaxRetries    int
	RetryStrategy retrier.RetryStrategy

	// OriginApp and OriginSDK identify the integrating application in the
	// AV-Origin-App / AV-Origin-Sdk headers.
	OriginApp *transport.Origin
	OriginSDK *transport.Origin

	// DryRun skips credential validation and performs no network calls.
	DryRun bool

	Logger     log.Logger
	HTTPClient *http.Client
}

type config struct {
	baseURL        string
	chunkSizeBytes int64
	videoID        string
	filePath       string
	videoName      string
}

// Uploader is the entry point of the SDK. One Uploader holds one upload
// session's immutable configuration; operations started from it run
// independently and share only the cancellation registry.
type Uploader struct {
	config     config
	creds      *auth.Credentials
	transport  *transport.Client
	strategy   retrier.RetryStrategy
	source     source.Provider
	logger     log.Logger
	headers    map[string]string
	registry   *registry
	progress   *progressEmitter
	playable   *playableEmitter
	pollClient *retryablehttp.Client
}

// New validates the options and builds an Uploader. Every option violation is
// reported here as a *ConfigurationError, not later during the transfer.
func New(opts Options) (*Uploader, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger()
	}

	envRepo := env.NewRepository()
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = envRepo.Get(baseURLEnvKey)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	authHost := opts.AuthHost
	if authHost == "" {
		authHost = baseURL
	}
	authHost = strings.TrimSuffix(authHost, "/")

	chunkSizeBytes := opts.ChunkSizeBytes
	if chunkSizeBytes == 0 && opts.ChunkSize != "" {
		parsed, err := chunk.ParseSize(opts.ChunkSize)
		if err != nil {
			return nil, &ConfigurationError{Err: err}
		}
		chunkSizeBytes = parsed
	}
	if chunkSizeBytes == 0 {
		chunkSizeBytes = chunk.DefaultSizeBytes
	}
	if _, err := chunk.NewPlan(0, chunkSizeBytes); err != nil {
		return nil, &ConfigurationError{Err: err}
	}

	pollClient := retryhttp.NewClient(logger)

	creds, err := auth.NewCredentials(auth.Config{
		UploadToken:  opts.UploadToken,
		AccessToken:  opts.AccessToken,
		RefreshToken: opts.RefreshToken,
		APIKey:       opts.APIKey,
		VideoID:      opts.VideoID,
		AuthHost:     authHost,
		Bypass:       opts.DryRun,
	}, pollClient, logger)
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}

	headers := map[string]string{
		transport.OriginClientHeader: transport.Origin{Name: clientName, Version: clientVersion}.HeaderValue(),
	}
	origins := []struct {
		header string
		origin *transport.Origin
	}{
		{transport.OriginAppHeader, opts.OriginApp},
		{transport.OriginSDKHeader, opts.OriginSDK},
	}
	for _, o := range origins {
		if o.origin == nil {
			continue
		}
		if err := o.origin.Validate(); err != nil {
			return nil, &ConfigurationError{Err: err}
		}
		headers[o.header] = o.origin.HeaderValue()
	}

	strategy := opts.RetryStrategy
	if strategy == nil {
		strategy = retrier.DefaultRetryStrategy(opts.MaxRetries)
	}

	return &Uploader{
		config: config{
			baseURL:        baseURL,
			chunkSizeBytes: chunkSizeBytes,
			videoID:        opts.VideoID,
			filePath:       opts.FilePath,
			videoName:      opts.VideoName,
		},
		creds:      creds,
		transport:  transport.NewClient(opts.HTTPClient, logger),
		strategy:   strategy,
		source:     source.NewDefaultProvider(logger),
		logger:     logger,
		headers:    headers,
		registry:   newRegistry(),
		progress:   newProgressEmitter(),
		playable:   newPlayableEmitter(),
		pollClient: pollClient,
	}, nil
}

// OnProgress registers a progress observer. Observers are called
// synchronously in registration order; the returned function unsubscribes.
func (u *Uploader) OnProgress(fn func(ProgressEvent)) func() {
	return u.progress.subscribe(fn)
}

// OnPlayable registers an observer notified exactly once when the uploaded
// video's streaming asset becomes servable. The returned function
// unsubscribes.
func (u *Uploader) OnPlayable(fn func(*Video)) func() {
	return u.playable.subscribe(fn)
}

// CancelOperation routes a cancel request to the operation with the given id.
// It reports whether a live operation was found.
func (u *Uploader) CancelOperation(id string) bool {
	return u.registry.cancel(id)
}

// requestHeaders merges the static origin headers with the current
// authorization state. Rebuilt per attempt so a refreshed token is picked up.
func (u *Uploader) requestHeaders() map[string]string {
	headers := make(map[string]string, len(u.headers)+1)
	for k, v := range u.headers {
		headers[k] = v
	}
	for k, v := range u.creds.Headers() {
		headers[k] = v
	}
	return headers
}
