// Package auth resolves one of the mutually exclusive credential shapes into
// request headers and, for access tokens, a refresh flow.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/avcloud-io/go-uploader/uploader/transport"
)

// Mode selects how upload requests are authenticated.
type Mode string

// The three credential modes, plus ModeNone for the explicit no-upload bypass.
const (
	ModeUploadToken Mode = "upload-token"
	ModeAccessToken Mode = "access-token"
	ModeAPIKey      Mode = "api-key"
	ModeNone        Mode = "none"
)

// refreshPath is the fixed token refresh endpoint under the auth host.
const refreshPath = "/auth/refresh"

// Config carries the raw credential inputs. Exactly one of UploadToken,
// AccessToken or APIKey must be set, unless Bypass is true.
type Config struct {
	UploadToken  string
	AccessToken  string
	RefreshToken string
	APIKey       string

	// VideoID is the pre-known resource id. Required by the access-token and
	// API-key modes, whose upload endpoint is scoped to an existing video.
	VideoID string

	// AuthHost is the base URL of the token refresh service.
	AuthHost string

	// Bypass skips credential validation entirely. With no credentials and
	// Bypass set, the resulting mode is ModeNone and no network upload is
	// performed by the callers.
	Bypass bool
}

// Credentials is the resolved credential strategy. The Authorization header
// value is swapped atomically by Refresh, so reads go through the mutex.
type Credentials struct {
	mode       Mode
	httpClient *retryablehttp.Client
	logger     log.Logger

	uploadToken string
	refreshURL  string

	mu           sync.RWMutex
	authHeader   string
	refreshToken string
}

// NewCredentials validates the credential shape and resolves it into a
// concrete strategy. All shape violations are reported at construction time.
func NewCredentials(cfg Config, httpClient *retryablehttp.Client, logger log.Logger) (*Credentials, error) {
	supplied := 0
	for _, set := range []bool{cfg.UploadToken != "", cfg.AccessToken != "", cfg.APIKey != ""} {
		if set {
			supplied++
		}
	}
	if supplied > 1 {
		return nil, fmt.Errorf("uploadToken, accessToken and apiKey are mutually exclusive, %d provided", supplied)
	}

	c := &Credentials{
		httpClient: httpClient,
		logger:     logger,
		refreshURL: cfg.AuthHost + refreshPath,
	}

	switch {
	case cfg.UploadToken != "":
		c.mode = ModeUploadToken
		c.uploadToken = cfg.UploadToken
	case cfg.AccessToken != "":
		if cfg.VideoID == "" {
			return nil, fmt.Errorf("access token authentication requires a video id")
		}
		c.mode = ModeAccessToken
		c.authHeader = "Bearer " + cfg.AccessToken
		c.refreshToken = cfg.RefreshToken
	case cfg.APIKey != "":
		if cfg.VideoID == "" {
			return nil, fmt.Errorf("API key authentication requires a video id")
		}
		c.mode = ModeAPIKey
		c.authHeader = "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.APIKey+":"))
	case cfg.Bypass:
		c.mode = ModeNone
	default:
		return nil, fmt.Errorf("one of uploadToken, accessToken or apiKey should be provided")
	}

	return c, nil
}

// Mode ...
func (c *Credentials) Mode() Mode {
	return c.mode
}

// CanRefresh reports whether a 401 can be recovered by refreshing the token.
// Only the access-token mode carries a refresh token; a 401 in the other
// modes is terminal.
func (c *Credentials) CanRefresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode == ModeAccessToken && c.refreshToken != ""
}

// Headers returns the authorization headers for the current token state.
// The upload-token mode authenticates through the URL instead.
func (c *Credentials) Headers() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.authHeader == "" {
		return map[string]string{}
	}
	return map[string]string{"Authorization": c.authHeader}
}

// RequestURL builds the upload endpoint for the current mode: the delegated
// upload endpoint with the token as query parameter, or the source endpoint
// of the existing video.
func (c *Credentials) RequestURL(baseURL, videoID string) (string, error) {
	switch c.mode {
	case ModeUploadToken:
		return fmt.Sprintf("%s/upload?token=%s", baseURL, url.QueryEscape(c.uploadToken)), nil
	case ModeAccessToken, ModeAPIKey:
		if videoID == "" {
			return "", fmt.Errorf("video id is required in %s mode", c.mode)
		}
		return fmt.Sprintf("%s/videos/%s/source", baseURL, url.PathEscape(videoID)), nil
	default:
		return "", fmt.Errorf("no upload endpoint in %s mode", c.mode)
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges the stored refresh token for a new token pair and
// atomically replaces the Authorization header. On failure the parsed server
// error is propagated and the previous tokens stay in place.
func (c *Credentials) Refresh(ctx context.Context) error {
	if !c.CanRefresh() {
		return fmt.Errorf("credentials in %s mode cannot be refreshed", c.mode)
	}

	c.mu.RLock()
	refreshToken := c.refreshToken
	c.mu.RUnlock()

	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return fmt.Errorf("marshal refresh request: %w", err)
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, c.refreshURL, body)
	if err != nil {
		return fmt.Errorf("create refresh request: %w", err)
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debugf("Refreshing access token")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("refresh token request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warnf("failed to close refresh response body: %s", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read refresh response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return transport.NewHTTPError(resp.StatusCode, raw)
	}

	var tokens refreshResponse
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return fmt.Errorf("decode refresh response: %w", err)
	}
	if tokens.AccessToken == "" {
		return fmt.Errorf("refresh response carries no access token")
	}

	c.mu.Lock()
	c.authHeader = "Bearer " + tokens.AccessToken
	c.refreshToken = tokens.RefreshToken
	c.mu.Unlock()

	return nil
}
