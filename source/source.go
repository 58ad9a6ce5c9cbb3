// Package source resolves an upload source to a local file path. Sources can
// be plain local paths, file:// URLs, or http(s) URLs downloaded to a
// temporary location first.
package source

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/filedownloader"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
)

const (
	fileScheme  = "file://"
	httpScheme  = "http://"
	httpsScheme = "https://"
)

// Downloader fetches a remote source file to a local destination.
type Downloader interface {
	Download(ctx context.Context, destination, source string) error
}

// Provider resolves an upload source to a local file path.
type Provider interface {
	// LocalPath returns the local path for the given source. file:// sources
	// are stripped and resolved, remote URLs are downloaded to a temporary
	// directory, plain paths are validated to exist.
	LocalPath(ctx context.Context, path string) (string, error)
}

type provider struct {
	downloader   Downloader
	pathProvider pathutil.PathProvider
	pathModifier pathutil.PathModifier
	pathChecker  pathutil.PathChecker
}

// NewProvider ...
func NewProvider(downloader Downloader, pathProvider pathutil.PathProvider, pathModifier pathutil.PathModifier, pathChecker pathutil.PathChecker) Provider {
	return &provider{
		downloader:   downloader,
		pathProvider: pathProvider,
		pathModifier: pathModifier,
		pathChecker:  pathChecker,
	}
}

// NewDefaultProvider wires the provider with the default downloader and path
// helpers.
func NewDefaultProvider(logger log.Logger) Provider {
	return NewProvider(
		filedownloader.NewDownloader(logger),
		pathutil.NewPathProvider(),
		pathutil.NewPathModifier(),
		pathutil.NewPathChecker(),
	)
}

// LocalPath ...
func (p *provider) LocalPath(ctx context.Context, path string) (string, error) {
	if strings.HasPrefix(path, httpScheme) || strings.HasPrefix(path, httpsScheme) {
		return p.downloadToLocalPath(ctx, path)
	}

	localPath, err := p.pathModifier.AbsPath(strings.TrimPrefix(path, fileScheme))
	if err != nil {
		return "", fmt.Errorf("resolve source path %s: %w", path, err)
	}

	exists, err := p.pathChecker.IsPathExists(localPath)
	if err != nil {
		return "", fmt.Errorf("check source path %s: %w", localPath, err)
	}
	if !exists {
		return "", fmt.Errorf("source file doesn't exist: %s", localPath)
	}

	return localPath, nil
}

func (p *provider) downloadToLocalPath(ctx context.Context, urlPath string) (string, error) {
	tmpDir, err := p.pathProvider.CreateTempDir("go-uploader")
	if err != nil {
		return "", fmt.Errorf("create temp directory: %w", err)
	}

	fileName, err := fileNameFromURL(urlPath)
	if err != nil {
		return "", fmt.Errorf("extract filename from URL %s: %w", urlPath, err)
	}

	localPath := filepath.Join(tmpDir, fileName)
	if err := p.downloader.Download(ctx, localPath, urlPath); err != nil {
		return "", fmt.Errorf("download source from %s: %w", urlPath, err)
	}

	return localPath, nil
}

func fileNameFromURL(urlPath string) (string, error) {
	parsedURL, err := url.Parse(urlPath)
	if err != nil {
		return "", err
	}

	return filepath.Base(parsedURL.Path), nil
}
