package uploader

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avcloud-io/go-uploader/uploader/transport"
)

const mib = int64(1024 * 1024)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "upload token", opts: Options{UploadToken: "to1", FilePath: "a.mp4"}},
		{name: "access token with video id", opts: Options{AccessToken: "at1", VideoID: "vi1", FilePath: "a.mp4"}},
		{name: "api key with video id", opts: Options{APIKey: "key1", VideoID: "vi1", FilePath: "a.mp4"}},
		{name: "dry run without credentials", opts: Options{DryRun: true, FilePath: "a.mp4"}},
		{name: "no credentials", opts: Options{FilePath: "a.mp4"}, wantErr: true},
		{name: "two credentials", opts: Options{UploadToken: "to1", APIKey: "key1", VideoID: "vi1"}, wantErr: true},
		{name: "access token without video id", opts: Options{AccessToken: "at1"}, wantErr: true},
		{name: "api key without video id", opts: Options{APIKey: "key1"}, wantErr: true},
		{name: "chunk size below minimum", opts: Options{UploadToken: "to1", ChunkSizeBytes: mib}, wantErr: true},
		{name: "chunk size above maximum", opts: Options{UploadToken: "to1", ChunkSizeBytes: 129 * mib}, wantErr: true},
		{name: "chunk size lower bound", opts: Options{UploadToken: "to1", ChunkSizeBytes: 5 * mib}},
		{name: "chunk size upper bound", opts: Options{UploadToken: "to1", ChunkSizeBytes: 128 * mib}},
		{name: "human readable chunk size", opts: Options{UploadToken: "to1", ChunkSize: "64MB"}},
		{name: "unparsable chunk size", opts: Options{UploadToken: "to1", ChunkSize: "lots"}, wantErr: true},
		{name: "invalid origin app", opts: Options{UploadToken: "to1", OriginApp: &transport.Origin{Name: "my app", Version: "1.0"}}, wantErr: true},
		{name: "invalid origin sdk version", opts: Options{UploadToken: "to1", OriginSDK: &transport.Origin{Name: "sdk", Version: "1.0.0-rc1"}}, wantErr: true},
		{name: "valid origins", opts: Options{UploadToken: "to1", OriginApp: &transport.Origin{Name: "my-app", Version: "2.1"}, OriginSDK: &transport.Origin{Name: "wrapper_sdk", Version: "0.9.1"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			var cfgErr *ConfigurationError
			assert.True(t, errors.As(err, &cfgErr), "expected ConfigurationError, got %T: %v", err, err)
		})
	}
}

func TestNew_DefaultChunkSize(t *testing.T) {
	u, err := New(Options{UploadToken: "to1"})
	require.NoError(t, err)
	assert.Equal(t, 50*mib, u.config.chunkSizeBytes)
}

func TestProgressEmitter_OrderAndUnsubscribe(t *testing.T) {
	emitter := newProgressEmitter()

	var order []string
	emitter.subscribe(func(ProgressEvent) { order = append(order, "first") })
	unsubscribe := emitter.subscribe(func(ProgressEvent) { order = append(order, "second") })
	emitter.subscribe(func(ProgressEvent) { order = append(order, "third") })

	emitter.emit(ProgressEvent{})
	assert.Equal(t, []string{"first", "second", "third"}, order)

	order = nil
	unsubscribe()
	unsubscribe() // removing twice is harmless
	emitter.emit(ProgressEvent{})
	assert.Equal(t, []string{"first", "third"}, order)
}

func TestPlayableEmitter_Unsubscribe(t *testing.T) {
	emitter := newPlayableEmitter()
	assert.False(t, emitter.hasObservers())

	calls := 0
	unsubscribe := emitter.subscribe(func(*Video) { calls++ })
	assert.True(t, emitter.hasObservers())

	emitter.emit(&Video{})
	unsubscribe()
	emitter.emit(&Video{})

	assert.Equal(t, 1, calls)
	assert.False(t, emitter.hasObservers())
}

func TestConfigurationError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &ConfigurationError{Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "boom")
}
