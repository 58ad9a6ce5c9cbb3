package transport

import "time"

// Video is the server's canonical record of the uploaded resource. The same
// record is returned for every chunk; VideoID is stable across chunks.
type Video struct {
	// Public is serialized as "public"; renamed on this side because the
	// upstream SDK generators treat it as a reserved word.
	Public bool `json:"public"`

	VideoID     string            `json:"videoId"`
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Metadata    []VideoMetadata   `json:"metadata,omitempty"`
	Panoramic   bool              `json:"panoramic,omitempty"`
	Mp4Support  bool              `json:"mp4Support,omitempty"`
	PublishedAt *time.Time        `json:"publishedAt,omitempty"`
	CreatedAt   *time.Time        `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time        `json:"updatedAt,omitempty"`
	Source      *VideoSource      `json:"source,omitempty"`
	Assets      *VideoAssets      `json:"assets,omitempty"`
}

// VideoMetadata is one key/value pair attached to a video.
type VideoMetadata struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// VideoSource describes where the video content originated.
type VideoSource struct {
	Type string `json:"type,omitempty"`
	URI  string `json:"uri,omitempty"`
}

// VideoAssets holds the URLs of the derived assets the platform produces.
type VideoAssets struct {
	Hls       string `json:"hls,omitempty"`
	Iframe    string `json:"iframe,omitempty"`
	Player    string `json:"player,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Mp4       string `json:"mp4,omitempty"`
}
