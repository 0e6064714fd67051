// Package timeline persists projects and their edit structure: media assets,
// tracks, clips, trims and transitions.
package timeline

import (
	"time"

	"github.com/google/uuid"
)

const (
	MediaKindVideo = "video"
	MediaKindAudio = "audio"
	MediaKindImage = "image"

	TrackTypeVideo   = "video"
	TrackTypeAudio   = "audio"
	TrackTypeOverlay = "overlay"

	ClipTypeMedia     = "media"
	ClipTypeTitle     = "title"
	ClipTypeColor     = "color"
	ClipTypeGenerator = "generator"

	TrimKindIn   = "in"
	TrimKindOut  = "out"
	TrimKindBoth = "both"
)

var (
	mediaKinds = map[string]bool{MediaKindVideo: true, MediaKindAudio: true, MediaKindImage: true}
	trackTypes = map[string]bool{TrackTypeVideo: true, TrackTypeAudio: true, TrackTypeOverlay: true}
	clipTypes  = map[string]bool{ClipTypeMedia: true, ClipTypeTitle: true, ClipTypeColor: true, ClipTypeGenerator: true}
	trimKinds  = map[string]bool{TrimKindIn: true, TrimKindOut: true, TrimKindBoth: true}
)

type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	FPS         float64   `json:"fps"`
	DurationMS  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type MediaAsset struct {
	ID               string         `json:"id"`
	ProjectID        string         `json:"project_id"`
	Kind             string         `json:"kind"`
	SourceURI        string         `json:"source_uri"`
	OriginalFilename *string        `json:"original_filename"`
	MimeType         *string        `json:"mime_type"`
	SizeBytes        *int64         `json:"size_bytes"`
	DurationMS       *int64         `json:"duration_ms"`
	Width            *int           `json:"width"`
	Height           *int           `json:"height"`
	FPS              *float64       `json:"fps"`
	HasAudio         bool           `json:"has_audio"`
	Metadata         map[string]any `json:"metadata"`
	CreatedAt        time.Time      `json:"created_at"`
}

type Track struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	TrackType string    `json:"track_type"`
	Name      string    `json:"name"`
	SortOrder int       `json:"sort_order"`
	Muted     bool      `json:"muted"`
	Locked    bool      `json:"locked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Clip struct {
	ID           string         `json:"id"`
	ProjectID    string         `json:"project_id"`
	TrackID      string         `json:"track_id"`
	MediaAssetID *string        `json:"media_asset_id"`
	ClipType     string         `json:"clip_type"`
	Name         *string        `json:"name"`
	StartMS      int64          `json:"start_ms"`
	EndMS        int64          `json:"end_ms"`
	InMS         int64          `json:"in_ms"`
	OutMS        int64          `json:"out_ms"`
	Speed        float64        `json:"speed"`
	Opacity      float64        `json:"opacity"`
	Volume       float64        `json:"volume"`
	Transform    map[string]any `json:"transform"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// DurationMS is the clip's length on the timeline.
func (c *Clip) DurationMS() int64 {
	return c.EndMS - c.StartMS
}

// Trim is an append-only edit record against a clip.
type Trim struct {
	ID        string    `json:"id"`
	ClipID    string    `json:"clip_id"`
	Kind      string    `json:"kind"`
	TrimInMS  *int64    `json:"trim_in_ms"`
	TrimOutMS *int64    `json:"trim_out_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// Transition is a directed blend from one clip to another on the same track.
type Transition struct {
	ID             string         `json:"id"`
	ProjectID      string         `json:"project_id"`
	TrackID        string         `json:"track_id"`
	FromClipID     string         `json:"from_clip_id"`
	ToClipID       string         `json:"to_clip_id"`
	TransitionType string         `json:"transition_type"`
	DurationMS     int64          `json:"duration_ms"`
	Easing         string         `json:"easing"`
	Params         map[string]any `json:"params"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func NewID() string {
	return uuid.NewString()
}
