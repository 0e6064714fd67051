package timeline

// Create inputs use pointers for fields that have defaults so an explicit
// zero is validated instead of silently replaced.

type NewProject struct {
	Name        string   `json:"name"`
	Description *string  `json:"description"`
	Width       *int     `json:"width"`
	Height      *int     `json:"height"`
	FPS         *float64 `json:"fps"`
}

type ProjectPatch struct {
	Name        Optional[string]  `json:"name"`
	Description Optional[string]  `json:"description"`
	Width       Optional[int]     `json:"width"`
	Height      Optional[int]     `json:"height"`
	FPS         Optional[float64] `json:"fps"`
	DurationMS  Optional[int64]   `json:"duration_ms"`
}

type NewMediaAsset struct {
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
}

type NewTrack struct {
	ProjectID string `json:"project_id"`
	TrackType string `json:"track_type"`
	Name      string `json:"name"`
	SortOrder int    `json:"sort_order"`
	Muted     bool   `json:"muted"`
	Locked    bool   `json:"locked"`
}

type TrackPatch struct {
	Name      Optional[string] `json:"name"`
	SortOrder Optional[int]    `json:"sort_order"`
	Muted     Optional[bool]   `json:"muted"`
	Locked    Optional[bool]   `json:"locked"`
}

type NewClip struct {
	ProjectID    string         `json:"project_id"`
	TrackID      string         `json:"track_id"`
	MediaAssetID *string        `json:"media_asset_id"`
	ClipType     string         `json:"clip_type"`
	Name         *string        `json:"name"`
	StartMS      int64          `json:"start_ms"`
	EndMS        int64          `json:"end_ms"`
	InMS         int64          `json:"in_ms"`
	OutMS        int64          `json:"out_ms"`
	Speed        *float64       `json:"speed"`
	Opacity      *float64       `json:"opacity"`
	Volume       *float64       `json:"volume"`
	Transform    map[string]any `json:"transform"`
}

type ClipPatch struct {
	TrackID      Optional[string]         `json:"track_id"`
	MediaAssetID Optional[string]         `json:"media_asset_id"`
	Name         Optional[string]         `json:"name"`
	StartMS      Optional[int64]          `json:"start_ms"`
	EndMS        Optional[int64]          `json:"end_ms"`
	InMS         Optional[int64]          `json:"in_ms"`
	OutMS        Optional[int64]          `json:"out_ms"`
	Speed        Optional[float64]        `json:"speed"`
	Opacity      Optional[float64]        `json:"opacity"`
	Volume       Optional[float64]        `json:"volume"`
	Transform    Optional[map[string]any] `json:"transform"`
}

type NewTrim struct {
	ClipID    string `json:"clip_id"`
	Kind      string `json:"kind"`
	TrimInMS  *int64 `json:"trim_in_ms"`
	TrimOutMS *int64 `json:"trim_out_ms"`
}

type NewTransition struct {
	ProjectID      string         `json:"project_id"`
	TrackID        string         `json:"track_id"`
	FromClipID     string         `json:"from_clip_id"`
	ToClipID       string         `json:"to_clip_id"`
	TransitionType string         `json:"transition_type"`
	DurationMS     *int64         `json:"duration_ms"`
	Easing         string         `json:"easing"`
	Params         map[string]any `json:"params"`
}

type TransitionPatch struct {
	TransitionType Optional[string]         `json:"transition_type"`
	DurationMS     Optional[int64]          `json:"duration_ms"`
	Easing         Optional[string]         `json:"easing"`
	Params         Optional[map[string]any] `json:"params"`
}

const (
	DefaultWidth          = 1920
	DefaultHeight         = 1080
	DefaultFPS            = 30.0
	DefaultTransitionType = "crossfade"
	DefaultTransitionMS   = 1000
	DefaultEasing         = "linear"
)

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func objectOr(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
