package timeline

import (
	"math"
	"strings"

	"github.com/framecut/framecut-backend/internal/apperr"
)

func errNotNullable(field string) error {
	return apperr.Validation("%s cannot be null", field)
}

func validateProject(p *Project) error {
	if strings.TrimSpace(p.Name) == "" {
		return apperr.Validation("name is required")
	}
	if p.Width < 1 || p.Height < 1 {
		return apperr.Validation("width and height must be >= 1")
	}
	if math.IsNaN(p.FPS) || p.FPS < 1 {
		return apperr.Validation("fps must be >= 1")
	}
	if p.DurationMS < 0 {
		return apperr.Validation("duration_ms must be >= 0")
	}
	return nil
}

func validateMediaAsset(m *MediaAsset) error {
	if m.ProjectID == "" {
		return apperr.Validation("project_id is required")
	}
	if !mediaKinds[m.Kind] {
		return apperr.Validation("kind must be one of video, audio, image")
	}
	if strings.TrimSpace(m.SourceURI) == "" {
		return apperr.Validation("source_uri is required")
	}
	if m.SizeBytes != nil && *m.SizeBytes < 0 {
		return apperr.Validation("size_bytes must be >= 0")
	}
	if m.DurationMS != nil && *m.DurationMS < 0 {
		return apperr.Validation("duration_ms must be >= 0")
	}
	if (m.Width != nil && *m.Width < 1) || (m.Height != nil && *m.Height < 1) {
		return apperr.Validation("width and height must be >= 1")
	}
	if m.FPS != nil && !(*m.FPS >= 0) {
		return apperr.Validation("fps must be >= 0")
	}
	return nil
}

func validateTrack(t *Track) error {
	if t.ProjectID == "" {
		return apperr.Validation("project_id is required")
	}
	if !trackTypes[t.TrackType] {
		return apperr.Validation("track_type must be one of video, audio, overlay")
	}
	if strings.TrimSpace(t.Name) == "" {
		return apperr.Validation("name is required")
	}
	return nil
}

func validateClip(c *Clip) error {
	if c.ProjectID == "" || c.TrackID == "" {
		return apperr.Validation("project_id and track_id are required")
	}
	if !clipTypes[c.ClipType] {
		return apperr.Validation("clip_type must be one of media, title, color, generator")
	}
	if c.StartMS < 0 || c.EndMS < 0 || c.InMS < 0 || c.OutMS < 0 {
		return apperr.Validation("start_ms, end_ms, in_ms and out_ms must be >= 0")
	}
	if c.StartMS > c.EndMS {
		return apperr.Validation("start_ms (%d) must not exceed end_ms (%d)", c.StartMS, c.EndMS)
	}
	if c.MediaAssetID != nil && c.InMS > c.OutMS {
		return apperr.Validation("in_ms (%d) must not exceed out_ms (%d) for media-backed clips", c.InMS, c.OutMS)
	}
	if !(c.Speed > 0) || math.IsInf(c.Speed, 0) {
		return apperr.Validation("speed must be > 0")
	}
	if !(c.Opacity >= 0 && c.Opacity <= 1) {
		return apperr.Validation("opacity must be within [0, 1]")
	}
	if !(c.Volume >= 0) || math.IsInf(c.Volume, 0) {
		return apperr.Validation("volume must be >= 0")
	}
	return nil
}

func validateTrim(t *Trim) error {
	if t.ClipID == "" {
		return apperr.Validation("clip_id is required")
	}
	if !trimKinds[t.Kind] {
		return apperr.Validation("kind must be one of in, out, both")
	}
	if (t.TrimInMS != nil && *t.TrimInMS < 0) || (t.TrimOutMS != nil && *t.TrimOutMS < 0) {
		return apperr.Validation("trim values must be >= 0")
	}
	switch t.Kind {
	case TrimKindIn:
		if t.TrimInMS == nil {
			return apperr.Validation("trim_in_ms is required for an in trim")
		}
	case TrimKindOut:
		if t.TrimOutMS == nil {
			return apperr.Validation("trim_out_ms is required for an out trim")
		}
	case TrimKindBoth:
		if t.TrimInMS == nil || t.TrimOutMS == nil {
			return apperr.Validation("trim_in_ms and trim_out_ms are required for a both trim")
		}
		if *t.TrimInMS > *t.TrimOutMS {
			return apperr.Validation("trim_in_ms must not exceed trim_out_ms")
		}
	}
	return nil
}

func validateTransition(t *Transition) error {
	if t.ProjectID == "" || t.TrackID == "" || t.FromClipID == "" || t.ToClipID == "" {
		return apperr.Validation("project_id, track_id, from_clip_id and to_clip_id are required")
	}
	if t.FromClipID == t.ToClipID {
		return apperr.Validation("from_clip_id and to_clip_id must differ")
	}
	if strings.TrimSpace(t.TransitionType) == "" {
		return apperr.Validation("transition_type is required")
	}
	if strings.TrimSpace(t.Easing) == "" {
		return apperr.Validation("easing is required")
	}
	if t.DurationMS < 0 {
		return apperr.Validation("duration_ms must be >= 0")
	}
	return nil
}
