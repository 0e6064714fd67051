package render

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/framecut/framecut-backend/internal/exports"
	"github.com/framecut/framecut-backend/internal/sanitize"
	"github.com/framecut/framecut-backend/internal/timeline"
)

// TimelineReader is the read access the EDL renderer needs.
type TimelineReader interface {
	GetProject(ctx context.Context, id string) (*timeline.Project, error)
	ListTracks(ctx context.Context, projectID string) ([]*timeline.Track, error)
	ListTrackClips(ctx context.Context, trackID string) ([]*timeline.Clip, error)
	ListTransitions(ctx context.Context, projectID string) ([]*timeline.Transition, error)
	GetMediaAsset(ctx context.Context, id string) (*timeline.MediaAsset, error)
}

// EDLEvent is one line group of a CMX3600 edit decision list.
type EDLEvent struct {
	Reel        string
	Track       string
	Dissolve    int // transition length in frames; 0 for a cut
	SourceInMS  int64
	SourceOutMS int64
	RecordInMS  int64
	RecordOutMS int64
	ClipName    string
	MediaPath   string
}

// EDL renders the project timeline as an edit decision list.
type EDL struct {
	Root     string
	Timeline TimelineReader
}

func NewEDL(root string, tl TimelineReader) *EDL {
	return &EDL{Root: root, Timeline: tl}
}

func (e *EDL) Render(ctx context.Context, job *exports.Job, report exports.ProgressFunc) (string, error) {
	project, err := e.Timeline.GetProject(ctx, job.ProjectID)
	if err != nil {
		return "", err
	}
	events, err := e.collect(ctx, project, report)
	if err != nil {
		return "", err
	}

	body := GenerateEDL(events, project.Name, project.FPS)
	uri := OutputURI(job.ID, "edl")
	if err := writeArtifact(e.Root, uri, []byte(body)); err != nil {
		return "", err
	}
	return uri, nil
}

func (e *EDL) collect(ctx context.Context, project *timeline.Project, report exports.ProgressFunc) ([]EDLEvent, error) {
	tracks, err := e.Timeline.ListTracks(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	transitions, err := e.Timeline.ListTransitions(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	incoming := make(map[string]*timeline.Transition, len(transitions))
	for _, t := range transitions {
		incoming[t.ToClipID] = t
	}

	fps := frameRate(project.FPS)
	var events []EDLEvent
	var last exports.Progress
	for i, track := range tracks {
		if track.TrackType == timeline.TrackTypeAudio && track.Muted {
			continue
		}
		clips, err := e.Timeline.ListTrackClips(ctx, track.ID)
		if err != nil {
			return nil, err
		}
		for _, c := range clips {
			ev, err := e.event(ctx, track, c)
			if err != nil {
				return nil, err
			}
			if t, ok := incoming[c.ID]; ok {
				ev.Dissolve = int(math.Round(float64(t.DurationMS) * float64(fps) / 1000))
			}
			events = append(events, ev)
		}

		// Tracks are the unit of work; the final 100 comes from completion.
		p := exports.Percent((i + 1) * 90 / len(tracks))
		if p > last {
			if err := report(p); err != nil {
				return nil, err
			}
			last = p
		}
	}

	sort.SliceStable(events, func(a, b int) bool {
		return events[a].RecordInMS < events[b].RecordInMS
	})
	return events, nil
}

func (e *EDL) event(ctx context.Context, track *timeline.Track, c *timeline.Clip) (EDLEvent, error) {
	ev := EDLEvent{
		Reel:        "BL",
		Track:       "V",
		RecordInMS:  c.StartMS,
		RecordOutMS: c.EndMS,
		SourceInMS:  0,
		SourceOutMS: c.DurationMS(),
		ClipName:    c.ClipType,
	}
	if track.TrackType == timeline.TrackTypeAudio {
		ev.Track = "A"
	}
	if c.Name != nil {
		ev.ClipName = *c.Name
	}
	if c.MediaAssetID == nil {
		return ev, nil
	}

	media, err := e.Timeline.GetMediaAsset(ctx, *c.MediaAssetID)
	if err != nil {
		return ev, err
	}
	ev.Reel = "AX"
	ev.MediaPath = media.SourceURI
	ev.SourceInMS = c.InMS
	ev.SourceOutMS = c.OutMS
	if c.OutMS <= c.InMS {
		ev.SourceOutMS = c.InMS + int64(math.Round(float64(c.DurationMS())*c.Speed))
	}
	return ev, nil
}

func frameRate(f float64) int {
	fps := int(math.Round(f))
	if fps <= 0 {
		fps = 30
	}
	return fps
}

// GenerateEDL formats events as CMX3600 text. Record times are the clips'
// timeline positions.
func GenerateEDL(events []EDLEvent, title string, rate float64) string {
	fps := frameRate(rate)
	dropFrame := math.Abs(rate-29.97) < 0.01 || math.Abs(rate-59.94) < 0.01

	lines := []string{"TITLE: " + sanitize.Name(title, 70)}
	if dropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	for i, ev := range events {
		edit := "C        "
		if ev.Dissolve > 0 {
			edit = fmt.Sprintf("D    %03d ", ev.Dissolve)
		}
		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s %s%s %s %s %s", i+1, ev.Reel, ev.Track, edit,
				msToTimecode(ev.SourceInMS, fps), msToTimecode(ev.SourceOutMS, fps),
				msToTimecode(ev.RecordInMS, fps), msToTimecode(ev.RecordOutMS, fps)),
			"* FROM CLIP NAME:  "+sanitize.Name(ev.ClipName, 0),
		)
		if ev.MediaPath != "" {
			lines = append(lines, "* MEDIA PATH:  "+strings.ReplaceAll(ev.MediaPath, "\n", ""))
		}
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func msToTimecode(ms int64, fps int) string {
	totalFrames := int64(math.Round(float64(ms) * float64(fps) / 1000.0))
	f := int64(fps)
	frames := totalFrames % f
	totalSeconds := totalFrames / f
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
