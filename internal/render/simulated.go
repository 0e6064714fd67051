package render

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/framecut/framecut-backend/internal/exports"
)

// DefaultSchedule is the progress sequence reported by Simulated.
var DefaultSchedule = []exports.Progress{
	exports.Percent(10), exports.Percent(25), exports.Percent(50), exports.Percent(75),
}

// Simulated stands in for an encoder. It reports a fixed schedule with a delay
// before each step and writes a small manifest as the artifact.
type Simulated struct {
	Root      string
	Schedule  []exports.Progress
	StepDelay time.Duration
}

func NewSimulated(root string, stepDelay time.Duration) *Simulated {
	return &Simulated{Root: root, Schedule: DefaultSchedule, StepDelay: stepDelay}
}

func (s *Simulated) Render(ctx context.Context, job *exports.Job, report exports.ProgressFunc) (string, error) {
	for _, p := range s.Schedule {
		if err := sleep(ctx, s.StepDelay); err != nil {
			return "", err
		}
		if err := report(p); err != nil {
			return "", err
		}
	}
	if err := sleep(ctx, s.StepDelay); err != nil {
		return "", err
	}

	uri := OutputURI(job.ID, Container(job.Preset))
	manifest, err := json.MarshalIndent(map[string]any{
		"job_id":     job.ID,
		"project_id": job.ProjectID,
		"preset":     job.Preset,
		"simulated":  true,
		"written_at": time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return "", err
	}
	if err := writeArtifact(s.Root, uri, manifest); err != nil {
		return "", err
	}
	return uri, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return context.Cause(ctx)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timer.C:
		return nil
	}
}

// writeArtifact writes through a temp file so a partially written artifact is
// never visible under its final name.
func writeArtifact(root, uri string, data []byte) error {
	path := filepath.Join(root, filepath.FromSlash(uri))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize artifact: %w", err)
	}
	return nil
}
