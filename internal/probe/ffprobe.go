// Package probe extracts technical metadata from uploaded media with ffprobe.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const maxStderrBytes = 8 * 1024

// ErrUnavailable is returned by New when no ffprobe binary can be found.
var ErrUnavailable = errors.New("ffprobe not available")

// Prober reads technical metadata from a media file.
type Prober interface {
	Probe(ctx context.Context, path string) (*Result, error)
}

// Result holds the fields a MediaAsset can be enriched with. Nil pointers mean
// the stream did not report the value.
type Result struct {
	DurationMS *int64
	Width      *int
	Height     *int
	FPS        *float64
	HasAudio   bool
	FormatName string
	VideoCodec string
	AudioCodec string
	Bitrate    int64
}

// FFprobe runs the ffprobe binary as a subprocess.
type FFprobe struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// New resolves binary on PATH ("ffprobe" when empty).
func New(binary string, timeout time.Duration, logger *slog.Logger) (*FFprobe, error) {
	if binary == "" {
		binary = "ffprobe"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, binary)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FFprobe{binary: path, timeout: timeout, logger: logger}, nil
}

func (f *FFprobe) Probe(ctx context.Context, path string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, f.binary,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = io.Writer(&tailWriter{w: &stderr, limit: maxStderrBytes})

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		f.logger.Warn("ffprobe failed",
			"exit_code", exitCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"stderr_tail", strings.TrimSpace(stderr.String()),
		)
		return nil, fmt.Errorf("ffprobe exited %d: %w", exitCode, err)
	}

	res, err := Parse(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	f.logger.Debug("ffprobe succeeded",
		"duration_ms", time.Since(start).Milliseconds(),
		"format", res.FormatName,
	)
	return res, nil
}

type ffprobeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
}

// Parse decodes `ffprobe -print_format json -show_format -show_streams` output.
func Parse(data []byte) (*Result, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("cannot parse ffprobe JSON: %w", err)
	}

	res := &Result{FormatName: out.Format.FormatName}
	if br, err := strconv.ParseInt(out.Format.BitRate, 10, 64); err == nil {
		res.Bitrate = br
	}
	durationSec := out.Format.Duration

	videoSeen := false
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if videoSeen {
				continue
			}
			videoSeen = true
			res.VideoCodec = s.CodecName
			if s.Width > 0 && s.Height > 0 {
				w, h := s.Width, s.Height
				res.Width, res.Height = &w, &h
			}
			rate := s.AvgFrameRate
			if parseRate(rate) == 0 {
				rate = s.RFrameRate
			}
			if fps := parseRate(rate); fps > 0 {
				res.FPS = &fps
			}
			if durationSec == "" {
				durationSec = s.Duration
			}
		case "audio":
			if !res.HasAudio {
				res.HasAudio = true
				res.AudioCodec = s.CodecName
			}
		}
	}

	if sec, err := strconv.ParseFloat(durationSec, 64); err == nil && sec >= 0 {
		ms := int64(sec*1000 + 0.5)
		res.DurationMS = &ms
	}
	return res, nil
}

// parseRate converts an ffprobe rational such as "30000/1001" to frames per
// second, rounded to three decimals. Unparseable or 0/0 rates yield 0.
func parseRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	d := 1.0
	if found {
		if d, err = strconv.ParseFloat(den, 64); err != nil || d == 0 {
			return 0
		}
	}
	v := n / d
	return float64(int64(v*1000+0.5)) / 1000
}

// tailWriter keeps only the last limit bytes written.
type tailWriter struct {
	w     *bytes.Buffer
	limit int
}

func (tw *tailWriter) Write(p []byte) (int, error) {
	n := len(p)
	tw.w.Write(p)
	if tw.w.Len() > tw.limit {
		b := tw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-tw.limit:]...)
		tw.w.Reset()
		tw.w.Write(tail)
	}
	return n, nil
}
