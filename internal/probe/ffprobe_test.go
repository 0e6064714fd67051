package probe

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOutput = `{
  "streams": [
    {"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080,
     "r_frame_rate": "30000/1001", "avg_frame_rate": "30000/1001", "duration": "12.512000"},
    {"codec_type": "audio", "codec_name": "aac"},
    {"codec_type": "video", "codec_name": "mjpeg", "width": 320, "height": 240, "r_frame_rate": "90000/1"}
  ],
  "format": {"format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "12.533000", "bit_rate": "4500123"}
}`

func TestParse_VideoWithAudio(t *testing.T) {
	res, err := Parse([]byte(sampleOutput))
	require.NoError(t, err)

	require.NotNil(t, res.DurationMS)
	assert.Equal(t, int64(12533), *res.DurationMS)
	require.NotNil(t, res.Width)
	assert.Equal(t, 1920, *res.Width)
	assert.Equal(t, 1080, *res.Height)
	require.NotNil(t, res.FPS)
	assert.InDelta(t, 29.97, *res.FPS, 0.001)
	assert.True(t, res.HasAudio)
	assert.Equal(t, "h264", res.VideoCodec)
	assert.Equal(t, "aac", res.AudioCodec)
	assert.Equal(t, int64(4500123), res.Bitrate)
}

func TestParse_AudioOnly(t *testing.T) {
	res, err := Parse([]byte(`{"streams":[{"codec_type":"audio","codec_name":"mp3"}],"format":{"duration":"3.0"}}`))
	require.NoError(t, err)

	assert.Nil(t, res.Width)
	assert.Nil(t, res.FPS)
	assert.True(t, res.HasAudio)
	require.NotNil(t, res.DurationMS)
	assert.Equal(t, int64(3000), *res.DurationMS)
}

func TestParse_StreamDurationFallback(t *testing.T) {
	res, err := Parse([]byte(`{"streams":[{"codec_type":"video","width":640,"height":360,"avg_frame_rate":"0/0","r_frame_rate":"25/1","duration":"2.5"}],"format":{}}`))
	require.NoError(t, err)

	require.NotNil(t, res.DurationMS)
	assert.Equal(t, int64(2500), *res.DurationMS)
	require.NotNil(t, res.FPS)
	assert.Equal(t, 25.0, *res.FPS)
}

func TestParse_InvalidJSON(t *testing.T) {
	_, err := Parse([]byte("not json"))
	assert.Error(t, err)
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"24000/1001", 23.976},
		{"25", 25},
		{"0/0", 0},
		{"", 0},
		{"x/1", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseRate(tt.in), tt.in)
	}
}

func TestTailWriter_KeepsOnlyTail(t *testing.T) {
	var buf bytes.Buffer
	tw := &tailWriter{w: &buf, limit: 10}

	n, err := tw.Write([]byte("hello world of test data"))
	require.NoError(t, err)
	assert.Equal(t, 24, n)
	assert.Equal(t, " test data", buf.String())
}

func TestNew_MissingBinary(t *testing.T) {
	_, err := New("framecut-no-such-ffprobe", time.Second, discardLogger())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestProbe_RunsBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in requires a POSIX shell")
	}
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "out.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(sampleOutput), 0o644))
	script := filepath.Join(dir, "fake-ffprobe")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncat "+jsonPath+"\n"), 0o755))

	p, err := New(script, 5*time.Second, discardLogger())
	require.NoError(t, err)

	res, err := p.Probe(context.Background(), "/ignored.mp4")
	require.NoError(t, err)
	assert.Equal(t, 1920, *res.Width)
}

func TestProbe_NonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in requires a POSIX shell")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-ffprobe")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho 'moov atom not found' >&2\nexit 1\n"), 0o755))

	p, err := New(script, 5*time.Second, discardLogger())
	require.NoError(t, err)

	_, err = p.Probe(context.Background(), "/broken.mp4")
	assert.ErrorContains(t, err, "ffprobe exited 1")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
