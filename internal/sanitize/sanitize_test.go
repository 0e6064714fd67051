package sanitize

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestName(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"Demo Cut (v2)", 0, "Demo Cut (v2)"},
		{"a/b\\c", 0, "a_b_c"},
		{"line\nbreak", 0, "linebreak"},
		{"  padded  ", 0, "padded"},
		{"abcdef", 3, "abc"},
		{"片段一", 0, "片段一"},
	}
	for _, tt := range tests {
		if got := Name(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("Name(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}

func TestFilename(t *testing.T) {
	tests := map[string]string{
		"My Clip.mov":      "My_Clip.mov",
		"../../etc/passwd": "passwd",
		".hidden":          "hidden",
		"":                 "upload.bin",
		"???":              "___",
	}
	for in, want := range tests {
		if got := Filename(in, "upload.bin"); got != want {
			t.Errorf("Filename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestJoin(t *testing.T) {
	root := t.TempDir()

	got, err := Join(root, "exports/job.mp4")
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if want := filepath.Join(root, "exports", "job.mp4"); got != want {
		t.Errorf("Join() = %q, want %q", got, want)
	}

	for _, bad := range []string{"../secret", "exports/../../x", "/etc/passwd"} {
		if _, err := Join(root, bad); !errors.Is(err, ErrTraversal) {
			t.Errorf("Join(%q) error = %v, want ErrTraversal", bad, err)
		}
	}
	if _, err := Join(root, ""); err == nil {
		t.Error("Join(\"\") should fail")
	}
}
