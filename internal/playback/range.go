package playback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidRange  = errors.New("invalid range format")
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

// Range is an inclusive byte interval.
type Range struct {
	Start int64
	End   int64
}

func (r Range) Length() int64 {
	return r.End - r.Start + 1
}

func (r Range) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, total)
}

// ParseRange interprets a Range header against a body of size bytes. An empty
// header yields (nil, nil). Only the first range of a multi-range request is
// honoured.
func ParseRange(header string, size int64) (*Range, error) {
	if header == "" {
		return nil, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, ErrInvalidRange
	}
	if first, _, multi := strings.Cut(spec, ","); multi {
		spec = first
	}
	startText, endText, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return nil, ErrInvalidRange
	}

	if startText == "" {
		return suffixRange(endText, size)
	}

	start, err := strconv.ParseInt(startText, 10, 64)
	if err != nil || start < 0 {
		return nil, ErrInvalidRange
	}
	end := size - 1
	if endText != "" {
		if end, err = strconv.ParseInt(endText, 10, 64); err != nil {
			return nil, ErrInvalidRange
		}
	}
	if start > end || start >= size {
		return nil, ErrUnsatisfiable
	}
	return &Range{Start: start, End: min(end, size-1)}, nil
}

// suffixRange handles "bytes=-N", the last N bytes.
func suffixRange(text string, size int64) (*Range, error) {
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil || n <= 0 {
		return nil, ErrInvalidRange
	}
	if size == 0 {
		return nil, ErrUnsatisfiable
	}
	return &Range{Start: max(size-n, 0), End: size - 1}, nil
}
