// Package source provides frames to the processing pipeline.
package source

import (
	"context"
	"io"

	"github.com/rehud/rehud-delta/pkg/model"
)

// FrameSource delivers telemetry frames. Next returns io.EOF when no more
// frames are available.
type FrameSource interface {
	Next(ctx context.Context) (*model.Frame, error)
}

// SliceSource delivers a fixed list of frames.
type SliceSource struct {
	frames []*model.Frame
	pos    int
}

var _ FrameSource = (*SliceSource)(nil)

func NewSliceSource(frames []*model.Frame) *SliceSource {
	return &SliceSource{frames: frames}
}

func (s *SliceSource) Next(ctx context.Context) (*model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.frames) {
		return nil, io.EOF
	}
	s.pos++
	return s.frames[s.pos-1], nil
}
