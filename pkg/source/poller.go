package source

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rehud/rehud-delta/log"
	"github.com/rehud/rehud-delta/pkg/model"
)

const DefaultFrameRate = 60

type (
	// FrameHandler is called for each frame on the poller goroutine.
	FrameHandler func(frame *model.Frame)
	Poller       struct {
		src     FrameSource
		handler FrameHandler
		rate    int
		paced   bool
		l       *log.Logger
	}
	PollerOption func(*Poller)
)

// WithFrameRate sets the number of frames read per second.
func WithFrameRate(hz int) PollerOption {
	return func(p *Poller) {
		if hz > 0 {
			p.rate = hz
		}
	}
}

// WithoutPacing reads frames as fast as the handler consumes them.
func WithoutPacing() PollerOption {
	return func(p *Poller) {
		p.paced = false
	}
}

func WithLogger(l *log.Logger) PollerOption {
	return func(p *Poller) {
		p.l = l
	}
}

func NewPoller(src FrameSource, handler FrameHandler, opts ...PollerOption) *Poller {
	ret := &Poller{
		src:     src,
		handler: handler,
		rate:    DefaultFrameRate,
		paced:   true,
		l:       log.Default().Named("source"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Run reads frames until the source is exhausted or ctx is done.
// A slow handler causes ticks to be dropped, frames are never queued.
// Returns nil on io.EOF and on cancellation.
func (p *Poller) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if p.paced {
		ticker := time.NewTicker(time.Second / time.Duration(p.rate))
		defer ticker.Stop()
		tick = ticker.C
	}
	start := time.Now()
	num := 0
	defer func() {
		p.l.Info("poller stopped", log.Int("frames", num), log.Since("duration", start))
	}()
	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return nil
		}
		frame, err := p.src.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return nil
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return nil
			default:
				return err
			}
		}
		p.handler(frame)
		num++
	}
}
