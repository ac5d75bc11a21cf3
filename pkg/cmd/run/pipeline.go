package run

import (
	"context"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/rehud/rehud-delta/log"
	"github.com/rehud/rehud-delta/pkg/config"
	"github.com/rehud/rehud-delta/pkg/model"
	"github.com/rehud/rehud-delta/pkg/processing"
	"github.com/rehud/rehud-delta/pkg/processing/fleet"
	"github.com/rehud/rehud-delta/pkg/source"
	"github.com/rehud/rehud-delta/pkg/storage"
	"github.com/rehud/rehud-delta/pkg/utils/broadcast"
)

const publishBufferSize = 16

// consumer receives the published data until the channels are closed.
type consumer func(results <-chan *model.FrameResult, laps <-chan *model.LapEvent)

// pipeline connects a frame source with the processor and the consumers
// of its results.
type pipeline struct {
	proc       *processing.Processor
	resultChan chan *model.FrameResult
	lapChan    chan *model.LapEvent
	results    broadcast.BroadcastServer[*model.FrameResult]
	laps       broadcast.BroadcastServer[*model.LapEvent]
	wg         sync.WaitGroup
	l          *log.Logger
}

func newPipeline(f *fleet.Fleet, store storage.LapStore) *pipeline {
	ret := &pipeline{
		resultChan: make(chan *model.FrameResult, publishBufferSize),
		lapChan:    make(chan *model.LapEvent, publishBufferSize),
		l:          log.Default().Named("run"),
	}
	opts := []processing.ProcessorOption{
		processing.WithFleet(f),
		processing.WithPublishChannels(ret.resultChan, ret.lapChan),
	}
	if store != nil {
		opts = append(opts, processing.WithLapStore(store))
	}
	ret.proc = processing.NewProcessor(opts...)
	ret.results = broadcast.NewBroadcastServer("results", ret.resultChan,
		broadcast.WithTelemetry[*model.FrameResult]("result"))
	ret.laps = broadcast.NewBroadcastServer("laps", ret.lapChan,
		broadcast.WithTelemetry[*model.LapEvent]("lap"))
	return ret
}

// attach subscribes c before the first frame is processed.
func (p *pipeline) attach(c consumer) {
	results := p.results.Subscribe()
	laps := p.laps.Subscribe()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		c(results, laps)
	}()
}

// run processes all frames of src. Afterwards the consumers are drained and
// pending laps are persisted.
func (p *pipeline) run(ctx context.Context, src source.FrameSource, opts ...source.PollerOption) error {
	poller := source.NewPoller(src, func(frame *model.Frame) {
		p.proc.ProcessFrame(frame)
	}, opts...)
	err := poller.Run(ctx)

	close(p.resultChan)
	close(p.lapChan)
	p.wg.Wait()
	p.results.Close()
	p.laps.Close()
	p.proc.Close()
	p.l.Info("pipeline stopped")
	return err
}

// safeModeReloader applies the safe mode setting whenever the config file changes.
func safeModeReloader(f *fleet.Fleet, v *viper.Viper) func(fsnotify.Event) {
	return func(e fsnotify.Event) {
		safeMode := v.GetBool(config.SafeModeKey)
		if safeMode == f.SafeMode() {
			return
		}
		log.Info("config changed",
			log.String("file", e.Name),
			log.Bool(config.SafeModeKey, safeMode))
		f.SetSafeMode(safeMode)
	}
}
