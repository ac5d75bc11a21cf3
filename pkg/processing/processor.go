package processing

import (
	"context"
	"sync"
	"time"

	"github.com/aarondl/opt/null"
	"github.com/gofrs/uuid/v5"

	"github.com/rehud/rehud-delta/log"
	"github.com/rehud/rehud-delta/pkg/model"
	"github.com/rehud/rehud-delta/pkg/processing/driver"
	"github.com/rehud/rehud-delta/pkg/processing/fleet"
	"github.com/rehud/rehud-delta/pkg/processing/session"
	"github.com/rehud/rehud-delta/pkg/storage"
	"github.com/rehud/rehud-delta/pkg/utils/cache"
)

const persistQueueSize = 32

// Processor runs the per frame pipeline. It knows which components to call
// and which channels to publish to.
// ProcessFrame must be called from a single goroutine.
type Processor struct {
	log      *log.Logger
	fleet    *fleet.Fleet
	tracker  *session.Tracker
	store    storage.LapStore
	bestLaps cache.Cache[model.Combination, model.LapRecord]
	keepLaps int
	metrics  *metrics

	resultChan chan *model.FrameResult
	lapChan    chan *model.LapEvent

	persistQueue chan *model.LapRecord
	bestLapChan  chan loadedBestLap
	persistWg    sync.WaitGroup
	loadWg       sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
}

type loadedBestLap struct {
	driverKey string
	rec       *model.LapRecord
}

type ProcessorOption func(proc *Processor)

func WithFleet(f *fleet.Fleet) ProcessorOption {
	return func(proc *Processor) {
		proc.fleet = f
	}
}

func WithLapStore(store storage.LapStore) ProcessorOption {
	return func(proc *Processor) {
		proc.store = store
	}
}

// WithKeepLaps sets the number of recent laps kept per combination.
func WithKeepLaps(n int) ProcessorOption {
	return func(proc *Processor) {
		proc.keepLaps = n
	}
}

func WithLogger(l *log.Logger) ProcessorOption {
	return func(proc *Processor) {
		proc.log = l
	}
}

//nolint:whitespace // can't make both editor and linter happy
func WithPublishChannels(
	resultChan chan *model.FrameResult,
	lapChan chan *model.LapEvent,
) ProcessorOption {
	return func(proc *Processor) {
		proc.resultChan = resultChan
		proc.lapChan = lapChan
	}
}

func NewProcessor(opts ...ProcessorOption) *Processor {
	ctx, cancel := context.WithCancel(context.Background())
	ret := &Processor{
		log:          log.Default().Named("processing"),
		keepLaps:     storage.MaxEntries,
		persistQueue: make(chan *model.LapRecord, persistQueueSize),
		bestLapChan:  make(chan loadedBestLap, 1),
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.fleet == nil {
		ret.fleet = fleet.New()
	}
	ret.fleet.SetMainDriverListener(ret)
	ret.tracker = session.New(ret.fleet)
	ret.metrics = newMetrics(ret.log)
	if ret.store != nil {
		ret.bestLaps = cache.New(
			cache.WithLoader[model.Combination, model.LapRecord](ret.store.LoadBestLap),
			cache.WithLogger[model.Combination, model.LapRecord](ret.log.Named("cache")),
		)
		ret.persistWg.Add(1)
		go ret.persist()
	}
	return ret
}

func (p *Processor) Fleet() *fleet.Fleet {
	return p.fleet
}

// Close stops the persistence worker after all queued laps are written.
func (p *Processor) Close() {
	close(p.persistQueue)
	p.persistWg.Wait()
	p.cancel()
	p.loadWg.Wait()
}

// ProcessFrame runs a single frame through the pipeline.
func (p *Processor) ProcessFrame(frame *model.Frame) *model.FrameResult {
	start := time.Now()
	p.applyLoadedBestLap()

	for _, entry := range p.tracker.Update(frame) {
		d, persist := p.fleet.NewLap(frame, entry)
		if d == nil {
			continue
		}
		p.handleLap(frame, entry, d, persist)
	}

	res := p.fleet.ProcessFrame(frame)
	p.metrics.frameProcessed(p.ctx, time.Since(start), p.fleet.ActiveCount())
	if p.resultChan != nil {
		p.resultChan <- res
	}
	return res
}

func (p *Processor) handleLap(frame *model.Frame, entry *model.DriverEntry, d *driver.Driver, persist bool) {
	isMain := d == p.fleet.MainDriver()
	p.metrics.lapCompleted(p.ctx, isMain)
	if p.lapChan != nil {
		p.lapChan <- &model.LapEvent{
			DriverKey:            d.Key(),
			MainDriver:           isMain,
			CompletedLaps:        entry.CompletedLaps,
			BestLapTime:          d.BestLapTime(),
			SessionBestLapTime:   d.SessionBestLapTime(),
			ShouldPersistBestLap: persist,
			SimulationTime:       frame.SimulationTime,
		}
	}
	if !isMain || p.store == nil || frame.Suppressed() {
		return
	}
	lapTime, valid := d.LastLap()
	lt, ok := lapTime.Get()
	if !ok {
		return
	}
	rec := &model.LapRecord{
		ID:          uuid.Must(uuid.NewV7()),
		DriverKey:   d.Key(),
		Combination: combination(frame, entry),
		LapTime:     lt,
		Valid:       valid,
		RecordedAt:  time.Now(),
	}
	if persist {
		points, err := d.BestLapPoints()
		if err != nil {
			p.log.Warn("best lap telemetry incomplete", log.ErrorField(err))
		} else {
			rec.Points = points
			rec.PointsGap = null.From(driver.DistanceGap)
		}
	}
	select {
	case p.persistQueue <- rec:
	default:
		p.log.Warn("persist queue full, dropping lap", log.String("driver", d.Key()))
	}
}

// MainDriverChanged starts loading the stored best lap of the new main driver.
// The result is applied at the start of the next frame.
//
//nolint:whitespace // can't make both editor and linter happy
func (p *Processor) MainDriverChanged(
	frame *model.Frame,
	entry *model.DriverEntry,
	d *driver.Driver,
	loadBestLap bool,
) {
	p.log.Info("main driver changed",
		log.String("driver", d.Key()), log.Bool("loadBestLap", loadBestLap))
	if !loadBestLap || p.store == nil {
		return
	}
	c := combination(frame, entry)
	key := d.Key()
	p.loadWg.Add(1)
	go func() {
		defer p.loadWg.Done()
		rec, err := p.bestLaps.Get(p.ctx, c)
		if err != nil {
			p.log.Error("could not load best lap", log.ErrorField(err))
			return
		}
		if rec == nil {
			p.log.Debug("no stored best lap", log.Any("combination", c))
			return
		}
		select {
		case p.bestLapChan <- loadedBestLap{driverKey: key, rec: rec}:
		case <-p.ctx.Done():
		}
	}()
}

func (p *Processor) applyLoadedBestLap() {
	select {
	case loaded := <-p.bestLapChan:
		m := p.fleet.MainDriver()
		if m == nil || m.Key() != loaded.driverKey {
			p.log.Debug("main driver changed while loading best lap, discarding")
			return
		}
		p.fleet.UpdateBestLap(loaded.rec)
	default:
	}
}

func (p *Processor) persist() {
	defer p.persistWg.Done()
	for rec := range p.persistQueue {
		if err := p.store.SaveLap(p.ctx, rec); err != nil {
			p.log.Error("could not save lap", log.ErrorField(err))
			continue
		}
		if rec.HasTelemetry() {
			p.bestLaps.Invalidate(rec.Combination)
		}
		n, err := p.store.Prune(p.ctx, rec.Combination, p.keepLaps)
		if err != nil {
			p.log.Error("could not prune laps", log.ErrorField(err))
			continue
		}
		p.log.Debug("lap saved",
			log.String("id", rec.ID.String()),
			log.Float64("lapTime", rec.LapTime),
			log.Bool("telemetry", rec.HasTelemetry()),
			log.Int64("pruned", n))
	}
}

func combination(frame *model.Frame, entry *model.DriverEntry) model.Combination {
	return model.Combination{
		LayoutID:              frame.LayoutID,
		CarID:                 entry.Info.ModelID,
		ClassPerformanceIndex: entry.Info.ClassPerformanceIndex,
	}
}
