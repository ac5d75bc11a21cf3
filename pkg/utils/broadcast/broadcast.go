package broadcast

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/rehud/rehud-delta/log"
)

//nolint:lll // by design
// see https://betterprogramming.pub/how-to-broadcast-messages-in-go-using-channels-b68f42bdf32e

// DefaultSendTimeout is the time a slow listener may block before the message is skipped.
const DefaultSendTimeout = 50 * time.Millisecond

type BroadcastServer[T any] interface {
	// Subscribe returns a channel receiving all messages. The channel is closed
	// when the subscription is cancelled or the server is closed.
	Subscribe() <-chan T
	CancelSubscription(<-chan T)
	Close()
}

type broadcastServer[T any] struct {
	name           string
	eventKey       string
	source         <-chan T
	listeners      []chan T
	addListener    chan chan T
	removeListener chan (<-chan T)
	ctx            context.Context
	cancel         context.CancelFunc
	done           chan struct{}
	sendTimeout    time.Duration
	log            *log.Logger
	numRcv         atomic.Int64
	numSnd         atomic.Int64
	numSkip        atomic.Int64
	numListener    atomic.Int64
}

type Option[T any] func(*broadcastServer[T])

// WithTelemetry sets the event attribute of the registered gauges.
func WithTelemetry[T any](eventKey string) Option[T] {
	return func(b *broadcastServer[T]) {
		b.eventKey = eventKey
	}
}

func WithSendTimeout[T any](d time.Duration) Option[T] {
	return func(b *broadcastServer[T]) {
		b.sendTimeout = d
	}
}

func WithLogger[T any](l *log.Logger) Option[T] {
	return func(b *broadcastServer[T]) {
		b.log = l
	}
}

func (b *broadcastServer[T]) Subscribe() <-chan T {
	ch := make(chan T)
	select {
	case b.addListener <- ch:
	case <-b.done:
		close(ch)
	}
	return ch
}

func (b *broadcastServer[T]) CancelSubscription(ch <-chan T) {
	select {
	case b.removeListener <- ch:
	case <-b.done:
	}
}

func (b *broadcastServer[T]) Close() {
	b.log.Info("Closing broadcast server",
		log.String("name", b.name),
		log.Int64("rcv", b.numRcv.Load()),
		log.Int64("snd", b.numSnd.Load()),
		log.Int64("skip", b.numSkip.Load()))
	b.cancel()
	<-b.done
}

// NewBroadcastServer distributes every message from source to all subscribers.
// The server stops when Close is called or source is closed.
//
//nolint:whitespace // false positive
func NewBroadcastServer[T any](
	name string,
	source <-chan T,
	opts ...Option[T],
) BroadcastServer[T] {
	ctx, cancel := context.WithCancel(context.Background())
	b := &broadcastServer[T]{
		name:           name,
		eventKey:       name,
		source:         source,
		addListener:    make(chan chan T),
		removeListener: make(chan (<-chan T)),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
		sendTimeout:    DefaultSendTimeout,
		log:            log.Default().Named("broadcast"),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.setupMetrics()
	go b.serve()
	return b
}

//nolint:lll,funlen // readability
func (b *broadcastServer[T]) setupMetrics() {
	meter := otel.GetMeterProvider().Meter(fmt.Sprintf("rdelta.broadcast.%s", b.name))
	register := func(metricName, desc, unit string, valueProvider func() int64) {
		if _, err := meter.Int64ObservableGauge(
			metricName,
			metric.WithDescription(desc),
			metric.WithUnit(unit),

			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(valueProvider(),
					metric.WithAttributes(
						attribute.String("name", b.name),
						attribute.String("event", b.eventKey),
					),
				)
				return nil
			})); err != nil {
			b.log.Error("failed to register metric",
				log.String("metric", metricName),
				log.ErrorField(err))
		}
	}
	type data struct {
		name  string
		desc  string
		unit  string
		value func() int64
	}
	for _, d := range []*data{
		{"rdelta.broadcast.rcv", "Number of received messages", "{count}", b.numRcv.Load},
		{"rdelta.broadcast.snd", "Number of sent messages", "{count}", b.numSnd.Load},
		{"rdelta.broadcast.skip", "Number of skipped messages", "{count}", b.numSkip.Load},
		{"rdelta.broadcast.listener", "Number of listeners", "{count}", b.numListener.Load},
	} {
		register(d.name, d.desc, d.unit, d.value)
	}
}

//nolint:funlen,cyclop,gocognit // by design
func (b *broadcastServer[T]) serve() {
	defer func() {
		b.log.Debug("Closing listeners", log.String("name", b.name))
		for _, listener := range b.listeners {
			close(listener)
		}
		b.listeners = nil
		b.numListener.Store(0)
		close(b.done)
	}()
	m := sync.Mutex{}
	for {
		select {
		case <-b.ctx.Done():
			b.log.Debug("broadcast server about to be closed", log.String("name", b.name))
			return
		case ch := <-b.addListener:
			b.listeners = append(b.listeners, ch)
			b.numListener.Store(int64(len(b.listeners)))
		case ch := <-b.removeListener:
			m.Lock()
			for i, listener := range b.listeners {
				if listener == ch {
					b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
					close(listener)
					b.log.Debug("removed listener",
						log.String("name", b.name), log.Int("len", len(b.listeners)))
					break
				}
			}
			b.numListener.Store(int64(len(b.listeners)))
			m.Unlock()
		case msg, ok := <-b.source:
			if !ok {
				b.log.Debug("source closed", log.String("name", b.name))
				return
			}
			m.Lock()
			b.numRcv.Add(1)
			for _, listener := range b.listeners {
				// don't wait too long for slow listeners
				select {
				case listener <- msg:
					b.numSnd.Add(1)
				case <-time.After(b.sendTimeout):
					b.numSkip.Add(1)
				}
			}
			m.Unlock()
		}
	}
}
