// Package nats publishes frame results and lap events to a NATS server.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aarondl/opt/null"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/rehud/rehud-delta/log"
	"github.com/rehud/rehud-delta/pkg/model"
)

const (
	DefaultSubjectPrefix = "rdelta"
	Bucket               = "rdelta"
)

type (
	// Conn is the part of *nats.Conn used for publishing.
	Conn interface {
		Publish(subj string, data []byte) error
	}
	// KeyValue is the part of jetstream.KeyValue used for run summaries.
	KeyValue interface {
		Put(ctx context.Context, key string, value []byte) (uint64, error)
	}
	Publisher struct {
		conn   Conn
		kv     KeyValue
		runID  string
		prefix string
		l      *log.Logger
	}
	Option func(*Publisher)

	// RunSummary is stored in the key value bucket whenever the main driver completes a lap.
	RunSummary struct {
		RunID              string            `json:"runId"`
		MainDriver         string            `json:"mainDriver"`
		CompletedLaps      int               `json:"completedLaps"`
		BestLapTime        null.Val[float64] `json:"bestLapTime"`
		SessionBestLapTime null.Val[float64] `json:"sessionBestLapTime"`
		UpdatedAt          time.Time         `json:"updatedAt"`
	}
)

var (
	_ Conn     = (*nats.Conn)(nil)
	_ KeyValue = jetstream.KeyValue(nil)
)

func WithLogger(l *log.Logger) Option {
	return func(p *Publisher) {
		p.l = l
	}
}

func WithKeyValue(kv KeyValue) Option {
	return func(p *Publisher) {
		p.kv = kv
	}
}

func WithRunID(id string) Option {
	return func(p *Publisher) {
		p.runID = id
	}
}

func WithSubjectPrefix(prefix string) Option {
	return func(p *Publisher) {
		p.prefix = prefix
	}
}

func NewPublisher(conn Conn, opts ...Option) *Publisher {
	ret := &Publisher{
		conn:   conn,
		runID:  uuid.NewString(),
		prefix: DefaultSubjectPrefix,
		l:      log.Default().Named("proxy.nats"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// SetupKeyValue creates (or reuses) the bucket holding run summaries.
func SetupKeyValue(ctx context.Context, nc *nats.Conn) (jetstream.KeyValue, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, err
	}
	return js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: Bucket,
		TTL:    time.Hour * 24,
	})
}

func (p *Publisher) RunID() string {
	return p.runID
}

func (p *Publisher) ResultSubject() string {
	return fmt.Sprintf("%s.%s.result", p.prefix, p.runID)
}

func (p *Publisher) LapSubject() string {
	return fmt.Sprintf("%s.%s.lap", p.prefix, p.runID)
}

func (p *Publisher) SummaryKey() string {
	return fmt.Sprintf("runs.%s", p.runID)
}

func (p *Publisher) PublishResult(res *model.FrameResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("error marshaling frame result: %w", err)
	}
	return p.conn.Publish(p.ResultSubject(), data)
}

func (p *Publisher) PublishLap(ctx context.Context, ev *model.LapEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("error marshaling lap event: %w", err)
	}
	if err := p.conn.Publish(p.LapSubject(), data); err != nil {
		return err
	}
	if p.kv == nil || !ev.MainDriver {
		return nil
	}
	summary, _ := json.Marshal(RunSummary{
		RunID:              p.runID,
		MainDriver:         ev.DriverKey,
		CompletedLaps:      ev.CompletedLaps,
		BestLapTime:        ev.BestLapTime,
		SessionBestLapTime: ev.SessionBestLapTime,
		UpdatedAt:          time.Now(),
	})
	rev, err := p.kv.Put(ctx, p.SummaryKey(), summary)
	if err != nil {
		return fmt.Errorf("error storing run summary: %w", err)
	}
	p.l.Debug("run summary put", log.String("key", p.SummaryKey()), log.Uint64("rev", rev))
	return nil
}

// Run publishes everything received on the channels until both are closed
// or ctx is done. Publish errors are logged and do not stop the loop.
//
//nolint:whitespace // editor/linter issue
func (p *Publisher) Run(
	ctx context.Context,
	results <-chan *model.FrameResult,
	laps <-chan *model.LapEvent,
) {
	p.l.Info("publishing", log.String("runId", p.runID),
		log.String("subject", fmt.Sprintf("%s.%s.>", p.prefix, p.runID)))
	for results != nil || laps != nil {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			if err := p.PublishResult(res); err != nil {
				p.l.Warn("could not publish result", log.ErrorField(err))
			}
		case ev, ok := <-laps:
			if !ok {
				laps = nil
				continue
			}
			if err := p.PublishLap(ctx, ev); err != nil {
				p.l.Warn("could not publish lap", log.ErrorField(err))
			}
		}
	}
	p.l.Debug("publisher channels closed")
}
