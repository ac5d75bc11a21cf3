// Package ws streams frame results and lap events to overlay clients.
package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/rehud/rehud-delta/log"
	"github.com/rehud/rehud-delta/pkg/model"
	"github.com/rehud/rehud-delta/pkg/utils/broadcast"
)

const (
	MessageTypeResult = "result"
	MessageTypeLap    = "lap"

	writeWait = 10 * time.Second
)

type (
	Message struct {
		MessageType string `json:"type"`
		Body        any    `json:"body,omitempty"`
	}
	Server struct {
		results  broadcast.BroadcastServer[*model.FrameResult]
		laps     broadcast.BroadcastServer[*model.LapEvent]
		upgrader websocket.Upgrader
		// minimum time between two result messages per client, 0 sends every result
		minInterval time.Duration
		l           *log.Logger
	}
	Option func(*Server)
)

func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		s.l = l
	}
}

// WithMinInterval limits the rate of result messages per client.
func WithMinInterval(d time.Duration) Option {
	return func(s *Server) {
		s.minInterval = d
	}
}

//nolint:whitespace // editor/linter issue
func NewServer(
	results broadcast.BroadcastServer[*model.FrameResult],
	laps broadcast.BroadcastServer[*model.LapEvent],
	opts ...Option,
) *Server {
	ret := &Server{
		results: results,
		laps:    laps,
		upgrader: websocket.Upgrader{
			// overlays are loaded from local files or other hosts
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		l: log.Default().Named("endpoints.ws"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.websocketHandler)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return cors.New(cors.Options{
		AllowedMethods:  []string{http.MethodGet, http.MethodHead},
		AllowOriginFunc: func(origin string) bool { return true },
	}).Handler(r)
}

// Serve runs the http server until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errChan := make(chan error, 1)
	go func() {
		s.l.Info("websocket endpoint listening", log.String("addr", addr))
		errChan <- srv.ListenAndServe()
	}()
	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		<-errChan
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

//nolint:funlen,cyclop // by design
func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	// subscribe before upgrading so no message after the handshake is lost
	resChan := s.results.Subscribe()
	lapChan := s.laps.Subscribe()
	defer func() {
		s.results.CancelSubscription(resChan)
		s.laps.CancelSubscription(lapChan)
	}()

	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.l.Warn("upgrade failed", log.ErrorField(err))
		return
	}
	defer c.Close()
	s.l.Debug("client connected", log.String("remote", r.RemoteAddr))

	// the reader detects closed connections, clients are not expected to send anything
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(msg Message) bool {
		//nolint:errcheck // checked on write
		c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteJSON(msg); err != nil {
			s.l.Debug("write failed", log.ErrorField(err))
			return false
		}
		return true
	}
	var lastSent time.Time
	for {
		select {
		case <-done:
			s.l.Debug("client disconnected", log.String("remote", r.RemoteAddr))
			return
		case <-r.Context().Done():
			return
		case res, ok := <-resChan:
			if !ok {
				return
			}
			if s.minInterval > 0 && time.Since(lastSent) < s.minInterval {
				continue
			}
			lastSent = time.Now()
			if !write(Message{MessageType: MessageTypeResult, Body: res}) {
				return
			}
		case ev, ok := <-lapChan:
			if !ok {
				return
			}
			if !write(Message{MessageType: MessageTypeLap, Body: ev}) {
				return
			}
		}
	}
}
