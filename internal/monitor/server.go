// Package monitor serves pipeline statistics over a websocket, one JSON
// snapshot per interval. Diagnostics only: event data never leaves the
// exchange queue.
package monitor

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tobias-Fischer/dvstream/internal/stats"
)

type Server struct {
	counters *stats.Counters
	interval time.Duration
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func New(counters *stats.Counters, interval time.Duration, log zerolog.Logger) *Server {
	if interval <= 0 {
		interval = time.Second
	}
	return &Server{
		counters: counters,
		interval: interval,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  256,
			WriteBufferSize: 1024,
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("monitor client connected")
	go s.stream(conn)
}

func (s *Server) stream(conn *websocket.Conn) {
	defer conn.Close()

	// Reader goroutine consumes control frames; its exit means the client
	// is gone.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(s.counters.Snapshot()); err != nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-gone:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.counters.Snapshot()); err != nil {
				return
			}
		}
	}
}
