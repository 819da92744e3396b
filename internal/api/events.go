package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"pixelbatch/internal/logging"
)

const (
	eventBuffer     = 64
	eventWriteWait  = 5 * time.Second
	eventPingPeriod = 30 * time.Second
)

// handleEvents streams a snapshot and then every queue event. Events are
// dropped for a client that falls behind; the next event carries the full
// state again.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	events, unsubscribe := s.deps.Store.Subscribe(eventBuffer)
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := s.writeEvent(conn, Event{Action: "snapshot", State: FromState(s.deps.Store.Snapshot())}); err != nil {
		return
	}
	ping := time.NewTicker(eventPingPeriod)
	defer ping.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := s.writeEvent(conn, Event{Action: ev.Action, State: FromState(ev.State)}); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventWriteWait)); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) writeEvent(conn *websocket.Conn, ev Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
	if err := conn.WriteJSON(ev); err != nil {
		s.logger.Debug("websocket write failed", logging.Error(err))
		return err
	}
	return nil
}
