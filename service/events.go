package service

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	natspkg "github.com/nats-io/nats.go"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// handleEvents upgrades the connection to WebSocket and forwards every
// registry event published on the NATS subjects to the client. Events are
// delivered as the JSON envelopes the publisher emits; slow clients are
// disconnected rather than buffered without bound.
func (s *Service) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		s.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	// Writes come from the NATS callback and the ping loop
	var writeMu sync.Mutex
	writeMessage := func(messageType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteMessage(messageType, data)
	}

	done := make(chan struct{})
	var closeOnce sync.Once
	closeConn := func() {
		closeOnce.Do(func() {
			close(done)
			_ = conn.Close()
		})
	}

	sub, err := s.nc.Subscribe(s.subjectPrefix+".>", func(msg *natspkg.Msg) {
		if err := writeMessage(websocket.TextMessage, msg.Data); err != nil {
			s.logger.Debug("websocket write failed, dropping client",
				"error", err, "remote", r.RemoteAddr)
			closeConn()
		}
	})
	if err != nil {
		s.logger.Error("event subscription failed", "error", err)
		_ = conn.Close()
		return
	}
	defer func() { _ = sub.Unsubscribe() }()
	defer closeConn()

	s.logger.Info("event tap connected", "remote", r.RemoteAddr)

	// Ping loop keeps intermediaries from idling the connection out
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := writeMessage(websocket.PingMessage, nil); err != nil {
					closeConn()
					return
				}
			}
		}
	}()

	// Read loop exists only to detect client disconnect; inbound frames are
	// discarded.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.logger.Info("event tap disconnected", "remote", r.RemoteAddr)
			return
		}
	}
}
