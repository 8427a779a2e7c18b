// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relabs-tech/posture_monitor/internal/engine"
	"github.com/relabs-tech/posture_monitor/internal/posture"
)

const (
	calibrationPollInterval = 100 * time.Millisecond
	wsWriteTimeout          = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WebSocket message types
type WSMessage struct {
	Action  string  `json:"action"` // start, cancel, status
	Seconds float64 `json:"seconds,omitempty"`
}

type WSResponse struct {
	Type      string           `json:"type"` // started, progress, complete, cancelled, error
	Progress  float64          `json:"progress,omitempty"`
	Samples   int              `json:"samples,omitempty"`
	Remaining float64          `json:"remaining,omitempty"` // seconds
	Target    *posture.Posture `json:"target,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// calibrationHub fans calibration results out to every open calibration
// socket. Slow sockets miss results instead of stalling the engine.
type calibrationHub struct {
	mu   sync.Mutex
	subs map[chan engine.CalibrationResult]struct{}
}

func newCalibrationHub(eng *engine.Engine) *calibrationHub {
	h := &calibrationHub{subs: make(map[chan engine.CalibrationResult]struct{})}
	eng.OnCalibration(h.publish)
	return h
}

func (h *calibrationHub) subscribe() (<-chan engine.CalibrationResult, func()) {
	ch := make(chan engine.CalibrationResult, 1)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

func (h *calibrationHub) publish(r engine.CalibrationResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- r:
		default:
		}
	}
}

// calibrationSocket drives one calibration websocket. All writes happen on
// the handler goroutine.
type calibrationSocket struct {
	conn *websocket.Conn
	eng  *engine.Engine
	log  *zap.Logger
}

// calibrationWS handles the WebSocket connection for calibration.
func (s *webServer) calibrationWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("calibration: websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	results, unsubscribe := s.calibs.subscribe()
	defer unsubscribe()

	cs := &calibrationSocket{conn: conn, eng: s.eng, log: s.log}
	msgs, done := readMessages(conn, s.log)
	defer close(done)

	ticker := time.NewTicker(calibrationPollInterval)
	defer ticker.Stop()

	for {
		var err error
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			err = cs.handle(msg)

		case r := <-results:
			err = cs.sendResult(r)

		case <-ticker.C:
			// Finishes a window whose samples stopped arriving; the result
			// comes back through the hub.
			s.eng.PollCalibration()
			if st := s.eng.CalibrationStatus(); st.Active {
				err = cs.sendStatus("progress", st)
			}
		}
		if err != nil {
			s.log.Debug("calibration: websocket write failed", zap.Error(err))
			return
		}
	}
}

func readMessages(conn *websocket.Conn, log *zap.Logger) (<-chan WSMessage, chan struct{}) {
	msgs := make(chan WSMessage)
	done := make(chan struct{})
	go func() {
		defer close(msgs)
		for {
			var msg WSMessage
			if err := conn.ReadJSON(&msg); err != nil {
				log.Debug("calibration: websocket read ended", zap.Error(err))
				return
			}
			select {
			case msgs <- msg:
			case <-done:
				return
			}
		}
	}()
	return msgs, done
}

func (cs *calibrationSocket) handle(msg WSMessage) error {
	switch msg.Action {
	case "start":
		d := time.Duration(msg.Seconds * float64(time.Second))
		if err := cs.eng.StartCalibration(d); err != nil {
			return cs.sendError(err.Error())
		}
		return cs.sendStatus("started", cs.eng.CalibrationStatus())

	case "cancel":
		if err := cs.eng.CancelCalibration(); err != nil {
			return cs.sendError(err.Error())
		}
		cs.log.Info("calibration: cancelled by user")
		return cs.send(WSResponse{Type: "cancelled"})

	case "status":
		return cs.sendStatus("progress", cs.eng.CalibrationStatus())
	}
	return cs.sendError("unknown action: " + msg.Action)
}

func (cs *calibrationSocket) sendStatus(typ string, st engine.CalibrationStatus) error {
	return cs.send(WSResponse{
		Type:      typ,
		Progress:  st.Progress,
		Samples:   st.Samples,
		Remaining: st.Remaining.Seconds(),
	})
}

func (cs *calibrationSocket) sendResult(r engine.CalibrationResult) error {
	if !r.OK() {
		return cs.send(WSResponse{Type: "error", Samples: r.Samples, Message: r.Err.Error()})
	}
	target := r.Target
	return cs.send(WSResponse{Type: "complete", Progress: 1, Samples: r.Samples, Target: &target})
}

func (cs *calibrationSocket) sendError(msg string) error {
	return cs.send(WSResponse{Type: "error", Message: msg})
}

func (cs *calibrationSocket) send(resp WSResponse) error {
	cs.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return cs.conn.WriteJSON(resp)
}

// stateWS streams engine snapshots at the configured interval until the
// client goes away.
func (s *webServer) stateWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("state: websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	for {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(s.eng.Snapshot()); err != nil {
			return
		}
		select {
		case <-closed:
			return
		case <-ticker.C:
		}
	}
}
