// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/posture_monitor/internal/engine"
	"github.com/relabs-tech/posture_monitor/internal/metrics"
	"github.com/relabs-tech/posture_monitor/internal/posture"
	"github.com/relabs-tech/posture_monitor/internal/session"
	"github.com/relabs-tech/posture_monitor/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	eng    *engine.Engine
	router *gin.Engine
	store  *store.SessionStore
}

func newTestServer(t *testing.T, withHistory bool) *testServer {
	t.Helper()

	eng, err := engine.New(engine.Options{})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	opts := WebOptions{
		Engine:        eng,
		Metrics:       metrics.New(reg),
		Gatherer:      reg,
		StateInterval: 20 * time.Millisecond,
	}

	ts := &testServer{eng: eng}
	if withHistory {
		srv := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		ts.store = store.New(rdb, store.Options{})
		opts.History = ts.store
	}
	ts.router = NewRouter(opts)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestMonitoringRoutes(t *testing.T) {
	ts := newTestServer(t, false)

	w := ts.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["is_monitoring"])

	w = ts.do(t, http.MethodPost, "/api/monitoring/start", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["is_monitoring"])

	w = ts.do(t, http.MethodPost, "/api/monitoring/pause", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["monitoring_paused"])

	w = ts.do(t, http.MethodPost, "/api/monitoring/resume", "")
	assert.Equal(t, false, decode(t, w)["monitoring_paused"])

	w = ts.do(t, http.MethodPost, "/api/monitoring/stop", "")
	assert.Equal(t, false, decode(t, w)["is_monitoring"])
}

func TestSessionRoutes(t *testing.T) {
	ts := newTestServer(t, false)

	w := ts.do(t, http.MethodPost, "/api/session/start", `{"kind":"assessment"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, "assessment", body["kind"])

	w = ts.do(t, http.MethodPost, "/api/session/start", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	for i := 0; i < 5; i++ {
		require.NoError(t, ts.eng.ProcessPosture(posture.New(0, 0, 0, time.Now())))
	}

	w = ts.do(t, http.MethodPost, "/api/session/end", "")
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, true, body["recorded"])
	st := body["statistics"].(map[string]any)
	assert.Equal(t, "assessment", st["kind"])
	assert.EqualValues(t, 5, st["data_point_count"])

	w = ts.do(t, http.MethodPost, "/api/session/pause", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSessionEndWithoutSamples(t *testing.T) {
	ts := newTestServer(t, false)

	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/session/start", "").Code)
	w := ts.do(t, http.MethodPost, "/api/session/end", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["recorded"])
}

func TestSessionStartRejectsUnknownKind(t *testing.T) {
	ts := newTestServer(t, false)
	w := ts.do(t, http.MethodPost, "/api/session/start", `{"kind":"marathon"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettingsRoutes(t *testing.T) {
	ts := newTestServer(t, false)

	w := ts.do(t, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 15, body["sensitivity"])
	assert.EqualValues(t, 5, body["alert_delay_seconds"])
	assert.Equal(t, "adaptive", body["strategy"])

	w = ts.do(t, http.MethodPut, "/api/settings", `{"sensitivity":8,"strategy":"strict","language":"zh"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = decode(t, w)
	assert.EqualValues(t, 8, body["sensitivity"])
	assert.EqualValues(t, 5, body["alert_delay_seconds"])
	assert.Equal(t, "strict", body["strategy"])

	got := ts.eng.Settings()
	assert.Equal(t, 8.0, got.Sensitivity)
	assert.Equal(t, 5*time.Second, got.AlertDelay)

	w = ts.do(t, http.MethodPut, "/api/settings", `{"sensitivity":-1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 8.0, ts.eng.Settings().Sensitivity)
}

func TestTargetAndSampleRateRoutes(t *testing.T) {
	ts := newTestServer(t, false)

	w := ts.do(t, http.MethodPut, "/api/target", `{"pitch":-12,"yaw":3,"roll":1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, -12.0, ts.eng.Target().Pitch)

	w = ts.do(t, http.MethodPut, "/api/target", `{"pitch":200}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, -12.0, ts.eng.Target().Pitch)

	w = ts.do(t, http.MethodGet, "/api/target", "")
	assert.EqualValues(t, -12, decode(t, w)["pitch"])

	w = ts.do(t, http.MethodPut, "/api/sample_rate", `{"hz":25}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 25.0, ts.eng.SampleRate())

	w = ts.do(t, http.MethodPut, "/api/sample_rate", `{"hz":150}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 25.0, ts.eng.SampleRate())
}

func TestCalibrationRoutes(t *testing.T) {
	ts := newTestServer(t, false)

	w := ts.do(t, http.MethodPost, "/api/calibration/cancel", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPost, "/api/calibration/start", `{"seconds":30}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, true, decode(t, w)["active"])

	w = ts.do(t, http.MethodPost, "/api/calibration/start", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodGet, "/api/calibration", "")
	assert.Equal(t, true, decode(t, w)["active"])

	w = ts.do(t, http.MethodPost, "/api/calibration/cancel", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, ts.eng.CalibrationStatus().Active)
}

func TestHistoryRoutes(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		ts := newTestServer(t, false)
		assert.Equal(t, http.StatusServiceUnavailable, ts.do(t, http.MethodGet, "/api/history", "").Code)
		assert.Equal(t, http.StatusServiceUnavailable, ts.do(t, http.MethodDelete, "/api/history", "").Code)
	})

	t.Run("redis backed", func(t *testing.T) {
		ts := newTestServer(t, true)
		ctx := context.Background()
		now := time.Now()
		for _, id := range []string{"a", "b"} {
			require.NoError(t, ts.store.Save(ctx, session.Statistics{
				ID:        id,
				Kind:      session.KindTraining,
				StartTime: now.Add(-time.Hour),
				EndTime:   now,
				Duration:  time.Hour,
				Score:     80,
				Grade:     session.GradeGood,
			}))
		}

		w := ts.do(t, http.MethodGet, "/api/history", "")
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Len(t, body["sessions"], 2)
		summary := body["summary"].(map[string]any)
		assert.EqualValues(t, 2, summary["total_count"])

		assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/api/history/zzz", "").Code)
		assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/api/history/a", "").Code)

		sums, err := ts.store.Summaries(ctx)
		require.NoError(t, err)
		require.Len(t, sums, 1)
		assert.Equal(t, "b", sums[0].ID)

		assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/api/history", "").Code)
		sums, err = ts.store.Summaries(ctx)
		require.NoError(t, err)
		assert.Empty(t, sums)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, false)
	ts.do(t, http.MethodGet, "/api/state", "")

	w := ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `http_requests_total{endpoint="/api/state",method="GET",status="200"} 1`)
}

func dialWS(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil reads responses until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) WSResponse {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var resp WSResponse
		require.NoError(t, conn.ReadJSON(&resp))
		if resp.Type == typ {
			return resp
		}
	}
}

func TestCalibrationWebSocket(t *testing.T) {
	ts := newTestServer(t, false)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	conn := dialWS(t, srv, "/ws/calibration")

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "start", Seconds: 0.3}))
	readUntil(t, conn, "started")

	for i := 0; i < 4; i++ {
		require.NoError(t, ts.eng.ProcessPosture(posture.New(-10, 2, 4, time.Now())))
	}

	resp := readUntil(t, conn, "complete")
	require.NotNil(t, resp.Target)
	assert.Equal(t, 4, resp.Samples)
	assert.InDelta(t, -10, resp.Target.Pitch, 1e-9)
	assert.InDelta(t, -10, ts.eng.Target().Pitch, 1e-9)
}

func TestCalibrationWebSocketWithoutSamples(t *testing.T) {
	ts := newTestServer(t, false)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	conn := dialWS(t, srv, "/ws/calibration")
	before := ts.eng.Target()

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "start", Seconds: 0.1}))
	resp := readUntil(t, conn, "error")
	assert.Contains(t, resp.Message, engine.ErrNoCalibrationData.Error())
	assert.Equal(t, before.Pitch, ts.eng.Target().Pitch)
}

func TestCalibrationWebSocketActions(t *testing.T) {
	ts := newTestServer(t, false)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	conn := dialWS(t, srv, "/ws/calibration")

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "cancel"}))
	resp := readUntil(t, conn, "error")
	assert.Equal(t, engine.ErrNotCalibrating.Error(), resp.Message)

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "dance"}))
	resp = readUntil(t, conn, "error")
	assert.Contains(t, resp.Message, "unknown action")

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "start", Seconds: 30}))
	readUntil(t, conn, "started")
	require.NoError(t, conn.WriteJSON(WSMessage{Action: "cancel"}))
	readUntil(t, conn, "cancelled")
	assert.False(t, ts.eng.CalibrationStatus().Active)
}

func TestStateWebSocket(t *testing.T) {
	ts := newTestServer(t, false)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	ts.eng.StartMonitoring()
	require.NoError(t, ts.eng.ProcessPosture(posture.New(3, 0, 0, time.Now())))

	conn := dialWS(t, srv, "/ws/state")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	var snap engine.Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	assert.True(t, snap.IsMonitoring)
	require.NotNil(t, snap.CurrentPosture)
	assert.Equal(t, 3.0, snap.CurrentPosture.Pitch)

	// and keeps streaming
	require.NoError(t, conn.ReadJSON(&snap))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(engine.ErrConfigurationOutOfRange))
	assert.Equal(t, http.StatusConflict, statusFor(session.ErrSessionNotActive))
	assert.Equal(t, http.StatusConflict, statusFor(engine.ErrCalibrationInProgress))
	assert.Equal(t, http.StatusInternalServerError, statusFor(bytes.ErrTooLarge))
}
