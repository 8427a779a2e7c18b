// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/relabs-tech/posture_monitor/internal/engine"
	"github.com/relabs-tech/posture_monitor/internal/feedback"
	"github.com/relabs-tech/posture_monitor/internal/metrics"
	"github.com/relabs-tech/posture_monitor/internal/posture"
	"github.com/relabs-tech/posture_monitor/internal/session"
	"github.com/relabs-tech/posture_monitor/internal/store"
)

// HistoryStore is the slice of the session store the web API reads.
type HistoryStore interface {
	Summaries(ctx context.Context) ([]session.Summary, error)
	History(ctx context.Context, now time.Time) (session.History, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// WebOptions wires the HTTP API to the engine.
type WebOptions struct {
	Engine        *engine.Engine
	History       HistoryStore // nil disables the history routes
	Metrics       *metrics.Metrics
	Gatherer      prometheus.Gatherer
	Logger        *zap.Logger
	StateInterval time.Duration
}

type webServer struct {
	eng     *engine.Engine
	history HistoryStore
	log     *zap.Logger
	every   time.Duration
	calibs  *calibrationHub
}

// NewRouter builds the gin engine serving the control API, the live state
// websocket and the metrics endpoint.
func NewRouter(opts WebOptions) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.StateInterval <= 0 {
		opts.StateInterval = 200 * time.Millisecond
	}

	s := &webServer{
		eng:     opts.Engine,
		history: opts.History,
		log:     opts.Logger.Named("web"),
		every:   opts.StateInterval,
		calibs:  newCalibrationHub(opts.Engine),
	}

	r := gin.New()
	r.Use(gin.Recovery(), opts.Metrics.Middleware())

	if opts.Gatherer != nil {
		r.GET("/metrics", metrics.Handler(opts.Gatherer))
	}

	api := r.Group("/api")
	api.GET("/state", s.getState)

	mon := api.Group("/monitoring")
	mon.POST("/start", s.control(func() error { s.eng.StartMonitoring(); return nil }))
	mon.POST("/stop", s.control(func() error { s.eng.StopMonitoring(); return nil }))
	mon.POST("/pause", s.control(func() error { s.eng.PauseMonitoring(); return nil }))
	mon.POST("/resume", s.control(func() error { s.eng.ResumeMonitoring(); return nil }))

	sess := api.Group("/session")
	sess.POST("/start", s.startSession)
	sess.POST("/pause", s.control(s.eng.PauseSession))
	sess.POST("/resume", s.control(s.eng.ResumeSession))
	sess.POST("/cancel", s.control(s.eng.CancelSession))
	sess.POST("/end", s.endSession)

	api.GET("/target", s.getTarget)
	api.PUT("/target", s.putTarget)
	api.GET("/settings", s.getSettings)
	api.PUT("/settings", s.putSettings)
	api.PUT("/sample_rate", s.putSampleRate)

	cal := api.Group("/calibration")
	cal.GET("", s.getCalibration)
	cal.POST("/start", s.startCalibration)
	cal.POST("/cancel", s.control(s.eng.CancelCalibration))

	hist := api.Group("/history")
	hist.GET("", s.getHistory)
	hist.DELETE("", s.clearHistory)
	hist.DELETE("/:id", s.deleteHistory)

	r.GET("/ws/state", s.stateWS)
	r.GET("/ws/calibration", s.calibrationWS)

	return r
}

// statusFor maps engine and session errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrConfigurationOutOfRange),
		errors.Is(err, engine.ErrInvalidSample):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSessionActive),
		errors.Is(err, session.ErrSessionNotActive),
		errors.Is(err, session.ErrSessionNotPaused),
		errors.Is(err, engine.ErrCalibrationInProgress),
		errors.Is(err, engine.ErrNotCalibrating):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *webServer) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func (s *webServer) control(fn func() error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := fn(); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, s.eng.Snapshot())
	}
}

func (s *webServer) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.eng.Snapshot())
}

type startSessionRequest struct {
	Kind string `json:"kind"`
}

func (s *webServer) startSession(c *gin.Context) {
	var req startSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	kind, err := session.ParseKind(req.Kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := s.eng.StartSession(kind)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "kind": kind})
}

func (s *webServer) endSession(c *gin.Context) {
	st, ok, err := s.eng.EndSession()
	if err != nil {
		s.fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"recorded": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recorded": true, "statistics": st})
}

type targetRequest struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

func (s *webServer) getTarget(c *gin.Context) {
	c.JSON(http.StatusOK, s.eng.Target())
}

func (s *webServer) putTarget(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.eng.SetTarget(posture.New(req.Pitch, req.Yaw, req.Roll, time.Now())); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.eng.Target())
}

// settingsBody is the wire form of feedback.Settings with the delay in
// seconds.
type settingsBody struct {
	Enabled              bool                  `json:"enabled"`
	Muted                bool                  `json:"muted"`
	Sensitivity          float64               `json:"sensitivity"`
	AlertDelaySeconds    float64               `json:"alert_delay_seconds"`
	Strategy             feedback.Strategy     `json:"strategy"`
	Language             feedback.Language     `json:"language"`
	DoNotDisturb         feedback.DoNotDisturb `json:"do_not_disturb"`
	RepeatWhileDeviating bool                  `json:"repeat_while_deviating"`
}

func settingsToBody(fs feedback.Settings) settingsBody {
	return settingsBody{
		Enabled:              fs.Enabled,
		Muted:                fs.Muted,
		Sensitivity:          fs.Sensitivity,
		AlertDelaySeconds:    fs.AlertDelay.Seconds(),
		Strategy:             fs.Strategy,
		Language:             fs.Language,
		DoNotDisturb:         fs.DoNotDisturb,
		RepeatWhileDeviating: fs.RepeatWhileDeviating,
	}
}

func (b settingsBody) settings() feedback.Settings {
	return feedback.Settings{
		Enabled:              b.Enabled,
		Muted:                b.Muted,
		Sensitivity:          b.Sensitivity,
		AlertDelay:           time.Duration(b.AlertDelaySeconds * float64(time.Second)),
		Strategy:             b.Strategy,
		Language:             b.Language,
		DoNotDisturb:         b.DoNotDisturb,
		RepeatWhileDeviating: b.RepeatWhileDeviating,
	}
}

func (s *webServer) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, settingsToBody(s.eng.Settings()))
}

// putSettings merges the body over the current settings, so a client can
// send only the fields it changes.
func (s *webServer) putSettings(c *gin.Context) {
	body := settingsToBody(s.eng.Settings())
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.eng.SetSettings(body.settings()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, settingsToBody(s.eng.Settings()))
}

type sampleRateRequest struct {
	Hz float64 `json:"hz"`
}

func (s *webServer) putSampleRate(c *gin.Context) {
	var req sampleRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.eng.SetSampleRate(req.Hz); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hz": s.eng.SampleRate()})
}

type calibrationRequest struct {
	Seconds float64 `json:"seconds"`
}

func (s *webServer) getCalibration(c *gin.Context) {
	c.JSON(http.StatusOK, s.eng.CalibrationStatus())
}

func (s *webServer) startCalibration(c *gin.Context) {
	var req calibrationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if err := s.eng.StartCalibration(time.Duration(req.Seconds * float64(time.Second))); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, s.eng.CalibrationStatus())
}

func (s *webServer) getHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history store not configured"})
		return
	}
	ctx := c.Request.Context()
	sums, err := s.history.Summaries(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	h, err := s.history.History(ctx, time.Now())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sums, "summary": h})
}

func (s *webServer) deleteHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history store not configured"})
		return
	}
	if err := s.history.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *webServer) clearHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history store not configured"})
		return
	}
	if err := s.history.Clear(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
