// Package server provides the QueueWatch Gin-based REST API: dashboard reads
// (tracking snapshot, traffic history, audit trail), entity management, the
// manual poll trigger, and the Prometheus endpoint. Poll-cycle failures never
// surface here — read endpoints always report last-known-good persisted state.
package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vesaa/queuewatch/internal/alert"
	"github.com/vesaa/queuewatch/internal/config"
	"github.com/vesaa/queuewatch/internal/models"
	"github.com/vesaa/queuewatch/internal/poller"
	"github.com/vesaa/queuewatch/internal/store"
)

// Server binds the HTTP handlers to their collaborators.
type Server struct {
	cfg       *config.Config
	store     *store.Store
	evaluator *alert.Evaluator
	poller    *poller.Poller
}

// New builds the API server.
func New(cfg *config.Config, st *store.Store, ev *alert.Evaluator, p *poller.Poller) *Server {
	return &Server{cfg: cfg, store: st, evaluator: ev, poller: p}
}

// RegisterRoutes wires up the API on the given engine.
//
//	Public:   POST /api/login, GET /api/health, GET /metrics
//	Protected (JWT): all other /api/* routes
func (s *Server) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")

	// ── Public endpoints ──────────────────────────────────────────────────────
	api.POST("/login", s.handleLogin)

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ── JWT-protected endpoints ───────────────────────────────────────────────
	auth := api.Group("/", JWTMiddleware())
	{
		// Alert state
		auth.GET("/alerts/active", s.handleActiveAlerts)
		auth.GET("/alerts/records", s.handleAlertRecords)
		auth.GET("/alerts/history", s.handleAlertHistory)

		// Entity management (the configuration surface; the poll core only reads)
		auth.GET("/entities", s.handleEntityList)
		auth.POST("/entities", s.handleEntityUpsert)
		auth.DELETE("/entities/:name", s.handleEntityDelete)
		auth.GET("/entities/:name/history", s.handleEntityHistory)

		// Operations
		auth.POST("/poll", s.handlePollTrigger)
		auth.GET("/status", s.handleStatus)
	}
}

// ── Handlers ──────────────────────────────────────────────────────────────────

// handleLogin accepts username + password and returns a signed JWT.
//
//	POST /api/login
//	Body: { "username": "admin", "password": "admin" }
func (s *Server) handleLogin(c *gin.Context) {
	var body struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	if body.Username != adminUser || body.Password != adminPass {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := GenerateJWT(body.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": 86400, // seconds
		"type":       "Bearer",
	})
}

// handleActiveAlerts joins entity config with the in-memory tracker and
// returns one snapshot row per entity for the dashboard.
func (s *Server) handleActiveAlerts(c *gin.Context) {
	entities, err := s.store.ListEntities()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	states := s.evaluator.Tracker().Snapshot()

	out := make([]models.EntitySnapshot, 0, len(entities))
	for _, e := range entities {
		threshold := s.cfg.DefaultThresholdKb
		if e.ThresholdKb != nil {
			threshold = *e.ThresholdKb
		}
		snap := models.EntitySnapshot{
			Name:        e.Name,
			Target:      e.Target,
			Active:      e.Active,
			ThresholdKb: threshold,
		}
		if st, ok := states[e.Name]; ok {
			fc := st.FirstCrossing
			snap.Alerting = true
			snap.FirstCrossing = &fc
			snap.FirstNotified = st.FirstNotified
			snap.SecondNotified = st.SecondNotified
		}
		out = append(out, snap)
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

// handleAlertRecords returns recent alert episodes (open and closed).
func (s *Server) handleAlertRecords(c *gin.Context) {
	limit := intQuery(c, "limit", 100)
	records, err := s.store.AlertRecords(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}

// handleAlertHistory returns the notification audit trail, newest first.
func (s *Server) handleAlertHistory(c *gin.Context) {
	limit := intQuery(c, "limit", 100)
	entries, err := s.store.History(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

// handleEntityList returns all monitored entities.
func (s *Server) handleEntityList(c *gin.Context) {
	entities, err := s.store.ListEntities()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entities})
}

// handleEntityUpsert creates or updates a monitored entity by name.
func (s *Server) handleEntityUpsert(c *gin.Context) {
	var body struct {
		Name        string `json:"name" binding:"required"`
		Target      string `json:"target"`
		Active      *bool  `json:"active"`
		ThresholdKb *int   `json:"threshold_kb"`
		Remark      string `json:"remark"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.ThresholdKb != nil && *body.ThresholdKb <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "threshold_kb must be a positive integer"})
		return
	}
	// The sampler only matches queues under the monitored prefix; a name
	// outside it would sample 0/0 forever and open a false alert episode.
	if s.cfg.QueuePrefix != "" && !strings.HasPrefix(body.Name, s.cfg.QueuePrefix) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("name must start with the monitored queue prefix %q", s.cfg.QueuePrefix),
		})
		return
	}

	active := true
	if body.Active != nil {
		active = *body.Active
	}
	entity := models.MonitoredEntity{
		Name:        body.Name,
		Target:      body.Target,
		Active:      active,
		ThresholdKb: body.ThresholdKb,
		Remark:      body.Remark,
	}
	if err := s.store.UpsertEntity(&entity); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": entity.ID, "name": entity.Name})
}

// handleEntityDelete removes an entity by name.
func (s *Server) handleEntityDelete(c *gin.Context) {
	name := c.Param("name")
	if err := s.store.DeleteEntity(name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": name})
}

// handleEntityHistory returns downsampled traffic history for charting.
//
//	GET /api/entities/:name/history?hours=24&points=300
func (s *Server) handleEntityHistory(c *gin.Context) {
	name := c.Param("name")
	hours := intQuery(c, "hours", 24)
	points := intQuery(c, "points", 300)
	if points > 2000 {
		points = 2000
	}

	to := time.Now().UTC()
	from := to.Add(-time.Duration(hours) * time.Hour)
	samples, err := s.store.SampleHistory(name, from, to, points)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": samples})
}

// handlePollTrigger runs one poll cycle synchronously (health / testing hook).
func (s *Server) handlePollTrigger(c *gin.Context) {
	if err := s.poller.RunOnce(c.Request.Context()); err != nil {
		if err == poller.ErrCycleInFlight {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// intQuery reads an integer query parameter with a default.
func intQuery(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
