package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"SwingSentinel/internal/metrics"
	"SwingSentinel/internal/model"
	"SwingSentinel/internal/window"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PendingSource lists the active swing chains.
type PendingSource interface {
	Pending() []window.PendingEntry
}

// Subscriptions manages alert recipients per timeframe.
type Subscriptions interface {
	Subscribe(tf model.Timeframe, userID string) (bool, error)
	Unsubscribe(tf model.Timeframe, userID string) (bool, error)
	Recipients(tf model.Timeframe) []string
}

// Server is the keep-alive and status HTTP surface.
type Server struct {
	engine  *gin.Engine
	http    *http.Server
	pending PendingSource
	health  *metrics.HealthStatus
	subs    Subscriptions
}

type pendingJSON struct {
	Symbol      string    `json:"symbol"`
	Timeframe   string    `json:"timeframe"`
	Direction   string    `json:"direction"`
	ChainLength int       `json:"chain_length"`
	AnchorTime  time.Time `json:"anchor_time"`
	Reference   struct {
		Time  time.Time `json:"time"`
		High  float64   `json:"high"`
		Low   float64   `json:"low"`
		Close float64   `json:"close"`
	} `json:"reference"`
}

// New builds the router. gatherer may be nil to omit /metrics.
func New(addr string, pending PendingSource, health *metrics.HealthStatus, gatherer prometheus.Gatherer) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:  engine,
		pending: pending,
		health:  health,
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	engine.GET("/", s.getRoot)
	engine.GET("/healthz", s.getHealth)
	engine.GET("/api/pending", s.getPending)
	if gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return s
}

// EnableSubscriptions mounts the subscriber admin routes behind a bearer
// token. Recipient ids are whatever the delivering channel mentions, e.g.
// Discord user ids for the discord notifier.
//
//	GET    /api/subscribers/:timeframe
//	PUT    /api/subscribers/:timeframe/:id
//	DELETE /api/subscribers/:timeframe/:id
func (s *Server) EnableSubscriptions(subs Subscriptions, token string) {
	s.subs = subs
	g := s.engine.Group("/api/subscribers", requireToken(token))
	g.GET("/:timeframe", s.listSubscribers)
	g.PUT("/:timeframe/:id", s.putSubscriber)
	g.DELETE("/:timeframe/:id", s.deleteSubscriber)
}

func requireToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		got := strings.TrimPrefix(header, "Bearer ")
		if token == "" || got == header || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid admin token"})
			return
		}
		c.Next()
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start serves until Shutdown. Blocks.
func (s *Server) Start() error {
	log.Printf("[INFO] status server listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) getRoot(c *gin.Context) {
	c.String(http.StatusOK, "Bot is running")
}

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"health": s.health.Snapshot(),
	})
}

func (s *Server) getPending(c *gin.Context) {
	entries := s.pending.Pending()
	out := make([]pendingJSON, 0, len(entries))
	for _, e := range entries {
		var p pendingJSON
		p.Symbol = e.Key.Symbol
		p.Timeframe = e.Key.Timeframe.String()
		p.Direction = string(e.Pending.Direction)
		p.ChainLength = e.Pending.ChainLength
		p.AnchorTime = e.Pending.AnchorTime
		p.Reference.Time = e.Pending.Reference.Time
		p.Reference.High = e.Pending.Reference.High
		p.Reference.Low = e.Pending.Reference.Low
		p.Reference.Close = e.Pending.Reference.Close
		out = append(out, p)
	}
	c.JSON(http.StatusOK, gin.H{"count": len(out), "pending": out})
}

func parseTimeframe(c *gin.Context) (model.Timeframe, bool) {
	tf, err := model.ParseTimeframe(c.Param("timeframe"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return 0, false
	}
	return tf, true
}

func (s *Server) listSubscribers(c *gin.Context) {
	tf, ok := parseTimeframe(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"timeframe": tf.String(), "subscribers": s.subs.Recipients(tf)})
}

func (s *Server) putSubscriber(c *gin.Context) {
	tf, ok := parseTimeframe(c)
	if !ok {
		return
	}
	added, err := s.subs.Subscribe(tf, c.Param("id"))
	if err != nil {
		log.Printf("[ERROR] save subscribers: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to save subscribers"})
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"timeframe": tf.String(), "id": c.Param("id"), "added": added})
}

func (s *Server) deleteSubscriber(c *gin.Context) {
	tf, ok := parseTimeframe(c)
	if !ok {
		return
	}
	removed, err := s.subs.Unsubscribe(tf, c.Param("id"))
	if err != nil {
		log.Printf("[ERROR] save subscribers: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to save subscribers"})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"message": "not subscribed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"timeframe": tf.String(), "id": c.Param("id"), "removed": true})
}
