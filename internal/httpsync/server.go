package httpsync

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/recall/internal/eventlog"
	"github.com/roach88/recall/internal/reconcile"
	"github.com/roach88/recall/internal/replica"
)

// MaxPushBytes bounds the body of a push request.
const MaxPushBytes = 8 << 20

// Server serves a reconcile.Peer over HTTP.
type Server struct {
	peer   reconcile.Peer
	logger *slog.Logger
	engine *gin.Engine
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	logger   *slog.Logger
	gatherer prometheus.Gatherer
}

// WithServerLogger sets the request logger. Default: slog.Default().
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(c *serverConfig) { c.logger = l }
}

// WithGatherer exposes g on GET /metrics.
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(c *serverConfig) { c.gatherer = g }
}

// NewServer builds the routes for peer.
func NewServer(peer reconcile.Peer, opts ...ServerOption) *Server {
	cfg := serverConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{peer: peer, logger: cfg.logger, engine: gin.New()}
	s.engine.Use(gin.Recovery(), s.logRequests())

	v1 := s.engine.Group("/v1")
	v1.GET("/streams", s.streams)
	v1.GET("/counts", s.counts)
	v1.GET("/events", s.events)
	v1.POST("/events", s.push)

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.gatherer, promhttp.HandlerOpts{})))
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) streams(c *gin.Context) {
	ids, err := s.peer.Streams(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if ids == nil {
		ids = []eventlog.StreamID{}
	}
	c.JSON(http.StatusOK, streamsResponse{Streams: ids})
}

func (s *Server) counts(c *gin.Context) {
	id, ok := streamParam(c)
	if !ok {
		return
	}
	counts, err := s.peer.Counts(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if counts == nil {
		counts = eventlog.Counts{}
	}
	c.JSON(http.StatusOK, countsResponse{Counts: counts})
}

func (s *Server) events(c *gin.Context) {
	id, ok := streamParam(c)
	if !ok {
		return
	}
	device, ok := deviceParam(c)
	if !ok {
		return
	}
	skip := 0
	if raw := c.Query("skip"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "skip must be a non-negative integer")
			return
		}
		skip = n
	}

	events, err := s.peer.Events(c.Request.Context(), id, device, skip)
	if err != nil {
		s.fail(c, err)
		return
	}
	if events == nil {
		events = []eventlog.WireEvent{}
	}
	c.JSON(http.StatusOK, eventsBody{Events: events})
}

func (s *Server) push(c *gin.Context) {
	id, ok := streamParam(c)
	if !ok {
		return
	}
	device, ok := deviceParam(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxPushBytes)
	var body eventsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		var de *eventlog.DecodeError
		if errors.As(err, &de) {
			de.Stream, de.Device = id, device
			s.fail(c, de)
			return
		}
		badRequest(c, "invalid body: "+err.Error())
		return
	}

	n, err := s.peer.Push(c.Request.Context(), id, device, body.Events)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pushResponse{Accepted: n})
}

// fail maps a peer error to a status code.
func (s *Server) fail(c *gin.Context, err error) {
	var de *eventlog.DecodeError
	switch {
	case errors.As(err, &de):
		idx := de.Index
		c.JSON(http.StatusUnprocessableEntity, errorResponse{
			Error:  de.Err.Error(),
			Stream: de.Stream,
			Device: de.Device,
			Index:  &idx,
		})
	case errors.Is(err, replica.ErrUnknownKind):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		s.logger.Error("sync request failed",
			"path", c.Request.URL.Path,
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func streamParam(c *gin.Context) (eventlog.StreamID, bool) {
	id, err := eventlog.ParseStreamID(c.Query("stream"))
	if err != nil {
		badRequest(c, err.Error())
		return "", false
	}
	return id, true
}

func deviceParam(c *gin.Context) (eventlog.DeviceID, bool) {
	device, err := eventlog.ParseDeviceID(c.Query("device"))
	if err != nil {
		badRequest(c, err.Error())
		return "", false
	}
	return device, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}
