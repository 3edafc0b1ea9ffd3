// Package http exposes the answering pipeline over a REST and SSE surface.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"skald/internal/logging"
	"skald/internal/observability"
	"skald/internal/server/app"
)

// Config holds the HTTP server settings.
type Config struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Debug          bool          `mapstructure:"debug"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// Server wires the gin engine, handlers, and the underlying http.Server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	logger     logging.Logger
}

// NewServer builds the router and attaches all endpoints.
func NewServer(
	cfg Config,
	chat *app.ChatService,
	broadcaster *app.EventBroadcaster,
	metrics *observability.MetricsCollector,
) *Server {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// SSE connections outlive normal request timeouts.
		cfg.WriteTimeout = 10 * time.Minute
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := logging.NewComponentLogger("HTTPServer")

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestTracing())
	engine.Use(requestLogger(logger))

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	engine.Use(cors.New(corsConfig))

	server := &Server{
		engine: engine,
		logger: logger,
	}

	answerHandler := newAnswerHandler(chat)
	sseHandler := newSSEHandler(broadcaster, metrics)

	api := engine.Group("/api/v1")
	{
		api.POST("/chats/answer", answerHandler.handleAnswer)
		api.GET("/chats/:chat_id/events", sseHandler.handleStream)
	}

	engine.GET("/healthz", handleHealth)
	if metrics != nil && metrics.Handler() != nil {
		engine.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("Listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

// requestTracing opens a server span per request and propagates it through
// the request context so downstream spans nest under it.
func requestTracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := observability.StartSpan(c.Request.Context(), observability.SpanHTTPServer,
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.target", c.Request.URL.Path),
		)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
		span.End()
	}
}

func requestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}
