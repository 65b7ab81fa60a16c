// Package server exposes a console session over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	regionconsole "github.com/menta2k/region-console"
	"github.com/menta2k/region-console/pkg/router"
)

// Options configures a Server. Router and Monitor are nil for backends
// without the HTTP router; the proxy and status routes then answer 501.
type Options struct {
	Console *regionconsole.Console
	Router  *router.Client
	Monitor *router.Monitor
	Logger  *zap.Logger
	// MaxBodyBytes bounds request bodies; zero means 32 MB.
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the console API.
type Server struct {
	console *regionconsole.Console
	router  *router.Client
	monitor *router.Monitor
	logger  *zap.Logger
	opts    Options
	engine  *gin.Engine
}

// New builds the gin engine and its routes.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 32 << 20
	}
	s := &Server{
		console: opts.Console,
		router:  opts.Router,
		monitor: opts.Monitor,
		logger:  opts.Logger,
		opts:    opts,
	}
	s.engine = s.setupRouter()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(requestLogger(s.logger))
	r.Use(corsMiddleware())
	r.Use(bodyLimit(s.opts.MaxBodyBytes))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "region-console",
		})
	})
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"version": regionconsole.Version})
	})

	api := r.Group("/api")
	{
		api.POST("/image", s.loadImage)
		api.GET("/session", s.session)
		api.GET("/catalog", s.catalog)

		api.POST("/regions", s.addRegion)
		api.DELETE("/regions", s.clearAll)
		api.PUT("/regions/active", s.setActive)
		api.PUT("/regions/:index/box", s.setBox)
		api.DELETE("/regions/:index", s.clearRegion)

		api.PUT("/viewport", s.setViewport)
		api.POST("/pointer", s.pointer)

		api.GET("/picker", s.pickerOptions)
		api.POST("/picker/expert", s.selectExpert)
		api.POST("/picker/screen", s.selectScreen)
		api.POST("/picker/browse", s.browseScreen)
		api.POST("/picker/element", s.selectElement)
		api.DELETE("/picker", s.clearSelection)

		api.POST("/run", s.run)
		api.GET("/overlay.png", s.overlay)

		api.POST("/inference", s.proxyInference)
		api.GET("/status", s.status)
		api.POST("/warmup", s.warmup)
	}
	return r
}

// Run serves on addr until ctx is done, then shuts down gracefully. The
// status monitor runs alongside when configured.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	if s.monitor != nil {
		go s.monitor.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("console API listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down console API")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
