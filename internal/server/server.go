// Package server exposes the quote terminal over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rickgao/quotedesk/internal/model"
	"github.com/rickgao/quotedesk/internal/terminal"
)

const shutdownTimeout = 5 * time.Second

// Terminal is the part of terminal.Client the HTTP facade drives.
type Terminal interface {
	Login(ctx context.Context, identifier, secret string) (model.Credential, error)
	Logout(ctx context.Context) error
	Toggle(ctx context.Context, symbol string) ([]string, error)
	DismissCatalogError()

	Credential() (model.Credential, bool)
	SessionLoading() bool
	Instruments() []model.Instrument
	Subscriptions() []string
	SubscribedInstruments(filter string) []terminal.Row
	Status() terminal.Status
}

var _ Terminal = (*terminal.Client)(nil)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Server is the gin HTTP facade.
type Server struct {
	addr   string
	term   Terminal
	logger *slog.Logger
	engine *gin.Engine
}

// New builds the router. debug enables gin's debug mode.
func New(addr string, term Terminal, logger *slog.Logger, debug bool) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		addr:   addr,
		term:   term,
		logger: logger,
		engine: gin.New(),
	}

	s.engine.Use(s.requestLogger(), gin.Recovery())
	s.setupRoutes()
	return s
}

// Handler returns the router for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.getHealth)

	api := s.engine.Group("/api")
	api.GET("/session", s.getSession)
	api.POST("/login", s.postLogin)
	api.POST("/logout", s.postLogout)
	api.GET("/symbols", s.getSymbols)
	api.GET("/subscriptions", s.getSubscriptions)
	api.POST("/subscriptions/:symbol/toggle", s.postToggle)
	api.GET("/quotes", s.getQuotes)
	api.DELETE("/errors/catalog", s.deleteCatalogError)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.addr)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

// --- Middleware ---

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

// --- Helpers ---

func (s *Server) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, apiError{Code: "bad_request", Message: msg})
}

func (s *Server) unauthorized(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, apiError{Code: "unauthorized", Message: msg})
}

func (s *Server) internalError(c *gin.Context, where string, err error) {
	s.logger.Error("request failed", "where", where, "error", err)
	c.JSON(http.StatusInternalServerError, apiError{Code: "internal_server_error", Message: "internal server error"})
}
