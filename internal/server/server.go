// internal/server/server.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chatrelay/api/schemas"
	"github.com/xkilldash9x/chatrelay/internal/config"
	"github.com/xkilldash9x/chatrelay/internal/orchestrator"
)

// ChatHandler is the orchestrator surface the HTTP layer consumes.
type ChatHandler interface {
	Handle(ctx context.Context, req *schemas.ChatRequest) (*orchestrator.Result, error)
}

// Server is the inbound HTTP entry point: one chat route, permissive CORS,
// JSON errors for everything that goes wrong.
type Server struct {
	cfg     config.ServerConfig
	model   string // configured fallback model
	handler ChatHandler
	engine  *gin.Engine
	http    *http.Server
	logger  *zap.Logger
}

func New(cfg config.ServerConfig, upstreamCfg config.UpstreamConfig, handler ChatHandler, logger *zap.Logger) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "X-Requested-With"}
	engine.Use(cors.New(corsConfig))

	s := &Server{
		cfg:     cfg,
		model:   upstreamCfg.DefaultModel,
		handler: handler,
		engine:  engine,
		logger:  logger.Named("server"),
	}

	engine.HandleMethodNotAllowed = true
	engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, schemas.ErrorResponse{
			Error: "method not allowed",
		})
	})
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, schemas.ErrorResponse{
			Error: "not found",
		})
	})

	engine.POST("/api/chat", s.handleChat)

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// chatRequestBody is the inbound wire shape. A non-array messages value
// fails the bind and surfaces as a 400 like a missing one.
type chatRequestBody struct {
	Messages []schemas.ChatMessage `json:"messages"`
	Model    string                `json:"model"`
}

func (s *Server) handleChat(c *gin.Context) {
	start := time.Now()

	var body chatRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, schemas.ErrorResponse{
			Error:   "invalid request body",
			Details: err.Error(),
		})
		return
	}
	if len(body.Messages) == 0 {
		c.JSON(http.StatusBadRequest, schemas.ErrorResponse{
			Error: "messages must be a non-empty array",
		})
		return
	}
	for _, m := range body.Messages {
		if !m.Role.Valid() {
			c.JSON(http.StatusBadRequest, schemas.ErrorResponse{
				Error:   "invalid message role",
				Details: string(m.Role),
			})
			return
		}
	}

	req := &schemas.ChatRequest{
		Messages: body.Messages,
		Model:    schemas.ResolveModel(body.Model, s.model),
	}

	// The request runs to completion on its own deadline even if the caller
	// disconnects; a half-finished challenge cycle would otherwise leave the
	// surface in an odd state.
	ctx := context.Background()
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	res, err := s.handler.Handle(ctx, req)
	if err != nil {
		s.writeHandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, schemas.ChatResponse{
		Answer:         res.Answer,
		Model:          req.Model,
		ProcessingTime: time.Since(start).Milliseconds(),
	})
}

func (s *Server) writeHandleError(c *gin.Context, err error) {
	if errors.Is(err, orchestrator.ErrChallengeUnresolved) {
		c.JSON(http.StatusForbidden, schemas.ErrorResponse{
			Error:   "challenge could not be resolved",
			Details: err.Error(),
		})
		return
	}
	s.logger.Error("Chat request failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, schemas.ErrorResponse{
		Error:   "upstream request failed",
		Details: err.Error(),
	})
}
