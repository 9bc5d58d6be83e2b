// Package http 提供HTTP服务器功能
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"seedcar/config"
	"seedcar/db"
	"seedcar/monitoring"
	"seedcar/predictor"
)

// Server HTTP服务器
type Server struct {
	server *http.Server
	config ServerConfig
	logger *zap.Logger
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// Deps 处理器依赖。Store、Hub、Metrics可以为空
type Deps struct {
	Config   *config.Config
	Registry *predictor.Registry
	Store    *db.Store
	Metrics  *monitoring.Metrics
	Hub      *monitoring.Hub
	Logger   *zap.Logger
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           config.DefaultPort,
		Timeout:        30 * time.Second,
		AllowedOrigins: []string{"*"},
		MaxBodyBytes:   1 << 20,
	}
}

// ServerConfigFrom 从全局配置生成服务器配置
func ServerConfigFrom(cfg *config.Config) ServerConfig {
	return ServerConfig{
		Port:           cfg.Http.Port,
		Timeout:        cfg.Http.Timeout,
		AllowedOrigins: cfg.Http.AllowedOrigins,
		MaxBodyBytes:   cfg.Http.MaxBodyBytes,
	}
}

// NewHandler 注册路由并套上中间件链
func NewHandler(cfg ServerConfig, deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Config == nil {
		deps.Config = config.Default()
	}

	mux := http.NewServeMux()
	h := newHandlers(deps)
	h.register(mux)

	chain := Chain(
		RecoveryMiddleware(deps.Logger),    // 1. 恢复中间件（最先执行，捕获panic）
		LoggerMiddleware(deps.Logger),      // 2. 日志中间件
		SecurityHeadersMiddleware,          // 3. 安全头中间件
		CORSMiddleware(cfg.AllowedOrigins), // 4. CORS中间件
		RequestSizeMiddleware(cfg.MaxBodyBytes),
	)
	return chain(mux)
}

// NewServer 创建HTTP服务器
func NewServer(cfg ServerConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           NewHandler(cfg, deps),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.Timeout,
			WriteTimeout:      cfg.Timeout,
			IdleTimeout:       120 * time.Second,
		},
		config: cfg,
		logger: deps.Logger,
	}
}

// Start 启动服务器，阻塞直到服务器关闭
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.server.Addr))
	s.logger.Info("websocket endpoint", zap.String("url", fmt.Sprintf("ws://localhost%s/ws/predictions", s.server.Addr)))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down http server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
