package app

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// HTTPService 把 net/http 服务器适配成 Runner 托管的服务。
type HTTPService struct {
	name   string
	server *http.Server
}

// NewHTTPService 创建结算 API 的 HTTP 服务。
func NewHTTPService(addr string, handler http.Handler) *HTTPService {
	return &HTTPService{
		name: "http_api",
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *HTTPService) Name() string {
	if s == nil || s.name == "" {
		return "http_api"
	}
	return s.name
}

// Start 阻塞监听，正常关停时不作为错误上报。
func (s *HTTPService) Start(ctx context.Context) error {
	if s == nil || s.server == nil {
		return errors.New("http server not initialized")
	}
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 优雅关停，等待在途请求完成。
func (s *HTTPService) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
