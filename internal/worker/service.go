package worker

import (
	"context"
	"errors"
	"time"

	"github.com/expertmarket/settlement/internal/config"
	"github.com/expertmarket/settlement/internal/logger"
	"github.com/expertmarket/settlement/internal/queue"

	"github.com/hibiken/asynq"
)

const (
	defaultSweepInterval = 10 * time.Minute
	sweepBatchSize       = 100
)

// Service 异步队列服务
type Service struct {
	name          string
	server        *asynq.Server
	mux           *asynq.ServeMux
	consumer      *Consumer
	sweepInterval time.Duration
}

// NewService 创建异步队列服务
func NewService(cfg *config.Config, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Queue.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(&cfg.Queue)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	interval := defaultSweepInterval
	if cfg.Escrow.SweepIntervalMinutes > 0 {
		interval = time.Duration(cfg.Escrow.SweepIntervalMinutes) * time.Minute
	}
	return &Service{
		name:          "worker",
		server:        server,
		mux:           mux,
		consumer:      consumer,
		sweepInterval: interval,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.consumer != nil && s.consumer.EscrowService != nil {
		go s.runEscrowSweepLoop(ctx)
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// runEscrowSweepLoop 周期性清理到期未放款的托管
// CAS 状态迁移保证重复执行无副作用，多实例并发扫描也安全
func (s *Service) runEscrowSweepLoop(ctx context.Context) {
	if s == nil || s.consumer == nil || s.consumer.EscrowService == nil {
		return
	}
	runOnce := func() {
		processed, err := s.consumer.EscrowService.ExpireSweep(ctx, time.Now(), sweepBatchSize)
		if err != nil {
			logger.Warnw("worker_escrow_sweep_tick_failed", "processed", processed, "error", err)
			return
		}
		if processed > 0 {
			logger.Infow("worker_escrow_sweep_tick_done", "processed", processed)
		}
	}
	runOnce()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
