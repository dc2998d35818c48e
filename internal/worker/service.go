package worker

import (
	"context"
	"errors"
	"time"

	"github.com/mailotp/internal/config"
	"github.com/mailotp/internal/logger"
	"github.com/mailotp/internal/queue"

	"github.com/hibiken/asynq"
)

const (
	otpPurgeInterval = time.Minute
)

// Service 异步队列服务
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
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
	if s.consumer != nil && s.consumer.OtpService != nil {
		go s.runOtpPurgeLoop(ctx)
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

// runOtpPurgeLoop 周期性物理清除过期记录
// 延迟任务丢失或队列重启时的兜底
func (s *Service) runOtpPurgeLoop(ctx context.Context) {
	if s == nil || s.consumer == nil || s.consumer.OtpService == nil {
		return
	}
	runOnce := func() {
		purged, err := s.consumer.OtpService.PurgeExpired(time.Now())
		if err != nil {
			logger.Warnw("worker_otp_purge_failed", "error", err)
			return
		}
		if purged > 0 {
			logger.Infow("worker_otp_purge_done", "purged", purged)
		}
	}
	runOnce()

	ticker := time.NewTicker(otpPurgeInterval)
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
