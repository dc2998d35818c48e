package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/mailotp/internal/logger"
	"github.com/mailotp/internal/provider"
	"github.com/mailotp/internal/queue"
	"github.com/mailotp/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskOtpExpire, c.handleOtpExpire)
}

func (c *Consumer) handleOtpExpire(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_otp_expire_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.OtpExpirePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_otp_expire_unmarshal_failed", "error", err)
		return err
	}
	email := strings.TrimSpace(payload.Email)
	if email == "" || payload.IssuedAtUnixNano <= 0 {
		logger.Debugw("worker_otp_expire_skip_invalid_payload", "email", email, "issued_at_unix_nano", payload.IssuedAtUnixNano)
		return nil
	}
	if c.OtpService == nil {
		logger.Warnw("worker_otp_expire_skip_otp_service_nil", "email", email)
		return nil
	}
	issuedAt := time.Unix(0, payload.IssuedAtUnixNano)
	if err := c.OtpService.ExpireIssuedBefore(email, issuedAt); err != nil {
		if errors.Is(err, service.ErrInvalidEmail) {
			logger.Debugw("worker_otp_expire_skip_invalid_email", "email", email)
			return nil
		}
		logger.Warnw("worker_otp_expire_failed", "email", email, "error", err)
		return err
	}
	return nil
}
