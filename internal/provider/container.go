package provider

import (
	"github.com/mailotp/internal/cache"
	"github.com/mailotp/internal/config"
	"github.com/mailotp/internal/logger"
	"github.com/mailotp/internal/models"
	"github.com/mailotp/internal/queue"
	"github.com/mailotp/internal/repository"
	"github.com/mailotp/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	OtpRecordRepo repository.OtpRecordRepository

	// Services
	EmailService   *service.EmailService
	CaptchaService *service.CaptchaService
	OtpService     *service.OtpService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	c.initRepositories()
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.OtpRecordRepo = repository.NewOtpRecordRepository(db)
}

func (c *Container) initServices() {
	c.EmailService = service.NewEmailService(&c.Config.Email, c.Config.Otp.TTLSeconds/60)
	c.CaptchaService = service.NewCaptchaService(c.Config.Captcha)
	c.OtpService = service.NewOtpService(c.Config, c.OtpRecordRepo, c.EmailService, c.QueueClient)
}
