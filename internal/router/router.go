package router

import (
	"fmt"
	"strings"

	"github.com/mailotp/internal/cache"
	"github.com/mailotp/internal/config"
	publichandlers "github.com/mailotp/internal/http/handlers/public"
	"github.com/mailotp/internal/logger"
	"github.com/mailotp/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "mo"
	}
	redisClient := cache.Client()
	sendOtpRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:send_otp", redisPrefix),
		WindowSeconds: cfg.Security.SendRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.SendRateLimit.MaxRequests,
		Message:       "Too many OTP requests. Try again later.",
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// 静态文件服务（前端页面）
	r.Static("/public", "./public")

	r.GET("/ping", publicHandler.Ping)
	r.POST("/send-otp", RateLimitMiddleware(redisClient, sendOtpRule, KeyByIP), publicHandler.SendOtp)
	r.POST("/verify-otp", publicHandler.VerifyOtp)

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		public := apiV1.Group("/public")
		{
			public.GET("/captcha/image", publicHandler.GetImageCaptcha)
		}
	}

	return r
}
