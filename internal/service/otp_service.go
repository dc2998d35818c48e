package service

import (
	"net/mail"
	"strings"
	"time"

	"github.com/mailotp/internal/config"
	"github.com/mailotp/internal/logger"
	"github.com/mailotp/internal/models"
	"github.com/mailotp/internal/otp"
	"github.com/mailotp/internal/queue"
	"github.com/mailotp/internal/repository"
)

// Notifier 验证码投递抽象
// 生产实现为 EmailService，测试中可替换为假实现
type Notifier interface {
	SendOtpCode(toEmail, code string) error
}

// OtpService 验证码生命周期服务
// 负责签发、校验、冷却、锁定与过期清理
type OtpService struct {
	cfg      *config.Config
	repo     repository.OtpRecordRepository
	notifier Notifier
	hasher   *otp.Hasher
	queue    *queue.Client
	locks    *keyedMutex
}

// NewOtpService 创建验证码服务
func NewOtpService(cfg *config.Config, repo repository.OtpRecordRepository, notifier Notifier, queueClient *queue.Client) *OtpService {
	return &OtpService{
		cfg:      cfg,
		repo:     repo,
		notifier: notifier,
		hasher:   otp.NewHasher(cfg.Otp.BcryptCost),
		queue:    queueClient,
		locks:    newKeyedMutex(),
	}
}

// RequestCode 为指定邮箱签发验证码并投递
// 冷却期内的重复请求直接拒绝且不改动现有记录
// 冷却期外的重复请求以新记录整体替换旧记录（含锁定状态）
func (s *OtpService) RequestCode(email string) error {
	if s.notifier == nil {
		return ErrEmailServiceNotConfigured
	}
	normalized, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(normalized)
	defer unlock()

	now := time.Now()
	ttl := resolveOtpTTL(s.cfg.Otp)

	record, err := s.repo.GetByEmail(normalized)
	if err != nil {
		return err
	}
	if record != nil && record.IsExpired(now, ttl) {
		if err := s.repo.DeleteByEmail(normalized); err != nil {
			return err
		}
		record = nil
	}
	if record != nil {
		cooldown := resolveOtpCooldown(s.cfg.Otp)
		if now.Sub(record.CreatedAt) < cooldown {
			return ErrRequestTooFrequent
		}
	}

	code, err := otp.GenerateCode(resolveOtpCodeLength(s.cfg.Otp))
	if err != nil {
		return err
	}
	codeHash, err := s.hasher.Hash(code)
	if err != nil {
		return err
	}

	fresh := &models.OtpRecord{
		Email:     normalized,
		CodeHash:  codeHash,
		Attempts:  0,
		LockUntil: nil,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Upsert(fresh); err != nil {
		return err
	}

	if err := s.notifier.SendOtpCode(normalized, code); err != nil {
		logger.Errorw("otp_email_send_failed", "email", normalized, "error", err)
		return err
	}

	s.scheduleExpire(normalized, now, ttl)
	return nil
}

// SubmitCode 校验邮箱验证码
// 成功即消费记录；失败累计尝试次数，达到上限后锁定
func (s *OtpService) SubmitCode(email, code string) error {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(normalized)
	defer unlock()

	now := time.Now()
	ttl := resolveOtpTTL(s.cfg.Otp)

	record, err := s.repo.GetByEmail(normalized)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrCodeNotFound
	}
	if record.IsExpired(now, ttl) {
		if err := s.repo.DeleteByEmail(normalized); err != nil {
			return err
		}
		return ErrCodeNotFound
	}
	if record.IsLocked(now) {
		return ErrCodeLocked
	}

	if s.hasher.Verify(strings.TrimSpace(code), record.CodeHash) {
		if err := s.repo.DeleteByEmail(normalized); err != nil {
			return err
		}
		return nil
	}

	attempts := record.Attempts + 1
	if err := s.repo.IncrementAttempt(record.ID); err != nil {
		return err
	}

	maxAttempts := resolveOtpMaxAttempts(s.cfg.Otp)
	if attempts >= maxAttempts {
		lockUntil := now.Add(resolveOtpLockWindow(s.cfg.Otp))
		if err := s.repo.SetLockUntil(record.ID, lockUntil); err != nil {
			return err
		}
		return ErrCodeLocked
	}
	return &CodeInvalidError{AttemptsRemaining: maxAttempts - attempts}
}

// ExpireIssuedBefore 删除指定邮箱在截止时间之前签发的记录
// 由延迟任务回调，签发时间靠后的新记录不受影响
func (s *OtpService) ExpireIssuedBefore(email string, issuedAt time.Time) error {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(normalized)
	defer unlock()
	return s.repo.DeleteByEmailIssuedBefore(normalized, issuedAt)
}

// PurgeExpired 物理清除所有已过期记录，返回删除条数
func (s *OtpService) PurgeExpired(now time.Time) (int64, error) {
	cutoff := now.Add(-resolveOtpTTL(s.cfg.Otp))
	return s.repo.PurgeExpired(cutoff)
}

func (s *OtpService) scheduleExpire(email string, issuedAt time.Time, ttl time.Duration) {
	if s.queue == nil || !s.queue.Enabled() {
		return
	}
	if err := s.queue.EnqueueOtpExpire(email, issuedAt, ttl); err != nil {
		logger.Warnw("otp_expire_enqueue_failed", "email", email, "error", err)
	}
}

func normalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return "", ErrInvalidEmail
	}
	if _, err := mail.ParseAddress(normalized); err != nil {
		return "", ErrInvalidEmail
	}
	return normalized, nil
}

// NormalizeEmail 统一邮箱格式
func NormalizeEmail(email string) (string, error) {
	return normalizeEmail(email)
}

func resolveOtpTTL(cfg config.OtpConfig) time.Duration {
	if cfg.TTLSeconds <= 0 {
		return 600 * time.Second
	}
	return time.Duration(cfg.TTLSeconds) * time.Second
}

func resolveOtpCooldown(cfg config.OtpConfig) time.Duration {
	if cfg.CooldownSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(cfg.CooldownSeconds) * time.Second
}

func resolveOtpMaxAttempts(cfg config.OtpConfig) int {
	if cfg.MaxAttempts <= 0 {
		return 5
	}
	return cfg.MaxAttempts
}

func resolveOtpLockWindow(cfg config.OtpConfig) time.Duration {
	if cfg.LockSeconds <= 0 {
		return 300 * time.Second
	}
	return time.Duration(cfg.LockSeconds) * time.Second
}

func resolveOtpCodeLength(cfg config.OtpConfig) int {
	if cfg.Length < 4 || cfg.Length > 10 {
		return otp.DefaultCodeLength
	}
	return cfg.Length
}
