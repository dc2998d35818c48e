package service

import (
	"errors"
	"fmt"
)

// 业务错误定义
// Handler 层通过 errors.Is / errors.As 匹配并映射为接口状态码
var (
	ErrInvalidEmail              = errors.New("invalid email address")
	ErrRequestTooFrequent        = errors.New("otp requested too frequently")
	ErrCodeNotFound              = errors.New("no otp request found or expired")
	ErrCodeInvalid               = errors.New("invalid otp")
	ErrCodeLocked                = errors.New("too many failed attempts")
	ErrEmailServiceDisabled      = errors.New("email service disabled")
	ErrEmailServiceNotConfigured = errors.New("email service not configured")
	ErrEmailRecipientRejected    = errors.New("email recipient rejected")
	ErrCaptchaRequired           = errors.New("captcha required")
	ErrCaptchaInvalid            = errors.New("captcha invalid")
	ErrCaptchaConfigInvalid      = errors.New("captcha config invalid")
)

// CodeInvalidError 验证码不匹配错误，携带剩余尝试次数
type CodeInvalidError struct {
	AttemptsRemaining int
}

func (e *CodeInvalidError) Error() string {
	return fmt.Sprintf("invalid otp, attempts left: %d", e.AttemptsRemaining)
}

// Unwrap 使 errors.Is(err, ErrCodeInvalid) 成立
func (e *CodeInvalidError) Unwrap() error {
	return ErrCodeInvalid
}
