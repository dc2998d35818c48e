package public

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mailotp/internal/constants"
	"github.com/mailotp/internal/http/response"
	"github.com/mailotp/internal/service"

	"github.com/gin-gonic/gin"
)

// SendOtpRequest 发送验证码请求
type SendOtpRequest struct {
	Email          string                `json:"email" binding:"required"`
	CaptchaPayload CaptchaPayloadRequest `json:"captcha_payload"`
}

// SendOtp 签发验证码并通过邮件投递
func (h *Handler) SendOtp(c *gin.Context) {
	var req SendOtpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "Email is required", err)
		return
	}

	if h.CaptchaService != nil {
		if captchaErr := h.CaptchaService.Verify(constants.CaptchaSceneSendOtp, req.CaptchaPayload.toServicePayload()); captchaErr != nil {
			switch {
			case errors.Is(captchaErr, service.ErrCaptchaRequired):
				respondError(c, response.CodeBadRequest, "Captcha is required", nil)
			case errors.Is(captchaErr, service.ErrCaptchaInvalid):
				respondError(c, response.CodeBadRequest, "Invalid captcha", nil)
			default:
				respondError(c, response.CodeInternal, "Captcha verification failed", captchaErr)
			}
			return
		}
	}

	if err := h.OtpService.RequestCode(req.Email); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidEmail):
			respondError(c, response.CodeBadRequest, "Invalid email address", nil)
		case errors.Is(err, service.ErrRequestTooFrequent):
			respondError(c, response.CodeTooManyRequests, "Please wait before requesting another OTP.", nil)
		case errors.Is(err, service.ErrEmailRecipientRejected):
			respondError(c, response.CodeBadRequest, "Email recipient rejected", nil)
		case errors.Is(err, service.ErrEmailServiceDisabled),
			errors.Is(err, service.ErrEmailServiceNotConfigured):
			respondError(c, response.CodeInternal, "Email service is not configured", err)
		default:
			respondError(c, response.CodeInternal, "Error sending OTP", err)
		}
		return
	}

	response.SuccessWithMsg(c, "OTP sent successfully!", gin.H{"sent": true})
}

// VerifyOtpRequest 校验验证码请求
type VerifyOtpRequest struct {
	Email string `json:"email" binding:"required"`
	Otp   string `json:"otp" binding:"required"`
}

// VerifyOtp 校验验证码
func (h *Handler) VerifyOtp(c *gin.Context) {
	var req VerifyOtpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "Email and OTP are required", err)
		return
	}

	if err := h.OtpService.SubmitCode(req.Email, req.Otp); err != nil {
		var invalidErr *service.CodeInvalidError
		switch {
		case errors.Is(err, service.ErrInvalidEmail):
			respondError(c, response.CodeBadRequest, "Invalid email address", nil)
		case errors.Is(err, service.ErrCodeNotFound):
			respondError(c, response.CodeBadRequest, "No OTP request found or OTP expired", nil)
		case errors.Is(err, service.ErrCodeLocked):
			respondError(c, response.CodeTooManyRequests, "Too many failed attempts. Locked for 5 minutes.", nil)
		case errors.As(err, &invalidErr):
			respondErrorWithData(c, response.CodeBadRequest,
				fmt.Sprintf("Invalid OTP. Attempts left: %d", invalidErr.AttemptsRemaining),
				gin.H{"attempts_remaining": invalidErr.AttemptsRemaining},
			)
		default:
			respondError(c, response.CodeInternal, "Error verifying OTP", err)
		}
		return
	}

	response.SuccessWithMsg(c, "OTP verified successfully", gin.H{"verified": true})
}

// Ping 健康检查
func (h *Handler) Ping(c *gin.Context) {
	c.String(http.StatusOK, "pong")
}
