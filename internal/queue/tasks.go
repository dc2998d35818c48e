package queue

import (
	"encoding/json"

	"github.com/mailotp/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskOtpExpire 验证码到期清理任务
	TaskOtpExpire = constants.TaskOtpExpire
)

// OtpExpirePayload 验证码到期清理任务载荷
// 携带签发时间（纳秒），避免误删之后重新签发的记录
type OtpExpirePayload struct {
	Email            string `json:"email"`
	IssuedAtUnixNano int64  `json:"issued_at_unix_nano"`
}

// NewOtpExpireTask 创建验证码到期清理任务
func NewOtpExpireTask(payload OtpExpirePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOtpExpire, body), nil
}
