package models

import (
	"time"
)

// OtpRecord 邮箱验证码记录
// 每个邮箱同一时间最多存在一条记录，重新发送会整条替换
type OtpRecord struct {
	ID        uint       `gorm:"primarykey" json:"id"`                 // 主键
	Email     string     `gorm:"uniqueIndex;not null" json:"email"`    // 邮箱（唯一键）
	CodeHash  string     `gorm:"not null" json:"-"`                    // 验证码哈希（不落明文）
	Attempts  int        `gorm:"not null;default:0" json:"attempts"`   // 失败尝试次数
	LockUntil *time.Time `gorm:"index" json:"lock_until"`              // 锁定截止时间
	CreatedAt time.Time  `gorm:"index;not null" json:"created_at"`     // 签发时间（冷却与过期都以此为准）
	UpdatedAt time.Time  `json:"updated_at"`                           // 更新时间
}

// TableName 指定表名
func (OtpRecord) TableName() string {
	return "otp_records"
}

// ExpiresAt 记录的逻辑过期时间
func (r *OtpRecord) ExpiresAt(ttl time.Duration) time.Time {
	return r.CreatedAt.Add(ttl)
}

// IsExpired 判断记录是否已逻辑过期
func (r *OtpRecord) IsExpired(now time.Time, ttl time.Duration) bool {
	return !now.Before(r.ExpiresAt(ttl))
}

// IsLocked 判断记录当前是否处于锁定状态
func (r *OtpRecord) IsLocked(now time.Time) bool {
	return r.LockUntil != nil && r.LockUntil.After(now)
}
