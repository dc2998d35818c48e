package repository

import (
	"errors"
	"time"

	"github.com/mailotp/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OtpRecordRepository 验证码记录数据访问接口
type OtpRecordRepository interface {
	Upsert(record *models.OtpRecord) error
	GetByEmail(email string) (*models.OtpRecord, error)
	DeleteByEmail(email string) error
	IncrementAttempt(id uint) error
	SetLockUntil(id uint, lockUntil time.Time) error
	PurgeExpired(cutoff time.Time) (int64, error)
	DeleteByEmailIssuedBefore(email string, cutoff time.Time) error
}

// GormOtpRecordRepository GORM 实现
type GormOtpRecordRepository struct {
	db *gorm.DB
}

// NewOtpRecordRepository 创建验证码记录仓库
func NewOtpRecordRepository(db *gorm.DB) *GormOtpRecordRepository {
	return &GormOtpRecordRepository{db: db}
}

// Upsert 写入验证码记录
// 同邮箱已有记录时整条替换（attempts 归零、锁定清除），依赖 email 唯一索引保证原子性
func (r *GormOtpRecordRepository) Upsert(record *models.OtpRecord) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"code_hash",
			"attempts",
			"lock_until",
			"created_at",
			"updated_at",
		}),
	}).Create(record).Error
}

// GetByEmail 按邮箱查询记录，不存在时返回 nil
func (r *GormOtpRecordRepository) GetByEmail(email string) (*models.OtpRecord, error) {
	var record models.OtpRecord
	if err := r.db.Where("email = ?", email).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// DeleteByEmail 按邮箱删除记录
func (r *GormOtpRecordRepository) DeleteByEmail(email string) error {
	return r.db.Where("email = ?", email).Delete(&models.OtpRecord{}).Error
}

// IncrementAttempt 失败次数加一（数据库侧原子自增）
func (r *GormOtpRecordRepository) IncrementAttempt(id uint) error {
	return r.db.Model(&models.OtpRecord{}).
		Where("id = ?", id).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
}

// SetLockUntil 设置锁定截止时间
func (r *GormOtpRecordRepository) SetLockUntil(id uint, lockUntil time.Time) error {
	return r.db.Model(&models.OtpRecord{}).
		Where("id = ?", id).
		Update("lock_until", lockUntil).Error
}

// PurgeExpired 物理清理签发时间早于 cutoff 的记录
func (r *GormOtpRecordRepository) PurgeExpired(cutoff time.Time) (int64, error) {
	result := r.db.Where("created_at < ?", cutoff).Delete(&models.OtpRecord{})
	return result.RowsAffected, result.Error
}

// DeleteByEmailIssuedBefore 删除指定邮箱中签发时间不晚于 cutoff 的记录
// 用于延迟过期任务：若记录已被更新的验证码替换则不会误删
func (r *GormOtpRecordRepository) DeleteByEmailIssuedBefore(email string, cutoff time.Time) error {
	return r.db.Where("email = ? AND created_at <= ?", email, cutoff).
		Delete(&models.OtpRecord{}).Error
}
