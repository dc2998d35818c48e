package otp

import (
	"golang.org/x/crypto/bcrypt"
)

// DefaultHashCost 默认 bcrypt 强度
const DefaultHashCost = 10

// Hasher 验证码单向哈希器
// bcrypt 自带随机盐，同一明文每次产生不同摘要
type Hasher struct {
	cost int
}

// NewHasher 创建哈希器
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultHashCost
	}
	return &Hasher{cost: cost}
}

// Hash 计算验证码摘要
func (h *Hasher) Hash(code string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(code), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify 比对验证码与摘要
func (h *Hasher) Verify(code, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(code)) == nil
}
