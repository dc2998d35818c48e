package otp

import (
	"crypto/rand"
	"math/big"
	"strconv"
)

const (
	// DefaultCodeLength 默认验证码位数
	DefaultCodeLength = 6

	minCodeLength = 4
	maxCodeLength = 10
)

// GenerateCode 生成定长十进制随机验证码
// 取值均匀落在 [10^(n-1), 10^n) 区间内，首位不为零，随机源为 crypto/rand
func GenerateCode(length int) (string, error) {
	if length < minCodeLength || length > maxCodeLength {
		length = DefaultCodeLength
	}

	low := pow10(length - 1)
	n, err := rand.Int(rand.Reader, big.NewInt(low*9))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(low+n.Int64(), 10), nil
}

func pow10(exp int) int64 {
	result := int64(1)
	for i := 0; i < exp; i++ {
		result *= 10
	}
	return result
}
