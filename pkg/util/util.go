// Package util 提供通用的工具函数
package util

import (
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// 分页默认值
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// HashPassword 使用 bcrypt 对密码进行哈希
// bcrypt 自动加盐，同一密码每次结果不同
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword 验证密码是否与哈希匹配
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Truncate 按字符截断字符串，超长时以 "..." 结尾
// 按 rune 计算，不会截断多字节字符
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// NormalizePage 规范化分页参数
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}
