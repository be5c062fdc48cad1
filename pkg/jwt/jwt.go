// Package jwt 提供 JWT Token 的生成和验证
// 使用 HS256 签名；Access Token 用于 API 和 WebSocket，Refresh Token 只用于换取新的 Access Token
package jwt

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// issuer 签发者
const issuer = "pcbuild"

// Token 用途
const (
	SubjectAccess  = "access"
	SubjectRefresh = "refresh"
)

// 定义 JWT 相关错误
var (
	ErrInvalidToken = errors.New("invalid token")     // Token 无效
	ErrExpiredToken = errors.New("token has expired") // Token 已过期
)

// UserClaims 用户 Token 的声明
type UserClaims struct {
	UserID   int64  `json:"user_id"`  // 用户 ID
	Username string `json:"username"` // 用户名
	jwt.RegisteredClaims
}

// JWTService JWT 服务
type JWTService struct {
	secret        []byte        // JWT 签名密钥
	accessExpire  time.Duration // Access Token 过期时间
	refreshExpire time.Duration // Refresh Token 过期时间
	now           func() time.Time
}

// NewJWTService 创建 JWTService 实例
func NewJWTService(secret string, accessExpire, refreshExpire time.Duration) *JWTService {
	return &JWTService{
		secret:        []byte(secret),
		accessExpire:  accessExpire,
		refreshExpire: refreshExpire,
		now:           time.Now,
	}
}

func (s *JWTService) sign(userID int64, username, subject string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := UserClaims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   subject,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// GenerateAccessToken 生成 Access Token
func (s *JWTService) GenerateAccessToken(userID int64, username string) (string, error) {
	return s.sign(userID, username, SubjectAccess, s.accessExpire)
}

// GenerateRefreshToken 生成 Refresh Token
func (s *JWTService) GenerateRefreshToken(userID int64, username string) (string, error) {
	return s.sign(userID, username, SubjectRefresh, s.refreshExpire)
}

// parse 验证签名、过期时间和用途
func (s *JWTService) parse(tokenString, subject string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 只接受 HMAC，防止算法替换攻击
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid || claims.Subject != subject {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateAccessToken 验证 Access Token
// Refresh Token 不能用来访问 API
func (s *JWTService) ValidateAccessToken(tokenString string) (*UserClaims, error) {
	return s.parse(tokenString, SubjectAccess)
}

// ValidateRefreshToken 验证 Refresh Token
func (s *JWTService) ValidateRefreshToken(tokenString string) (*UserClaims, error) {
	return s.parse(tokenString, SubjectRefresh)
}

// AccessExpire Access Token 有效期
func (s *JWTService) AccessExpire() time.Duration {
	return s.accessExpire
}

// HashToken 计算 Token 的 SHA256 哈希值
// 黑名单中只保存哈希，不保存原始 Token
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
