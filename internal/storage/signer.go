package storage

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"better-share/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidUploadToken = errors.New("invalid or expired upload token")

// UploadClaims 限定令牌只能对一个对象键执行一种操作
type UploadClaims struct {
	Key    string `json:"key"`
	Method string `json:"method"`
	jwt.RegisteredClaims
}

// URLSigner 为本地存储签发和校验上传令牌
type URLSigner struct {
	secret []byte
}

// NewURLSigner 使用给定密钥创建签名器，密钥为空时随机生成(重启后旧地址失效)
func NewURLSigner(secret string) (*URLSigner, error) {
	if secret != "" {
		return &URLSigner{secret: []byte(secret)}, nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	logger.L.Warn("No storage signing key configured, using an ephemeral key")
	return &URLSigner{secret: key}, nil
}

// 生成上传令牌
func (s *URLSigner) Sign(key, method string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := UploadClaims{
		Key:    key,
		Method: method,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify 校验令牌签名、有效期，并确认它签发给同一个键和方法
func (s *URLSigner) Verify(tokenString, key, method string) error {
	claims := &UploadClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return ErrInvalidUploadToken
	}
	if claims.Key != key || claims.Method != method {
		return ErrInvalidUploadToken
	}
	return nil
}
