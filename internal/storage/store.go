// Package storage 封装分享文档所在的对象存储：S3兼容存储(R2/MinIO)或本地目录。
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"better-share/pkg/config"
)

var ErrObjectNotFound = errors.New("object not found")

const keyPrefix = "sessions/"

// ObjectStore 是服务端依赖的对象存储操作
type ObjectStore interface {
	// PresignPut 返回一个可直接PUT上传的限时地址
	PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete 删除对象，对象不存在时不报错
	Delete(ctx context.Context, key string) error
}

// ObjectKey 返回分享文档的对象键
func ObjectKey(shareID string) string {
	return keyPrefix + shareID + ".json"
}

// ShareIDFromKey 是ObjectKey的逆运算
func ShareIDFromKey(key string) (string, bool) {
	key = strings.TrimPrefix(key, "/")
	if !strings.HasPrefix(key, keyPrefix) || !strings.HasSuffix(key, ".json") {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(key, keyPrefix), ".json")
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// New 按配置创建对象存储
func New(cfg config.StorageConfig, baseURL string) (ObjectStore, error) {
	switch cfg.Backend {
	case "s3", "r2", "minio":
		return NewS3Store(cfg)
	case "local", "":
		signer, err := NewURLSigner(cfg.SigningKey)
		if err != nil {
			return nil, err
		}
		return NewLocalStore(cfg.LocalDir, baseURL, signer)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}
