package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"better-share/internal/errs"
	"better-share/internal/interfaces"
	"better-share/internal/model"
	"better-share/internal/repository"
	"better-share/internal/shareid"
	"better-share/internal/storage"
	"better-share/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	secretBytes       = 24
	defaultPresignTTL = time.Hour
	// 两种校验失败使用同一条消息，调用方无法据此区分
	authFailedMessage = "share not found or invalid secret"
)

// 处理分享注册、预签名和删除
type ShareService struct {
	repo      *repository.ShareRepository
	store     storage.ObjectStore
	publisher interfaces.EventPublisher

	baseURL    string
	presignTTL time.Duration
	secretCost int
	// 不存在的分享也做一次bcrypt比较
	dummyHash []byte
	now       func() time.Time
}

type ShareServiceOptions struct {
	BaseURL    string
	PresignTTL time.Duration
	SecretCost int
}

// 创建一个新的分享服务实例，publisher可以为nil
func NewShareService(repo *repository.ShareRepository, store storage.ObjectStore, publisher interfaces.EventPublisher, opts ShareServiceOptions) (*ShareService, error) {
	cost := opts.SecretCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	ttl := opts.PresignTTL
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}

	dummySecret, err := generateSecret()
	if err != nil {
		return nil, err
	}
	dummyHash, err := bcrypt.GenerateFromPassword([]byte(dummySecret), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash dummy secret: %w", err)
	}

	return &ShareService{
		repo:       repo,
		store:      store,
		publisher:  publisher,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		presignTTL: ttl,
		secretCost: cost,
		dummyHash:  dummyHash,
		now:        time.Now,
	}, nil
}

// 创建分享的返回结果
type PresignResult struct {
	PresignedURL string `json:"presignedUrl"`
	Secret       string `json:"secret"`
	URL          string `json:"url"`
}

// CreatePresign 注册新分享，返回上传地址和只返回这一次的密钥
func (s *ShareService) CreatePresign(ctx context.Context, shareID, sessionID string) (*PresignResult, error) {
	if !shareid.Valid(shareID) {
		return nil, errs.New(errs.InvalidShareID, "invalid share id")
	}
	if sessionID == "" {
		return nil, errs.New(errs.InvalidShareID, "missing session id")
	}

	// 检查分享是否已存在
	exists, err := s.repo.Exists(ctx, shareID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to check share", err)
	}
	if exists {
		return nil, errs.New(errs.AlreadyShared, "Share already exists")
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to generate secret", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.secretCost)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to hash secret", err)
	}

	share := &model.Share{
		ShareID:   shareID,
		SessionID: sessionID,
		Secret:    string(hash),
		CreatedAt: s.now().UnixMilli(),
	}
	if err := s.repo.Create(ctx, share); err != nil {
		if errors.Is(err, repository.ErrShareExists) {
			return nil, errs.New(errs.AlreadyShared, "Share already exists")
		}
		return nil, errs.Wrap(errs.Internal, "failed to register share", err)
	}

	presignedURL, err := s.store.PresignPut(ctx, storage.ObjectKey(shareID), s.presignTTL)
	if err != nil {
		// 注册成功但无法上传的分享会永久占用ID，回滚
		if _, delErr := s.repo.Delete(ctx, shareID); delErr != nil {
			logger.L.Error("Failed to roll back share registration",
				zap.String("shareID", shareID), zap.Error(delErr))
		}
		return nil, errs.Wrap(errs.PresignFailed, "failed to create upload url", err)
	}

	logger.L.Info("Share created", zap.String("shareID", shareID), zap.String("sessionID", sessionID))
	s.publish(interfaces.EventCreated, shareID)

	return &PresignResult{
		PresignedURL: presignedURL,
		Secret:       secret,
		URL:          s.ShareURL(shareID),
	}, nil
}

// SyncPresign 校验密钥后签发新的上传地址
func (s *ShareService) SyncPresign(ctx context.Context, shareID, secret string) (string, error) {
	if _, err := s.authorize(ctx, shareID, secret); err != nil {
		return "", err
	}

	presignedURL, err := s.store.PresignPut(ctx, storage.ObjectKey(shareID), s.presignTTL)
	if err != nil {
		return "", errs.Wrap(errs.PresignFailed, "failed to create upload url", err)
	}

	s.publish(interfaces.EventPresigned, shareID)
	return presignedURL, nil
}

// GetShare 返回已上传的分享文档原始字节
func (s *ShareService) GetShare(ctx context.Context, shareID string) ([]byte, error) {
	if !shareid.Valid(shareID) {
		return nil, errs.New(errs.NotFound, "Share not found")
	}
	share, err := s.repo.FindByID(ctx, shareID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to look up share", err)
	}
	if share == nil {
		return nil, errs.New(errs.NotFound, "Share not found")
	}

	data, err := s.store.Get(ctx, storage.ObjectKey(shareID))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, errs.New(errs.NotFound, "Share data not found")
		}
		return nil, errs.Wrap(errs.Internal, "failed to read share data", err)
	}
	return data, nil
}

// ShareExists 用于观看接口在升级连接前确认分享存在
func (s *ShareService) ShareExists(ctx context.Context, shareID string) (bool, error) {
	if !shareid.Valid(shareID) {
		return false, nil
	}
	return s.repo.Exists(ctx, shareID)
}

// DeleteShare 校验密钥后删除对象和注册记录。对象删除失败时仍然删除记录
func (s *ShareService) DeleteShare(ctx context.Context, shareID, secret string) error {
	if _, err := s.authorize(ctx, shareID, secret); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, storage.ObjectKey(shareID)); err != nil {
		logger.L.Error("Failed to delete share data, removing registration anyway",
			zap.String("shareID", shareID), zap.Error(err))
	}

	if _, err := s.repo.Delete(ctx, shareID); err != nil {
		return errs.Wrap(errs.DeleteFailed, "failed to delete share", err)
	}

	logger.L.Info("Share deleted", zap.String("shareID", shareID))
	s.publish(interfaces.EventDeleted, shareID)
	return nil
}

// NotifyUploaded 在文档写入存储后通知观看者
func (s *ShareService) NotifyUploaded(shareID string) {
	s.publish(interfaces.EventUploaded, shareID)
}

func (s *ShareService) ShareURL(shareID string) string {
	return s.baseURL + "/share/" + shareID
}

// authorize 查找分享并校验密钥，未知分享同样执行一次bcrypt比较
func (s *ShareService) authorize(ctx context.Context, shareID, secret string) (*model.Share, error) {
	if secret == "" {
		return nil, errs.New(errs.Unauthorized, "missing secret")
	}

	var share *model.Share
	if shareid.Valid(shareID) {
		found, err := s.repo.FindByID(ctx, shareID)
		if err != nil {
			return nil, errs.Wrap(errs.Internal, "failed to look up share", err)
		}
		share = found
	}

	if share == nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(secret))
		return nil, errs.New(errs.NotFound, authFailedMessage)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(share.Secret), []byte(secret)); err != nil {
		return nil, errs.New(errs.Unauthorized, authFailedMessage)
	}
	return share, nil
}

func (s *ShareService) publish(eventType, shareID string) {
	if s.publisher == nil {
		return
	}
	event := interfaces.ShareEvent{Type: eventType, ShareID: shareID, Timestamp: s.now().UnixMilli()}
	if err := s.publisher.Publish(event); err != nil {
		logger.L.Warn("Failed to publish share event",
			zap.String("shareID", shareID), zap.String("type", eventType), zap.Error(err))
	}
}

func generateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
