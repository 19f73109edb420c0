package repository

import (
	"context"
	"errors"

	"better-share/internal/model"

	"gorm.io/gorm"
)

// ErrShareExists 表示share_id已被注册
var ErrShareExists = errors.New("share already exists")

type ShareRepository struct {
	db *gorm.DB
}

func NewShareRepository(db *gorm.DB) *ShareRepository {
	return &ShareRepository{db: db}
}

// 创建分享记录
func (r *ShareRepository) Create(ctx context.Context, share *model.Share) error {
	err := r.db.WithContext(ctx).Create(share).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrShareExists
	}
	return err
}

// 通过share_id查找分享，不存在时返回(nil, nil)
func (r *ShareRepository) FindByID(ctx context.Context, shareID string) (*model.Share, error) {
	var share model.Share
	err := r.db.WithContext(ctx).Where("share_id = ?", shareID).First(&share).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &share, nil
}

func (r *ShareRepository) Exists(ctx context.Context, shareID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Share{}).Where("share_id = ?", shareID).Count(&count).Error
	return count > 0, err
}

// FindBySession 查询某个会话的所有分享
func (r *ShareRepository) FindBySession(ctx context.Context, sessionID string) ([]model.Share, error) {
	var shares []model.Share
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at").Find(&shares).Error
	return shares, err
}

// 删除分享，返回是否删除了记录
func (r *ShareRepository) Delete(ctx context.Context, shareID string) (bool, error) {
	result := r.db.WithContext(ctx).Where("share_id = ?", shareID).Delete(&model.Share{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
