package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"better-share/internal/errs"
	"better-share/internal/service"
	"better-share/internal/storage"
	"better-share/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultMaxUploadBytes = 50 << 20

// StorageHandler 接收本地存储的预签名上传
type StorageHandler struct {
	store          *storage.LocalStore
	shareService   *service.ShareService
	maxUploadBytes int64
}

func NewStorageHandler(store *storage.LocalStore, shareService *service.ShareService, maxUploadBytes int64) *StorageHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &StorageHandler{store: store, shareService: shareService, maxUploadBytes: maxUploadBytes}
}

// Upload 处理 PUT /api/storage/*key?token=
func (h *StorageHandler) Upload(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	shareID, ok := storage.ShareIDFromKey(key)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown object key", "code": errs.NotFound})
		return
	}

	if err := h.store.VerifyUpload(key, c.Query("token")); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "code": errs.Unauthorized})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "document too large", "code": errs.UploadFailed})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body", "code": errs.UploadFailed})
		return
	}
	if !json.Valid(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "document is not valid JSON", "code": errs.UploadFailed})
		return
	}

	if err := h.store.Put(c.Request.Context(), key, body); err != nil {
		logger.L.Error("Failed to store upload", zap.String("key", key), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store document", "code": errs.Internal})
		return
	}

	logger.L.Debug("Share document stored", zap.String("shareID", shareID), zap.Int("bytes", len(body)))
	h.shareService.NotifyUploaded(shareID)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
