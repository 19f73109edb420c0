package api

import (
	"net/http"

	"better-share/internal/errs"
	"better-share/internal/middleware"
	"better-share/internal/service"

	"github.com/gin-gonic/gin"
)

type ShareHandler struct {
	shareService *service.ShareService
}

func NewShareHandler(shareService *service.ShareService) *ShareHandler {
	return &ShareHandler{shareService: shareService}
}

// 创建分享请求
type CreateShareRequest struct {
	ShareID   string `json:"shareId" binding:"required"`
	SessionID string `json:"sessionId" binding:"required"`
}

// CreatePresign 注册分享并返回上传地址和密钥
func (h *ShareHandler) CreatePresign(c *gin.Context) {
	var req CreateShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "code": errs.InvalidShareID})
		return
	}

	result, err := h.shareService.CreatePresign(c.Request.Context(), req.ShareID, req.SessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SyncPresign 为已有分享签发新的上传地址
func (h *ShareHandler) SyncPresign(c *gin.Context) {
	presignedURL, err := h.shareService.SyncPresign(c.Request.Context(), c.Param("id"), c.GetString(middleware.SecretKey))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"presignedUrl": presignedURL})
}

// GetShare 原样返回已上传的文档
func (h *ShareHandler) GetShare(c *gin.Context) {
	data, err := h.shareService.GetShare(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

// DeleteShare 删除分享
func (h *ShareHandler) DeleteShare(c *gin.Context) {
	if err := h.shareService.DeleteShare(c.Request.Context(), c.Param("id"), c.GetString(middleware.SecretKey)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
