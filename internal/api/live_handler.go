package api

import (
	"net/http"

	"better-share/internal/errs"
	"better-share/internal/interfaces"
	"better-share/internal/service"
	internalws "better-share/internal/websocket"
	"better-share/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 分享本身是公开的，观看接口也不限制来源
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// LiveHandler 让查看页面订阅分享的更新事件
type LiveHandler struct {
	hub          interfaces.WatcherHub
	shareService *service.ShareService
}

func NewLiveHandler(hub interfaces.WatcherHub, shareService *service.ShareService) *LiveHandler {
	return &LiveHandler{hub: hub, shareService: shareService}
}

func (h *LiveHandler) HandleConnection(c *gin.Context) {
	shareID := c.Param("id")
	exists, err := h.shareService.ShareExists(c.Request.Context(), shareID)
	if err != nil {
		respondError(c, errs.Wrap(errs.Internal, "failed to look up share", err))
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Share not found", "code": errs.NotFound})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.L.Error("Failed to upgrade WebSocket connection", zap.String("shareID", shareID), zap.Error(err))
		return
	}
	logger.L.Info("WebSocket connection upgraded", zap.String("shareID", shareID))

	client := internalws.NewClient(shareID, conn, h.hub)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
