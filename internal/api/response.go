package api

import (
	"net/http"

	"better-share/internal/errs"
	"better-share/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var statusByKind = map[errs.Kind]int{
	errs.InvalidShareID: http.StatusBadRequest,
	errs.Unauthorized:   http.StatusUnauthorized,
	errs.NotFound:       http.StatusNotFound,
	errs.AlreadyShared:  http.StatusConflict,
	errs.RateLimited:    http.StatusTooManyRequests,
	errs.PresignFailed:  http.StatusBadGateway,
}

// respondError 把错误写成 {error, code}，内部错误不暴露细节
func respondError(c *gin.Context, err error) {
	kind := errs.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	message := errs.Message(err)
	if status >= http.StatusInternalServerError {
		logger.L.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		_ = c.Error(err)
		if kind == errs.Internal {
			message = "internal server error"
		}
	}
	c.JSON(status, gin.H{"error": message, "code": kind})
}
