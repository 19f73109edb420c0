package middleware

import (
	"net/http"

	"better-share/internal/errs"

	"github.com/gin-gonic/gin"
)

const (
	SecretHeader = "X-Share-Secret"
	// 上下文中保存分享密钥的键
	SecretKey = "shareSecret"
)

// RequireShareSecret 要求请求携带分享密钥，具体校验由ShareService完成
func RequireShareSecret() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := c.GetHeader(SecretHeader)
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing secret",
				"code":  errs.Unauthorized,
			})
			return
		}

		c.Set(SecretKey, secret)
		c.Next()
	}
}
