package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"better-share/internal/transcript"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeServer 只实现测试需要的几个接口，并记录收到的请求
type fakeServer struct {
	secret   string
	uploaded []byte
}

func (f *fakeServer) router() *gin.Engine {
	r := gin.New()
	r.POST("/api/share/presign", func(c *gin.Context) {
		var req struct {
			ShareID   string `json:"shareId"`
			SessionID string `json:"sessionId"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.ShareID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid share id", "code": "INVALID_SHARE_ID"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"presignedUrl": "http://" + c.Request.Host + "/upload/" + req.ShareID,
			"secret":       f.secret,
			"url":          "https://share.example.com/share/" + req.ShareID,
		})
	})
	r.POST("/api/share/:id/presign", func(c *gin.Context) {
		if c.GetHeader(SecretHeader) != f.secret {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "share not found or invalid secret", "code": "UNAUTHORIZED"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"presignedUrl": "http://" + c.Request.Host + "/upload/" + c.Param("id")})
	})
	r.DELETE("/api/share/:id", func(c *gin.Context) {
		if c.GetHeader(SecretHeader) != f.secret {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "share not found or invalid secret", "code": "UNAUTHORIZED"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	r.GET("/api/share/:id", func(c *gin.Context) {
		if f.uploaded == nil {
			c.String(http.StatusBadGateway, "upstream exploded")
			return
		}
		c.Data(http.StatusOK, "application/json", f.uploaded)
	})
	r.PUT("/upload/:id", func(c *gin.Context) {
		if c.GetHeader("Content-Type") != "application/json" {
			c.Status(http.StatusUnsupportedMediaType)
			return
		}
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		f.uploaded = body
		c.Status(http.StatusOK)
	})
	return r
}

func setup(t *testing.T) (*Client, *fakeServer) {
	t.Helper()
	f := &fakeServer{secret: "s3cret"}
	srv := httptest.NewServer(f.router())
	t.Cleanup(srv.Close)
	// 末尾的斜杠会被去掉
	return New(srv.URL+"/", 5*time.Second), f
}

func TestCreatePresignAndUpload(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	resp, err := c.CreatePresign(ctx, "abc12345", "ses_abc12345")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", resp.Secret)
	assert.Equal(t, "https://share.example.com/share/abc12345", resp.URL)

	doc := &transcript.ShareDocument{ShareID: "abc12345", SessionID: "ses_abc12345", CreatedAt: 1, UpdatedAt: 2, Messages: []transcript.Message{}}
	require.NoError(t, c.Upload(ctx, resp.PresignedURL, doc))

	raw, err := c.FetchShare(ctx, "abc12345")
	require.NoError(t, err)
	var got transcript.ShareDocument
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "ses_abc12345", got.SessionID)
	assert.Equal(t, int64(2), got.UpdatedAt)
}

func TestSecretHeader(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	url, err := c.SyncPresign(ctx, "abc12345", "s3cret")
	require.NoError(t, err)
	assert.Contains(t, url, "/upload/abc12345")

	_, err = c.SyncPresign(ctx, "abc12345", "wrong")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", apiErr.Code)
	assert.Equal(t, "share not found or invalid secret", apiErr.Message)

	assert.NoError(t, c.DeleteShare(ctx, "abc12345", "s3cret"))
	assert.Error(t, c.DeleteShare(ctx, "abc12345", ""))
}

func TestAPIErrorDecoding(t *testing.T) {
	c, _ := setup(t)

	_, err := c.CreatePresign(context.Background(), "", "ses_1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "INVALID_SHARE_ID", apiErr.Code)
	assert.Equal(t, "Invalid share id (INVALID_SHARE_ID, status 400)", apiErr.Error())

	// 非JSON的错误响应退回到状态文本
	_, err = c.FetchShare(context.Background(), "abc12345")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "Bad Gateway", apiErr.Message)
	assert.Empty(t, apiErr.Code)
}

func TestUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, time.Second).CreatePresign(context.Background(), "abc12345", "ses_1")
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}
