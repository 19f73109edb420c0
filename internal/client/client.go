// Package client 调用分享服务的HTTP接口，并把分享文档上传到预签名地址。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"better-share/internal/transcript"
)

const SecretHeader = "X-Share-Secret"

// 读取错误响应体的上限
const maxErrorBody = 64 << 10

type PresignResponse struct {
	PresignedURL string `json:"presignedUrl"`
	Secret       string `json:"secret"`
	URL          string `json:"url"`
}

type syncPresignResponse struct {
	PresignedURL string `json:"presignedUrl"`
}

// APIError 是服务端返回的 {error, code} 错误
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s, status %d)", e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// CreatePresign 为新的分享申请上传地址和密钥
func (c *Client) CreatePresign(ctx context.Context, shareID, sessionID string) (*PresignResponse, error) {
	body, err := json.Marshal(map[string]string{"shareId": shareID, "sessionId": sessionID})
	if err != nil {
		return nil, err
	}

	var resp PresignResponse
	if err := c.do(ctx, http.MethodPost, "/api/share/presign", "", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SyncPresign 使用密钥为已有分享申请新的上传地址
func (c *Client) SyncPresign(ctx context.Context, shareID, secret string) (string, error) {
	var resp syncPresignResponse
	path := "/api/share/" + url.PathEscape(shareID) + "/presign"
	if err := c.do(ctx, http.MethodPost, path, secret, nil, &resp); err != nil {
		return "", err
	}
	return resp.PresignedURL, nil
}

// DeleteShare 删除远端的分享数据和记录
func (c *Client) DeleteShare(ctx context.Context, shareID, secret string) error {
	return c.do(ctx, http.MethodDelete, "/api/share/"+url.PathEscape(shareID), secret, nil, nil)
}

// FetchShare 获取公开的分享文档原始内容
func (c *Client) FetchShare(ctx context.Context, shareID string) ([]byte, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/share/"+url.PathEscape(shareID), "", nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Upload 把分享文档PUT到预签名地址
func (c *Client) Upload(ctx context.Context, presignedURL string, doc *transcript.ShareDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode share document: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, presignedURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) do(ctx context.Context, method, path, secret string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if secret != "" {
		req.Header.Set(SecretHeader, secret)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		apiErr.Message = payload.Error
		apiErr.Code = payload.Code
	} else {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
