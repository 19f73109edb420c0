package sharing

import "go.uber.org/zap/zapcore"

// Record 是本进程对一个已分享会话的记录。除UpdatedAt外创建后不再改变
type Record struct {
	ShareID   string `yaml:"shareId" json:"shareId"`
	SessionID string `yaml:"sessionId" json:"sessionId"`
	Secret    string `yaml:"secret" json:"secret"`
	URL       string `yaml:"url" json:"url"`
	// 毫秒时间戳
	CreatedAt int64 `yaml:"createdAt" json:"createdAt"`
	UpdatedAt int64 `yaml:"updatedAt" json:"updatedAt"`
}

// MarshalLogObject 记录日志时隐藏密钥
func (r Record) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("shareID", r.ShareID)
	enc.AddString("sessionID", r.SessionID)
	enc.AddString("secret", MaskSecret(r.Secret))
	enc.AddString("url", r.URL)
	enc.AddInt64("createdAt", r.CreatedAt)
	enc.AddInt64("updatedAt", r.UpdatedAt)
	return nil
}

// MaskSecret 只保留前4个字符
func MaskSecret(secret string) string {
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:4] + "****"
}
