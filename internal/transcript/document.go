// Package transcript 描述分享文档的结构：会话元数据、消息以及消息的各个部分。
package transcript

import "encoding/json"

// ShareDocument 是上传到对象存储中的完整分享内容，每次同步都会整体覆盖
type ShareDocument struct {
	ShareID   string    `json:"shareId"`
	SessionID string    `json:"sessionId"`
	CreatedAt int64     `json:"createdAt"`
	UpdatedAt int64     `json:"updatedAt"`
	Session   Session   `json:"session"`
	Messages  []Message `json:"messages"`
}

// Snapshot 是从本地存储读出的某个会话的完整内容
type Snapshot struct {
	Session  Session
	Messages []Message
}

// NewDocument 由快照组装分享文档
func NewDocument(shareID string, snapshot *Snapshot, createdAt, updatedAt int64) *ShareDocument {
	messages := snapshot.Messages
	if messages == nil {
		messages = []Message{}
	}
	return &ShareDocument{
		ShareID:   shareID,
		SessionID: snapshot.Session.ID,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		Session:   snapshot.Session,
		Messages:  messages,
	}
}

type Session struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	ProjectID string          `json:"projectID"`
	Directory string          `json:"directory"`
	Version   string          `json:"version"`
	Time      SessionTime     `json:"time"`
	Summary   *SessionSummary `json:"summary,omitempty"`

	// parentID、share等其他字段
	Extra map[string]json.RawMessage `json:"-"`
}

type sessionFields Session

func (s *Session) UnmarshalJSON(data []byte) error {
	var fields sessionFields
	extra, err := decodeWithExtra(data, &fields)
	if err != nil {
		return err
	}
	fields.Extra = extra
	*s = Session(fields)
	return nil
}

func (s Session) MarshalJSON() ([]byte, error) {
	return encodeWithExtra(sessionFields(s), s.Extra)
}

type SessionTime struct {
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
}

// SessionSummary 会话产生的代码变更统计
type SessionSummary struct {
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
	Files     int `json:"files"`
}
