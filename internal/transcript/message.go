package transcript

import "encoding/json"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionID"`
	Role      Role        `json:"role"`
	Time      MessageTime `json:"time"`

	// 用户消息记录选择的模型
	Model *ModelRef `json:"model,omitempty"`

	// 以下字段只出现在助手消息中
	ProviderID string      `json:"providerID,omitempty"`
	ModelID    string      `json:"modelID,omitempty"`
	Cost       float64     `json:"cost,omitempty"`
	Tokens     *TokenUsage `json:"tokens,omitempty"`

	Parts []Part `json:"parts"`

	// 宿主工具写入的其他字段(error、mode、path、finish等)，原样带入分享
	Extra map[string]json.RawMessage `json:"-"`
}

type messageFields Message

func (m *Message) UnmarshalJSON(data []byte) error {
	var fields messageFields
	extra, err := decodeWithExtra(data, &fields)
	if err != nil {
		return err
	}
	fields.Extra = extra
	*m = Message(fields)
	return nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	return encodeWithExtra(messageFields(m), m.Extra)
}

type MessageTime struct {
	Created   int64 `json:"created"`
	Updated   int64 `json:"updated,omitempty"`
	Completed int64 `json:"completed,omitempty"`
}

type ModelRef struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

type TokenUsage struct {
	Input     int        `json:"input"`
	Output    int        `json:"output"`
	Reasoning int        `json:"reasoning"`
	Cache     TokenCache `json:"cache"`
}

type TokenCache struct {
	Read  int `json:"read"`
	Write int `json:"write"`
}

func (m *Message) IsAssistant() bool {
	return m.Role == RoleAssistant
}
