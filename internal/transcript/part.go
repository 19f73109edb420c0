package transcript

import (
	"encoding/json"
	"fmt"
)

type PartType string

const (
	PartText      PartType = "text"
	PartTool      PartType = "tool"
	PartFile      PartType = "file"
	PartReasoning PartType = "reasoning"
)

// Part 是消息中的一个内容单元，按type字段区分。
// 已知类型解析到对应的结构体中；其余字段(包括未知类型的全部字段)保存在Extra里，
// 序列化时原样写回，保证宿主工具新增的part类型不会在分享中丢失。
type Part struct {
	ID        string
	MessageID string
	SessionID string
	Type      PartType

	Text      *TextPart
	Tool      *ToolPart
	File      *FilePart
	Reasoning *ReasoningPart

	Extra map[string]json.RawMessage
}

type PartTime struct {
	Start int64 `json:"start"`
	End   int64 `json:"end,omitempty"`
}

type TextPart struct {
	Text      string    `json:"text"`
	Synthetic bool      `json:"synthetic,omitempty"`
	Time      *PartTime `json:"time,omitempty"`
}

type ReasoningPart struct {
	Text string    `json:"text"`
	Time *PartTime `json:"time,omitempty"`
}

type FilePart struct {
	Mime     string          `json:"mime"`
	Filename string          `json:"filename,omitempty"`
	URL      string          `json:"url"`
	Source   json.RawMessage `json:"source,omitempty"`
}

type ToolStatus string

const (
	ToolPending   ToolStatus = "pending"
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
	ToolError     ToolStatus = "error"
)

type ToolPart struct {
	CallID string    `json:"callID"`
	Tool   string    `json:"tool"`
	State  ToolState `json:"state"`
}

type ToolState struct {
	Status   ToolStatus      `json:"status"`
	Input    json.RawMessage `json:"input,omitempty"`
	Output   string          `json:"output,omitempty"`
	Title    string          `json:"title,omitempty"`
	Error    string          `json:"error,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	Time     *PartTime       `json:"time,omitempty"`

	// attachments等其他字段
	Extra map[string]json.RawMessage `json:"-"`
}

type toolStateFields ToolState

func (s *ToolState) UnmarshalJSON(data []byte) error {
	var fields toolStateFields
	extra, err := decodeWithExtra(data, &fields)
	if err != nil {
		return err
	}
	fields.Extra = extra
	*s = ToolState(fields)
	return nil
}

func (s ToolState) MarshalJSON() ([]byte, error) {
	return encodeWithExtra(toolStateFields(s), s.Extra)
}

var commonPartKeys = []string{"id", "messageID", "sessionID", "type"}

// 每种已知类型自己负责的字段
var ownedPartKeys = map[PartType][]string{
	PartText:      {"text", "synthetic", "time"},
	PartReasoning: {"text", "time"},
	PartFile:      {"mime", "filename", "url", "source"},
	PartTool:      {"callID", "tool", "state"},
}

func NewTextPart(id, messageID, sessionID, text string) Part {
	return Part{
		ID:        id,
		MessageID: messageID,
		SessionID: sessionID,
		Type:      PartText,
		Text:      &TextPart{Text: text},
	}
}

// IsKnown 表示该part是否属于强类型的几种
func (p *Part) IsKnown() bool {
	_, ok := ownedPartKeys[p.Type]
	return ok
}

func (p *Part) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode part: %w", err)
	}

	*p = Part{}
	targets := map[string]*string{
		"id":        &p.ID,
		"messageID": &p.MessageID,
		"sessionID": &p.SessionID,
		"type":      (*string)(&p.Type),
	}
	for key, target := range targets {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, target); err != nil {
			return fmt.Errorf("decode part field %q: %w", key, err)
		}
	}
	if p.Type == "" {
		return fmt.Errorf("decode part %q: missing type", p.ID)
	}

	var variant any
	switch p.Type {
	case PartText:
		p.Text = &TextPart{}
		variant = p.Text
	case PartReasoning:
		p.Reasoning = &ReasoningPart{}
		variant = p.Reasoning
	case PartFile:
		p.File = &FilePart{}
		variant = p.File
	case PartTool:
		p.Tool = &ToolPart{}
		variant = p.Tool
	}
	if variant != nil {
		if err := json.Unmarshal(data, variant); err != nil {
			return fmt.Errorf("decode %s part %q: %w", p.Type, p.ID, err)
		}
	}

	for _, key := range commonPartKeys {
		delete(fields, key)
	}
	for _, key := range ownedPartKeys[p.Type] {
		delete(fields, key)
	}
	if len(fields) > 0 {
		p.Extra = fields
	}
	return nil
}

func (p Part) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(p.Extra)+8)
	for key, value := range p.Extra {
		out[key] = value
	}

	var variant any
	switch {
	case p.Type == PartText && p.Text != nil:
		variant = p.Text
	case p.Type == PartReasoning && p.Reasoning != nil:
		variant = p.Reasoning
	case p.Type == PartFile && p.File != nil:
		variant = p.File
	case p.Type == PartTool && p.Tool != nil:
		variant = p.Tool
	}
	if variant != nil {
		encoded, err := json.Marshal(variant)
		if err != nil {
			return nil, err
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(encoded, &fields); err != nil {
			return nil, err
		}
		for key, value := range fields {
			out[key] = value
		}
	}

	common := map[string]string{
		"id":        p.ID,
		"messageID": p.MessageID,
		"sessionID": p.SessionID,
		"type":      string(p.Type),
	}
	for key, value := range common {
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		out[key] = encoded
	}

	return json.Marshal(out)
}
