package transcript

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtraFieldsRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		decode func(data []byte) (any, map[string]json.RawMessage, error)
	}{
		{
			name:  "Assistant message with error",
			input: `{"id":"msg_1","sessionID":"ses_1","role":"assistant","time":{"created":1},"modelID":"m","providerID":"p","mode":"build","path":{"cwd":"/w","root":"/w"},"finish":"error","error":{"name":"APIError","data":{"message":"overloaded"}},"parts":[]}`,
			decode: func(data []byte) (any, map[string]json.RawMessage, error) {
				var m Message
				err := json.Unmarshal(data, &m)
				return m, m.Extra, err
			},
		},
		{
			name:  "Session with parent and share",
			input: `{"id":"ses_2","title":"child","projectID":"prj","directory":"/w","version":"1","time":{"created":1,"updated":2},"parentID":"ses_1","share":{"url":"https://opncd.ai/share/x"}}`,
			decode: func(data []byte) (any, map[string]json.RawMessage, error) {
				var s Session
				err := json.Unmarshal(data, &s)
				return s, s.Extra, err
			},
		},
		{
			name:  "Tool state with attachments",
			input: `{"status":"completed","input":{"path":"a.png"},"output":"ok","attachments":[{"type":"file","mime":"image/png","url":"data:x"}]}`,
			decode: func(data []byte) (any, map[string]json.RawMessage, error) {
				var s ToolState
				err := json.Unmarshal(data, &s)
				return s, s.Extra, err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, extra, err := tt.decode([]byte(tt.input))
			require.NoError(t, err)
			assert.NotEmpty(t, extra)

			out, err := json.Marshal(value)
			require.NoError(t, err)
			assert.JSONEq(t, tt.input, string(out))
		})
	}
}

func TestMessageKnownFieldsStayTyped(t *testing.T) {
	var m Message
	require.NoError(t, json.Unmarshal([]byte(`{"id":"msg_1","sessionID":"ses_1","role":"assistant","time":{"created":5},"cost":0.5,"finish":"stop"}`), &m))

	assert.True(t, m.IsAssistant())
	assert.Equal(t, 0.5, m.Cost)
	assert.Equal(t, int64(5), m.Time.Created)
	assert.Equal(t, []string{"finish"}, keys(m.Extra))
}

func TestExtraDoesNotOverrideTypedFields(t *testing.T) {
	s := Session{ID: "ses_1", Title: "typed", Extra: map[string]json.RawMessage{"title": json.RawMessage(`"stale"`)}}

	out, err := json.Marshal(s)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "typed", decoded["title"])
}

func TestToolPartKeepsStateExtra(t *testing.T) {
	input := `{"id":"prt_1","messageID":"msg_1","sessionID":"ses_1","type":"tool","callID":"c","tool":"read","state":{"status":"error","input":{},"error":"boom","attachments":[]}}`

	var p Part
	require.NoError(t, json.Unmarshal([]byte(input), &p))
	require.NotNil(t, p.Tool)
	assert.Contains(t, p.Tool.State.Extra, "attachments")

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, input, string(out))
}

func keys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
