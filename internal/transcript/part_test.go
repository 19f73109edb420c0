package transcript

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartUnmarshalKnownTypes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, p Part)
	}{
		{
			name:  "Text part",
			input: `{"id":"prt_1","messageID":"msg_1","sessionID":"ses_1","type":"text","text":"hello","time":{"start":10,"end":20}}`,
			check: func(t *testing.T, p Part) {
				require.NotNil(t, p.Text)
				assert.Equal(t, "hello", p.Text.Text)
				assert.Equal(t, int64(20), p.Text.Time.End)
				assert.Nil(t, p.Extra)
			},
		},
		{
			name:  "Tool part",
			input: `{"id":"prt_2","messageID":"msg_1","sessionID":"ses_1","type":"tool","callID":"call_1","tool":"bash","state":{"status":"completed","input":{"command":"ls"},"output":"a\nb","title":"ls"}}`,
			check: func(t *testing.T, p Part) {
				require.NotNil(t, p.Tool)
				assert.Equal(t, "bash", p.Tool.Tool)
				assert.Equal(t, ToolCompleted, p.Tool.State.Status)
				assert.JSONEq(t, `{"command":"ls"}`, string(p.Tool.State.Input))
			},
		},
		{
			name:  "File part",
			input: `{"id":"prt_3","messageID":"msg_1","sessionID":"ses_1","type":"file","mime":"text/plain","filename":"a.txt","url":"file:///tmp/a.txt"}`,
			check: func(t *testing.T, p Part) {
				require.NotNil(t, p.File)
				assert.Equal(t, "a.txt", p.File.Filename)
			},
		},
		{
			name:  "Reasoning part",
			input: `{"id":"prt_4","messageID":"msg_1","sessionID":"ses_1","type":"reasoning","text":"thinking"}`,
			check: func(t *testing.T, p Part) {
				require.NotNil(t, p.Reasoning)
				assert.Equal(t, "thinking", p.Reasoning.Text)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Part
			require.NoError(t, json.Unmarshal([]byte(tt.input), &p))
			assert.True(t, p.IsKnown())
			tt.check(t, p)
		})
	}
}

func TestPartPreservesUnknownTypeAndFields(t *testing.T) {
	input := `{"id":"prt_5","messageID":"msg_1","sessionID":"ses_1","type":"step-finish","cost":0.01,"tokens":{"input":5,"output":7}}`

	var p Part
	require.NoError(t, json.Unmarshal([]byte(input), &p))
	assert.False(t, p.IsKnown())
	assert.Equal(t, PartType("step-finish"), p.Type)
	assert.Contains(t, p.Extra, "cost")
	assert.Contains(t, p.Extra, "tokens")

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, input, string(out))
}

func TestPartKeepsExtraFieldsOnKnownType(t *testing.T) {
	input := `{"id":"prt_6","messageID":"msg_1","sessionID":"ses_1","type":"text","text":"hi","synthetic":false,"metadata":{"x":1}}`

	var p Part
	require.NoError(t, json.Unmarshal([]byte(input), &p))
	assert.Contains(t, p.Extra, "metadata")

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"prt_6","messageID":"msg_1","sessionID":"ses_1","type":"text","text":"hi","metadata":{"x":1}}`, string(out))
}

func TestPartMissingType(t *testing.T) {
	var p Part
	err := json.Unmarshal([]byte(`{"id":"prt_7"}`), &p)
	assert.Error(t, err)
}

func TestNewDocumentUsesEmptyMessageSlice(t *testing.T) {
	snapshot := &Snapshot{Session: Session{ID: "ses_1", Title: "Demo"}}
	doc := NewDocument("abc12345", snapshot, 1, 2)

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"messages":[]`)
	assert.Equal(t, "ses_1", doc.SessionID)
}
