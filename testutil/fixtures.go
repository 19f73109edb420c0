package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// SessionFixture describes one session as the host tool lays it out on disk.
type SessionFixture struct {
	ProjectID string
	Session   map[string]any
	Messages  []MessageFixture
}

type MessageFixture struct {
	Message map[string]any
	// Raw part JSON objects, written one file per part
	Parts []map[string]any
}

// WriteJSON writes v as JSON to path, creating parent directories.
func WriteJSON(t *testing.T, path string, v any) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create fixture directory: %v", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to marshal fixture %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write fixture %s: %v", path, err)
	}
}

// WriteSession writes the session, its messages and their parts under root.
func WriteSession(t *testing.T, root string, fixture SessionFixture) {
	t.Helper()
	sessionID, _ := fixture.Session["id"].(string)
	WriteJSON(t, filepath.Join(root, "session", fixture.ProjectID, sessionID+".json"), fixture.Session)

	for _, m := range fixture.Messages {
		messageID, _ := m.Message["id"].(string)
		WriteJSON(t, filepath.Join(root, "message", sessionID, messageID+".json"), m.Message)
		for _, p := range m.Parts {
			partID, _ := p["id"].(string)
			WriteJSON(t, filepath.Join(root, "part", messageID, partID+".json"), p)
		}
	}
}

// SampleSession returns a small two-message conversation for sessionID.
func SampleSession(projectID, sessionID string) SessionFixture {
	return SessionFixture{
		ProjectID: projectID,
		Session: map[string]any{
			"id":        sessionID,
			"title":     "Fix the flaky test",
			"projectID": projectID,
			"directory": "/home/dev/project",
			"version":   "0.15.0",
			"time":      map[string]any{"created": 1700000000000, "updated": 1700000005000},
			"summary":   map[string]any{"additions": 12, "deletions": 3, "files": 2},
		},
		Messages: []MessageFixture{
			{
				Message: map[string]any{
					"id":        "msg_0001",
					"sessionID": sessionID,
					"role":      "user",
					"time":      map[string]any{"created": 1700000001000},
					"model":     map[string]any{"providerID": "anthropic", "modelID": "claude-sonnet"},
				},
				Parts: []map[string]any{
					{"id": "prt_0001", "messageID": "msg_0001", "sessionID": sessionID, "type": "text", "text": "Why does the test fail?"},
				},
			},
			{
				Message: map[string]any{
					"id":         "msg_0002",
					"sessionID":  sessionID,
					"role":       "assistant",
					"time":       map[string]any{"created": 1700000002000, "completed": 1700000004000},
					"providerID": "anthropic",
					"modelID":    "claude-sonnet",
					"cost":       0.0123,
					"tokens":     map[string]any{"input": 120, "output": 48, "reasoning": 0, "cache": map[string]any{"read": 0, "write": 0}},
				},
				Parts: []map[string]any{
					{"id": "prt_0002", "messageID": "msg_0002", "sessionID": sessionID, "type": "step-start"},
					{"id": "prt_0003", "messageID": "msg_0002", "sessionID": sessionID, "type": "tool", "callID": "call_1", "tool": "bash",
						"state": map[string]any{"status": "completed", "input": map[string]any{"command": "go test ./..."}, "output": "ok"}},
					{"id": "prt_0004", "messageID": "msg_0002", "sessionID": sessionID, "type": "text", "text": "The timer was not stopped."},
				},
			},
		},
	}
}
