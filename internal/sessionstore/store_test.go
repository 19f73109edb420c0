package sessionstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"better-share/internal/transcript"
	"better-share/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	testutil.WriteSession(t, root, testutil.SampleSession("prj_a", "ses_0000000000abcdef"))
	return New(root), root
}

func TestFindProject(t *testing.T) {
	store, root := setupStore(t)
	// An unrelated project directory must not confuse the search
	require.NoError(t, os.MkdirAll(filepath.Join(root, "session", "prj_b"), 0755))

	projectID, err := store.FindProject(context.Background(), "ses_0000000000abcdef")
	require.NoError(t, err)
	assert.Equal(t, "prj_a", projectID)

	_, err = store.FindProject(context.Background(), "ses_missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestFindProjectWithoutStorage(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "nothing-here"))
	_, err := store.FindProject(context.Background(), "ses_1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestReadFullSession(t *testing.T) {
	store, _ := setupStore(t)

	snapshot, err := store.ReadFullSession(context.Background(), "prj_a", "ses_0000000000abcdef")
	require.NoError(t, err)

	assert.Equal(t, "Fix the flaky test", snapshot.Session.Title)
	require.NotNil(t, snapshot.Session.Summary)
	assert.Equal(t, 12, snapshot.Session.Summary.Additions)

	require.Len(t, snapshot.Messages, 2)
	user, assistant := snapshot.Messages[0], snapshot.Messages[1]
	assert.Equal(t, transcript.RoleUser, user.Role)
	require.NotNil(t, user.Model)
	assert.Equal(t, "claude-sonnet", user.Model.ModelID)

	assert.True(t, assistant.IsAssistant())
	require.NotNil(t, assistant.Tokens)
	assert.Equal(t, 48, assistant.Tokens.Output)

	require.Len(t, assistant.Parts, 3)
	assert.Equal(t, transcript.PartType("step-start"), assistant.Parts[0].Type)
	assert.Equal(t, transcript.PartTool, assistant.Parts[1].Type)
	assert.Equal(t, "The timer was not stopped.", assistant.Parts[2].Text.Text)
}

func TestReadFullSessionKeepsHostFields(t *testing.T) {
	root := t.TempDir()
	fixture := testutil.SampleSession("prj_a", "ses_child")
	fixture.Session["parentID"] = "ses_parent"
	assistant := fixture.Messages[1].Message
	assistant["mode"] = "build"
	assistant["path"] = map[string]any{"cwd": "/home/dev/project", "root": "/home/dev/project"}
	assistant["finish"] = "error"
	assistant["error"] = map[string]any{"name": "APIError", "data": map[string]any{"message": "overloaded"}}
	tool := fixture.Messages[1].Parts[1]["state"].(map[string]any)
	tool["attachments"] = []any{map[string]any{"type": "file", "mime": "image/png", "url": "data:image/png;base64,AA=="}}
	testutil.WriteSession(t, root, fixture)

	snapshot, err := New(root).ReadFullSession(context.Background(), "prj_a", "ses_child")
	require.NoError(t, err)
	data, err := json.Marshal(transcript.NewDocument("abc12345", snapshot, 1, 2))
	require.NoError(t, err)

	var doc struct {
		Session  map[string]json.RawMessage   `json:"session"`
		Messages []map[string]json.RawMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.JSONEq(t, `"ses_parent"`, string(doc.Session["parentID"]))

	require.Len(t, doc.Messages, 2)
	for _, key := range []string{"mode", "path", "finish", "error"} {
		assert.Contains(t, doc.Messages[1], key)
	}
	assert.JSONEq(t, `{"name":"APIError","data":{"message":"overloaded"}}`, string(doc.Messages[1]["error"]))

	var parts []struct {
		State map[string]json.RawMessage `json:"state"`
	}
	require.NoError(t, json.Unmarshal(doc.Messages[1]["parts"], &parts))
	require.Len(t, parts, 3)
	assert.Contains(t, parts[1].State, "attachments")
}

func TestReadMessagesSortedByCreation(t *testing.T) {
	root := t.TempDir()
	for _, m := range []struct {
		id      string
		created int64
	}{{"msg_c", 300}, {"msg_a", 100}, {"msg_b", 200}} {
		testutil.WriteJSON(t, filepath.Join(root, "message", "ses_1", m.id+".json"), map[string]any{
			"id": m.id, "sessionID": "ses_1", "role": "user", "time": map[string]any{"created": m.created},
		})
	}
	// Non-JSON files are ignored
	require.NoError(t, os.WriteFile(filepath.Join(root, "message", "ses_1", "notes.txt"), []byte("x"), 0644))

	messages, err := New(root).ReadMessages("ses_1")
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, []string{"msg_a", "msg_b", "msg_c"}, []string{messages[0].ID, messages[1].ID, messages[2].ID})
}

func TestReadFullSessionMalformedPart(t *testing.T) {
	store, root := setupStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "part", "msg_0002", "prt_9999.json"), []byte("{not json"), 0644))

	_, err := store.ReadFullSession(context.Background(), "prj_a", "ses_0000000000abcdef")
	assert.Error(t, err)
}

func TestReadFullSessionMissingSession(t *testing.T) {
	store, _ := setupStore(t)
	_, err := store.ReadFullSession(context.Background(), "prj_a", "ses_gone")
	assert.Error(t, err)
}

func TestListSessions(t *testing.T) {
	store, root := setupStore(t)
	newer := testutil.SampleSession("prj_b", "ses_newer")
	newer.Session["time"] = map[string]any{"created": 1800000000000, "updated": 1800000000000}
	testutil.WriteSession(t, root, newer)

	refs, err := store.ListSessions()
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "ses_newer", refs[0].Session.ID)
	assert.Equal(t, "prj_a", refs[1].ProjectID)
}
