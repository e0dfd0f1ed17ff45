package mcp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghyeongl/freeze/engine"
)

func setupManager(t *testing.T) *engine.Manager {
	t.Helper()
	stateDir := t.TempDir()
	db, err := engine.OpenDB(filepath.Join(stateDir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cas, err := engine.NewCAS(filepath.Join(stateDir, "storage"))
	require.NoError(t, err)
	return engine.NewManager(engine.NewStore(db), cas)
}

// runSession feeds newline-delimited requests through a server and returns
// one decoded response per non-notification request.
func runSession(t *testing.T, mgr *engine.Manager, requests ...string) []map[string]any {
	t.Helper()
	in := strings.NewReader(strings.Join(requests, "\n") + "\n")
	var out bytes.Buffer

	srv := NewServer(mgr, in, &out, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, srv.Run())

	var responses []map[string]any
	scanner := bufio.NewScanner(&out)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var resp map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		responses = append(responses, resp)
	}
	return responses
}

func callReq(id int, tool string, args map[string]any) string {
	params := map[string]any{"name": tool, "arguments": args}
	req := map[string]any{"jsonrpc": "2.0", "id": id, "method": "tools/call", "params": params}
	data, _ := json.Marshal(req)
	return string(data)
}

// toolText extracts the first text content block of a tools/call response.
func toolText(t *testing.T, resp map[string]any) (string, bool) {
	t.Helper()
	result, ok := resp["result"].(map[string]any)
	require.True(t, ok, "response has no result: %v", resp)
	content := result["content"].([]any)
	require.NotEmpty(t, content)
	text := content[0].(map[string]any)["text"].(string)
	isError, _ := result["isError"].(bool)
	return text, isError
}

func TestServer_Initialize(t *testing.T) {
	responses := runSession(t, setupManager(t),
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
	)

	require.Len(t, responses, 1) // the notification gets no reply
	result := responses[0]["result"].(map[string]any)
	assert.Equal(t, protocolVersion, result["protocolVersion"])
	info := result["serverInfo"].(map[string]any)
	assert.Equal(t, "freeze", info["name"])
}

func TestServer_ToolsList(t *testing.T) {
	responses := runSession(t, setupManager(t),
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
	)

	require.Len(t, responses, 1)
	tools := responses[0]["result"].(map[string]any)["tools"].([]any)
	require.Len(t, tools, 14)

	names := make(map[string]bool)
	for _, tool := range tools {
		names[tool.(map[string]any)["name"].(string)] = true
	}
	for _, want := range []string{
		"freeze_save", "freeze_restore", "freeze_list", "freeze_search",
		"freeze_check", "freeze_view", "freeze_export", "freeze_clear",
		"freeze_compare", "freeze_exclusion_add",
	} {
		assert.True(t, names[want], want)
	}
}

func TestServer_MethodNotFound(t *testing.T) {
	responses := runSession(t, setupManager(t),
		`{"jsonrpc":"2.0","id":1,"method":"no/such/method"}`,
	)

	require.Len(t, responses, 1)
	rpcErr := responses[0]["error"].(map[string]any)
	assert.Equal(t, float64(codeMethodNotFound), rpcErr["code"])
}

func TestServer_ParseError(t *testing.T) {
	responses := runSession(t, setupManager(t), `{not json`)

	require.Len(t, responses, 1)
	rpcErr := responses[0]["error"].(map[string]any)
	assert.Equal(t, float64(codeParseError), rpcErr["code"])
}

func TestServer_SaveAndRestoreTools(t *testing.T) {
	mgr := setupManager(t)
	root := t.TempDir()
	path := filepath.Join(root, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0644))

	responses := runSession(t, mgr,
		callReq(1, "freeze_save", map[string]any{"path": root}),
	)
	require.Len(t, responses, 1)
	text, isError := toolText(t, responses[0])
	assert.False(t, isError)
	assert.Contains(t, text, "saved snapshot")

	require.NoError(t, os.WriteFile(path, []byte("clobbered"), 0644))

	responses = runSession(t, mgr,
		callReq(2, "freeze_restore", map[string]any{"path": root}),
	)
	text, isError = toolText(t, responses[0])
	assert.False(t, isError)
	assert.Contains(t, text, "restored 1 file(s)")

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))
}

func TestServer_ToolErrorIsResultNotRPCError(t *testing.T) {
	responses := runSession(t, setupManager(t),
		callReq(1, "freeze_save", map[string]any{"path": filepath.Join(t.TempDir(), "nope")}),
	)

	require.Len(t, responses, 1)
	assert.Nil(t, responses[0]["error"])
	_, isError := toolText(t, responses[0])
	assert.True(t, isError)
}

func TestServer_UnknownTool(t *testing.T) {
	responses := runSession(t, setupManager(t),
		callReq(1, "freeze_frobnicate", nil),
	)

	require.Len(t, responses, 1)
	rpcErr := responses[0]["error"].(map[string]any)
	assert.Equal(t, float64(codeInvalidParams), rpcErr["code"])
}

func TestServer_ListAndClearTools(t *testing.T) {
	mgr := setupManager(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.txt"), []byte("x"), 0644))

	responses := runSession(t, mgr,
		callReq(1, "freeze_save", map[string]any{"path": root}),
		callReq(2, "freeze_list", nil),
		callReq(3, "freeze_clear", map[string]any{"all": true}),
		callReq(4, "freeze_list", nil),
	)
	require.Len(t, responses, 4)

	listText, _ := toolText(t, responses[1])
	assert.Contains(t, listText, root)

	clearText, _ := toolText(t, responses[2])
	assert.Contains(t, clearText, "cleared 1 snapshot(s)")

	emptyText, _ := toolText(t, responses[3])
	assert.Equal(t, "null", strings.TrimSpace(emptyText))
}

func TestServer_CompareTool(t *testing.T) {
	mgr := setupManager(t)
	root := t.TempDir()
	path := filepath.Join(root, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\n"), 0644))

	responses := runSession(t, mgr,
		callReq(1, "freeze_save", map[string]any{"path": path}),
	)
	_, isError := toolText(t, responses[0])
	require.False(t, isError)

	sum := engine.DigestBytes([]byte("a\nb\n"))
	require.NoError(t, os.WriteFile(path, []byte("a\nB\n"), 0644))

	responses = runSession(t, mgr,
		callReq(2, "freeze_compare", map[string]any{
			"source": sum[:12], "target": "current", "path": path,
		}),
	)
	text, isError := toolText(t, responses[0])
	assert.False(t, isError)
	assert.Contains(t, text, "- b")
	assert.Contains(t, text, "+ B")
}

func TestServer_ExclusionTools(t *testing.T) {
	responses := runSession(t, setupManager(t),
		callReq(1, "freeze_exclusion_add", map[string]any{"pattern": "*.log"}),
		callReq(2, "freeze_exclusion_list", nil),
		callReq(3, "freeze_exclusion_remove", map[string]any{"pattern": "*.log"}),
		callReq(4, "freeze_exclusion_remove", map[string]any{"pattern": "*.log"}),
	)
	require.Len(t, responses, 4)

	addText, isError := toolText(t, responses[0])
	assert.False(t, isError)
	assert.Contains(t, addText, "*.log")

	listText, _ := toolText(t, responses[1])
	assert.Contains(t, listText, "glob")

	_, isError = toolText(t, responses[2])
	assert.False(t, isError)

	// Second removal fails: the rule is gone.
	_, isError = toolText(t, responses[3])
	assert.True(t, isError)
}
