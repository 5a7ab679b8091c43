package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	req, err := NewRequest("req-1", MethodListTools, nil)
	require.NoError(t, err)
	assert.Equal(t, JSONRPCVersion, req.JSONRPC)
	assert.Equal(t, "req-1", req.ID)
	assert.Empty(t, req.Params)

	req, err = NewRequest("req-2", MethodCallTool, CallToolParams{Name: "status", Arguments: json.RawMessage(`{"short":true}`)})
	require.NoError(t, err)

	var params CallToolParams
	require.NoError(t, json.Unmarshal(req.Params, &params))
	assert.Equal(t, "status", params.Name)
	assert.JSONEq(t, `{"short":true}`, string(params.Arguments))

	_, err = NewRequest("req-3", "x", make(chan int))
	assert.Error(t, err)
}

func TestEncodeIsOneLine(t *testing.T) {
	req, err := NewRequest("a\nb", MethodPing, map[string]string{"text": "line1\nline2"})
	require.NoError(t, err)

	line, err := Encode(req)
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), line[len(line)-1])
	assert.Equal(t, 1, countNewlines(line), "embedded newlines must be escaped")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(line, &decoded))
	assert.Equal(t, "2.0", decoded["jsonrpc"])
	assert.Equal(t, MethodPing, decoded["method"])
}

func countNewlines(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}

func TestDecodeClassification(t *testing.T) {
	tests := []struct {
		name string
		line string
		kind InboundKind
	}{
		{"success response", `{"jsonrpc":"2.0","id":"1","result":{"ok":true}}`, KindResponse},
		{"null result", `{"jsonrpc":"2.0","id":7,"result":null}`, KindResponse},
		{"error response", `{"jsonrpc":"2.0","id":"1","error":{"code":-32601,"message":"nope"}}`, KindResponse},
		{"null id error", `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"parse"}}`, KindResponse},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/tools/list_changed"}`, KindNotification},
		{"server request", `{"jsonrpc":"2.0","id":3,"method":"roots/list"}`, KindRequest},
		{"trailing newline", "{\"jsonrpc\":\"2.0\",\"method\":\"x\"}\r\n", KindNotification},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := Decode([]byte(tt.line))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, in.Kind)
			switch tt.kind {
			case KindResponse:
				assert.NotNil(t, in.Response)
				assert.Nil(t, in.Notification)
			case KindNotification:
				assert.NotNil(t, in.Notification)
				assert.Nil(t, in.Response)
			case KindRequest:
				assert.NotNil(t, in.Request)
			}
		})
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		invalid bool
	}{
		{"not json", `this is not json`, false},
		{"truncated", `{"jsonrpc":"2.0","id":"1"`, false},
		{"empty", ``, true},
		{"wrong version", `{"jsonrpc":"1.0","id":"1","result":1}`, true},
		{"no id no method", `{"jsonrpc":"2.0","result":1}`, true},
		{"both result and error", `{"jsonrpc":"2.0","id":"1","result":1,"error":{"code":1,"message":"x"}}`, true},
		{"neither result nor error", `{"jsonrpc":"2.0","id":"1"}`, true},
		{"object id", `{"jsonrpc":"2.0","id":{"a":1},"result":1}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := Decode([]byte(tt.line))
			assert.Error(t, err)
			assert.Nil(t, in)
			if tt.invalid {
				assert.True(t, errors.Is(err, ErrInvalidMessage))
			}
		})
	}
}

func TestRoundTripPreservesIDAndDiscriminant(t *testing.T) {
	req, err := NewRequest("6f1c9a2e-id", MethodCallTool, CallToolParams{Name: "status"})
	require.NoError(t, err)
	_, err = Encode(req)
	require.NoError(t, err)

	success, err := NewResponse(req.ID, CallToolResult{Content: []Content{{Type: "text", Text: "clean"}}})
	require.NoError(t, err)
	successLine, err := Encode(success)
	require.NoError(t, err)

	in, err := Decode(successLine)
	require.NoError(t, err)
	require.Equal(t, KindResponse, in.Kind)
	assert.Equal(t, IDKey(req.ID), IDKey(in.Response.ID))
	assert.Nil(t, in.Response.Error)
	assert.NotEmpty(t, in.Response.Result)

	failure, err := NewErrorResponse(req.ID, InvalidParams, "bad", map[string]string{"field": "name"})
	require.NoError(t, err)
	failureLine, err := Encode(failure)
	require.NoError(t, err)

	in, err = Decode(failureLine)
	require.NoError(t, err)
	assert.Equal(t, IDKey(req.ID), IDKey(in.Response.ID))
	require.NotNil(t, in.Response.Error)
	assert.Empty(t, in.Response.Result)
	assert.Equal(t, InvalidParams, in.Response.Error.Code)
	assert.JSONEq(t, `{"field":"name"}`, string(in.Response.Error.Data))
}

func TestIDKey(t *testing.T) {
	assert.Equal(t, "abc", IDKey("abc"))
	assert.Equal(t, "42", IDKey(float64(42)))
	assert.Equal(t, "42", IDKey(42))
	assert.Equal(t, "42", IDKey(int64(42)))
	assert.Equal(t, "", IDKey(nil))

	in, err := Decode([]byte(`{"jsonrpc":"2.0","id":42,"result":{}}`))
	require.NoError(t, err)
	assert.Equal(t, IDKey(42), IDKey(in.Response.ID))
}

func TestErrorObjectError(t *testing.T) {
	e := &ErrorObject{Code: MethodNotFound, Message: "missing"}
	assert.Equal(t, "rpc error: code = -32601 desc = missing", e.Error())
}

func TestParseServerCapabilities(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		tools     bool
		resources bool
		prompts   bool
	}{
		{"empty", ``, false, false, false},
		{"none", `{}`, false, false, false},
		{"tools only", `{"tools":{}}`, true, false, false},
		{"all", `{"tools":{"listChanged":true},"resources":{"subscribe":true},"prompts":{}}`, true, true, true},
		{"malformed tools section", `{"tools":"yes","resources":{}}`, false, true, false},
		{"wrong field type", `{"tools":{"listChanged":"maybe"}}`, false, false, false},
		{"null section", `{"tools":null}`, false, false, false},
		{"not an object", `[1,2]`, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps := ParseServerCapabilities(json.RawMessage(tt.raw))
			assert.Equal(t, tt.tools, caps.SupportsTools())
			assert.Equal(t, tt.resources, caps.SupportsResources())
			assert.Equal(t, tt.prompts, caps.SupportsPrompts())
		})
	}

	caps := ParseServerCapabilities(json.RawMessage(`{"tools":{"listChanged":true}}`))
	require.NotNil(t, caps.Tools)
	assert.True(t, caps.Tools.ListChanged)
}

func TestCallToolResultText(t *testing.T) {
	r := &CallToolResult{Content: []Content{
		{Type: "text", Text: "one"},
		{Type: "image", Data: "aGk=", MimeType: "image/png"},
		{Type: "text", Text: "two"},
	}}
	assert.Equal(t, "one\ntwo", r.Text())
}

func TestFindTool(t *testing.T) {
	tools := []Tool{{Name: "status"}, {Name: "diff"}}
	got, ok := FindTool(tools, "diff")
	assert.True(t, ok)
	assert.Equal(t, "diff", got.Name)

	_, ok = FindTool(tools, "log")
	assert.False(t, ok)
}

func TestDefaultClientCapabilitiesWireShape(t *testing.T) {
	params := InitializeParams{
		ProtocolVersion: ProtocolRevision,
		Capabilities:    DefaultClientCapabilities(),
		ClientInfo:      Implementation{Name: "mcp-fleet", Version: "1.0.0"},
	}
	data, err := json.Marshal(params)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"protocolVersion": "2025-06-18",
		"capabilities": {"roots": {"listChanged": true}, "sampling": {}},
		"clientInfo": {"name": "mcp-fleet", "version": "1.0.0"}
	}`, string(data))
}
