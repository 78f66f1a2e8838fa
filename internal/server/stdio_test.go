package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket-mcp/internal/tools"
)

// roundTrip feeds request lines to a fresh stdio server and returns the
// decoded responses.
func roundTrip(t *testing.T, d Dispatcher, lines ...string) []Response {
	t.Helper()

	var out bytes.Buffer
	srv := NewStdio(d, strings.NewReader(strings.Join(lines, "\n")+"\n"), &out, nil)
	require.NoError(t, srv.Serve(context.Background()))

	var resps []Response
	dec := json.NewDecoder(&out)
	for dec.More() {
		var r Response
		require.NoError(t, dec.Decode(&r))
		resps = append(resps, r)
	}
	return resps
}

func TestStdio_Initialize(t *testing.T) {
	t.Parallel()

	resps := roundTrip(t, &stubDispatcher{},
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
	)
	require.Len(t, resps, 1)
	require.Nil(t, resps[0].Error)

	raw, err := json.Marshal(resps[0].Result)
	require.NoError(t, err)
	var result initializeResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, ProtocolVersion, result.ProtocolVersion)
	assert.Equal(t, ServerName, result.ServerInfo.Name)
	assert.Contains(t, result.Capabilities, "tools")
}

func TestStdio_ToolsListIsStable(t *testing.T) {
	t.Parallel()

	resps := roundTrip(t, &stubDispatcher{},
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
	)
	require.Len(t, resps, 2)
	first, err := json.Marshal(resps[0].Result)
	require.NoError(t, err)
	second, err := json.Marshal(resps[1].Result)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Contains(t, string(first), tools.ToolAddComment)
}

func TestStdio_ToolsCall(t *testing.T) {
	t.Parallel()

	d := &stubDispatcher{text: `{"id":1}`}
	resps := roundTrip(t, d,
		`{"jsonrpc":"2.0","id":"a","method":"tools/call","params":{"name":"get_pull_request","arguments":{"repository":"r","prId":1}}}`,
	)
	require.Len(t, resps, 1)
	require.Nil(t, resps[0].Error)
	assert.Equal(t, "a", resps[0].ID)

	raw, err := json.Marshal(resps[0].Result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":[{"type":"text","text":"{\"id\":1}"}]}`, string(raw))
	assert.Equal(t, float64(1), d.args["prId"])
}

func TestStdio_Errors(t *testing.T) {
	t.Parallel()

	d := &stubDispatcher{err: &tools.Error{Kind: tools.MethodNotFound, Message: "Unknown tool: bogus_tool"}}
	resps := roundTrip(t, d,
		`not json`,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"bogus_tool","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"resources/list"}`,
		`{"jsonrpc":"2.0","method":"notifications/cancelled"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call"}`,
	)
	require.Len(t, resps, 4)

	assert.Equal(t, codeParse, resps[0].Error.Code)
	assert.Nil(t, resps[0].ID)

	assert.Equal(t, tools.CodeMethodNotFound, resps[1].Error.Code)
	assert.Equal(t, "Unknown tool: bogus_tool", resps[1].Error.Message)

	assert.Equal(t, tools.CodeMethodNotFound, resps[2].Error.Code)
	assert.Equal(t, tools.CodeInvalidParams, resps[3].Error.Code)
}

func TestStdio_StopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	srv := NewStdio(&stubDispatcher{}, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n"), &out, nil)
	assert.ErrorIs(t, srv.Serve(ctx), context.Canceled)
	assert.Zero(t, out.Len())
}

func TestStdio_StopsWhileWaitingForInput(t *testing.T) {
	t.Parallel()

	in, w := io.Pipe()
	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	srv := NewStdio(&stubDispatcher{}, in, &out, nil)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestStdio_NotificationsGetNoResponse(t *testing.T) {
	t.Parallel()

	d := &stubDispatcher{text: "ok"}
	resps := roundTrip(t, d,
		`{"jsonrpc":"2.0","method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"ping"}`,
		`{"jsonrpc":"2.0","method":"tools/list"}`,
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"get_pull_request","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":9,"method":"ping"}`,
	)
	require.Len(t, resps, 1)
	assert.Equal(t, float64(9), resps[0].ID)
	assert.Empty(t, d.name)
}
