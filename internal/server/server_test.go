package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket-mcp/internal/bitbucket"
	"bitbucket-mcp/internal/config"
	"bitbucket-mcp/internal/tools"
)

// stubDispatcher answers every call with text, or with err when set.
type stubDispatcher struct {
	text string
	err  error
	name string
	args map[string]any
}

func (s *stubDispatcher) ListTools() []tools.Descriptor { return tools.ListTools() }

func (s *stubDispatcher) Dispatch(_ context.Context, name string, args map[string]any) (string, error) {
	s.name, s.args = name, args
	return s.text, s.err
}

func doCall(t *testing.T, h http.Handler, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/mcp/call", bytes.NewReader(raw))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	s := New(Config{}, &stubDispatcher{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestToolsAndCall(t *testing.T) {
	d := &stubDispatcher{text: "hello"}
	s := New(Config{Token: "x"}, d, nil)

	// Unauthorized
	req := httptest.NewRequest(http.MethodGet, "/mcp/tools", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// Authorized tools
	req = httptest.NewRequest(http.MethodGet, "/mcp/tools", nil)
	req.Header.Set("Authorization", "Bearer x")
	rr = httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var list ToolsList
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&list))
	assert.Len(t, list.Tools, len(tools.ListTools()))

	// Call
	rr = doCall(t, s.Router(), "x", map[string]any{
		"name":      tools.ToolGetPullRequest,
		"arguments": map[string]any{"repository": "r", "prId": 1},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"content":[{"type":"text","text":"hello"}]}`, rr.Body.String())
	assert.Equal(t, tools.ToolGetPullRequest, d.name)
	assert.Equal(t, "r", d.args["repository"])
}

func TestCall_ErrorStatuses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind   tools.Kind
		status int
		code   int
	}{
		{tools.InvalidParams, http.StatusBadRequest, -32602},
		{tools.MethodNotFound, http.StatusNotFound, -32601},
		{tools.UpstreamError, http.StatusBadGateway, -32603},
		{tools.InternalError, http.StatusInternalServerError, -32603},
	}
	for _, tc := range tests {
		t.Run(tc.kind.String(), func(t *testing.T) {
			t.Parallel()
			s := New(Config{}, &stubDispatcher{err: &tools.Error{Kind: tc.kind, Message: "nope"}}, nil)
			rr := doCall(t, s.Router(), "", map[string]any{"name": "anything"})
			assert.Equal(t, tc.status, rr.Code)

			var body struct {
				Error ErrorBody `json:"error"`
			}
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.Equal(t, ErrorBody{Code: tc.code, Kind: tc.kind.String(), Message: "nope"}, body.Error)
		})
	}
}

func TestCall_InvalidJSON(t *testing.T) {
	t.Parallel()

	s := New(Config{}, &stubDispatcher{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/mcp/call", bytes.NewReader([]byte("{")))
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// TestCall_EndToEnd drives the real dispatcher and Bitbucket client against a
// fake Bitbucket server.
func TestCall_EndToEnd(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/api/1.0/projects/DEF/repos/repo/pull-requests/7/activities":
			_, _ = io.WriteString(w, `{"values":[{"action":"APPROVED"},{"action":"COMMENTED"},{"action":"REVIEWED"}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"message":"Not found"}`)
		}
	}))
	t.Cleanup(upstream.Close)

	cfg, err := config.New(config.Env{BaseURL: upstream.URL, Token: "t", DefaultProject: "DEF"})
	require.NoError(t, err)
	d := tools.NewDispatcher(cfg, bitbucket.New(cfg), nil)
	s := New(Config{}, d, nil)

	rr := doCall(t, s.Router(), "", map[string]any{
		"name":      tools.ToolGetReviews,
		"arguments": map[string]any{"repository": "repo", "prId": 7},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	var res CallResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	require.Len(t, res.Content, 1)
	assert.JSONEq(t, `[{"action":"APPROVED"},{"action":"REVIEWED"}]`, res.Content[0].Text)

	rr = doCall(t, s.Router(), "", map[string]any{
		"name":      tools.ToolGetPullRequest,
		"arguments": map[string]any{"repository": "repo", "prId": 404},
	})
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), "Bitbucket API error: Not found")
}
