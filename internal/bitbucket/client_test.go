package bitbucket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket-mcp/internal/config"
)

func newTestClient(t *testing.T, h http.HandlerFunc, e config.Env) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	e.BaseURL = srv.URL
	cfg, err := config.New(e)
	require.NoError(t, err)
	return New(cfg)
}

func TestDo_BearerTokenAndQuery(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "/rest/api/1.0/projects", r.URL.Path)
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		assert.Equal(t, "0", r.URL.Query().Get("start"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"values":[]}`)
	}, config.Env{Token: "secret"})

	resp, err := c.Do(context.Background(), Request{
		Method: http.MethodGet,
		Path:   "/projects",
		Query:  map[string]string{"limit": "25", "start": "0"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"values":[]}`, string(resp.Body))
}

func TestDo_BasicAuthAndJSONBody(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "jdoe", user)
		assert.Equal(t, "pw", pass)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["text"])
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":7}`)
	}, config.Env{Username: "jdoe", Password: "pw"})

	resp, err := c.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/projects/P/repos/r/pull-requests/1/comments",
		Body:   map[string]any{"text": "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestDo_PlainTextAccept(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/plain", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "diff --git a/x b/x\n")
	}, config.Env{Token: "t"})

	resp, err := c.Do(context.Background(), Request{
		Path:    "/projects/P/repos/r/pull-requests/1/diff",
		Headers: map[string]string{"Accept": "text/plain"},
	})
	require.NoError(t, err)
	assert.Equal(t, "diff --git a/x b/x\n", string(resp.Body))
	assert.Contains(t, resp.ContentType, "text/plain")
}

func TestDo_APIErrorMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"top level message", http.StatusNotFound, `{"message":"Not found"}`, "Not found"},
		{"errors array", http.StatusConflict, `{"errors":[{"message":"Pull request is out of date"}]}`, "Pull request is out of date"},
		{"no body", http.StatusInternalServerError, ``, "request failed with status 500 Internal Server Error"},
		{"html body", http.StatusBadGateway, `<html>bad</html>`, "request failed with status 502 Bad Gateway"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}, config.Env{Token: "t"})

			_, err := c.Do(context.Background(), Request{Path: "/projects"})
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tc.status, apiErr.StatusCode)
			assert.Equal(t, tc.want, apiErr.Message)
		})
	}
}

func TestDo_TransportFailureIsAPIError(t *testing.T) {
	t.Parallel()

	cfg, err := config.New(config.Env{BaseURL: "http://127.0.0.1:1", Token: "t"})
	require.NoError(t, err)

	_, err = New(cfg).Do(context.Background(), Request{Path: "/projects"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Zero(t, apiErr.StatusCode)
	assert.NotEmpty(t, apiErr.Message)
}
