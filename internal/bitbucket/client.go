// Package bitbucket provides a minimal client for the Bitbucket Server REST API.
package bitbucket

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"bitbucket-mcp/internal/config"
)

// apiPath is appended to the configured server URL.
const apiPath = "/rest/api/1.0"

// Client is a thin HTTP client for the Bitbucket Server REST API.
// It performs exactly one request per call and never retries.
type Client struct {
	rc *resty.Client
}

// Request describes one upstream call. Path is relative to the API root,
// e.g. "/projects/ABC/repos".
type Request struct {
	Method  string
	Path    string
	Query   map[string]string
	Headers map[string]string
	Body    any
}

// Response is a successful upstream reply.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// APIError is returned for every failed upstream call, whether the server
// answered with a non-2xx status or the request never completed.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("%s %s HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// New returns a client authenticated with the single mode selected in cfg.
func New(cfg config.Config) *Client {
	var rc *resty.Client
	switch cfg.Auth() {
	case config.AuthBearer:
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token()})
		hc := oauth2.NewClient(context.Background(), src)
		rc = resty.NewWithClient(hc)
	default:
		rc = resty.New().SetBasicAuth(cfg.Username(), cfg.Password())
	}
	rc.SetBaseURL(cfg.BaseURL()+apiPath).
		SetTimeout(cfg.Timeout()).
		SetHeader("Accept", "application/json")
	return &Client{rc: rc}
}

// Do performs req and returns the raw reply, or an *APIError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	r := c.rc.R().SetContext(ctx)
	if len(req.Query) > 0 {
		r.SetQueryParams(req.Query)
	}
	if len(req.Headers) > 0 {
		r.SetHeaders(req.Headers)
	}
	if req.Body != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(req.Body)
	}

	resp, err := r.Execute(method, req.Path)
	if err != nil {
		return nil, &APIError{Method: method, Path: req.Path, Message: err.Error()}
	}
	if resp.IsError() {
		return nil, &APIError{
			Method:     method,
			Path:       req.Path,
			StatusCode: resp.StatusCode(),
			Message:    errorMessage(resp.Body(), resp.Status()),
		}
	}
	return &Response{
		StatusCode:  resp.StatusCode(),
		ContentType: resp.Header().Get("Content-Type"),
		Body:        resp.Body(),
	}, nil
}

// errorMessage prefers the server-provided message over the status line.
// Bitbucket reports failures either as {"message": ...} or as
// {"errors": [{"message": ...}]}.
func errorMessage(body []byte, status string) string {
	if gjson.ValidBytes(body) {
		if m := gjson.GetBytes(body, "message"); m.Type == gjson.String && m.Str != "" {
			return m.Str
		}
		if m := gjson.GetBytes(body, "errors.0.message"); m.Type == gjson.String && m.Str != "" {
			return m.Str
		}
	}
	if status == "" {
		return "request failed"
	}
	return "request failed with status " + status
}
