package server

import "bitbucket-mcp/internal/tools"

// CallRequest is the body of a tool call.
type CallRequest struct {
	Name string         `json:"name"`
	Args map[string]any `json:"arguments"`
}

// CallResult is a successful tool call.
type CallResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Content is a text content block.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func textResult(text string) CallResult {
	return CallResult{Content: []Content{{Type: "text", Text: text}}}
}

// ToolsList is the body of a tool listing.
type ToolsList struct {
	Tools []tools.Descriptor `json:"tools"`
}

// ErrorBody carries a classified tool error over HTTP.
type ErrorBody struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
