package tools

import (
	"maps"
	"slices"
)

// Tool names.
const (
	ToolListProjects       = "list_projects"
	ToolListRepositories   = "list_repositories"
	ToolCreatePullRequest  = "create_pull_request"
	ToolGetPullRequest     = "get_pull_request"
	ToolListPullRequests   = "list_pull_requests"
	ToolMergePullRequest   = "merge_pull_request"
	ToolDeclinePullRequest = "decline_pull_request"
	ToolAddComment         = "add_comment"
	ToolGetDiff            = "get_diff"
	ToolGetReviews         = "get_reviews"
)

// Descriptor describes one tool for discovery. It is never consulted
// during validation.
type Descriptor struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	InputSchema Schema `json:"inputSchema" yaml:"inputSchema"`
}

// Schema is the JSON Schema subset used for tool inputs.
type Schema struct {
	Type       string              `json:"type" yaml:"type"`
	Properties map[string]Property `json:"properties" yaml:"properties"`
	Required   []string            `json:"required,omitempty" yaml:"required,omitempty"`
}

// Property describes a single input field.
type Property struct {
	Type        string    `json:"type" yaml:"type"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty" yaml:"enum,omitempty"`
	Items       *Property `json:"items,omitempty" yaml:"items,omitempty"`
}

func str(desc string) Property { return Property{Type: "string", Description: desc} }
func num(desc string) Property { return Property{Type: "number", Description: desc} }
func enum(desc string, values ...string) Property {
	return Property{Type: "string", Description: desc, Enum: values}
}

func object(props map[string]Property, required ...string) Schema {
	return Schema{Type: "object", Properties: props, Required: required}
}

var (
	projectProp = str("Bitbucket project key. If omitted, uses BITBUCKET_DEFAULT_PROJECT.")
	repoProp    = str("Repository slug")
	prIDProp    = num("Pull request ID")
	limitProp   = num("Number of items to return (default: 25)")
	startProp   = num("Start index for pagination (default: 0)")
)

// registry is built once and never mutated.
var registry = []Descriptor{
	{
		Name:        ToolListProjects,
		Description: "List all accessible Bitbucket projects with optional pagination.",
		InputSchema: object(map[string]Property{
			"limit": limitProp,
			"start": startProp,
		}),
	},
	{
		Name:        ToolListRepositories,
		Description: "List repositories in a project, or across all projects when no project is given or configured.",
		InputSchema: object(map[string]Property{
			"project": projectProp,
			"limit":   limitProp,
			"start":   startProp,
		}),
	},
	{
		Name:        ToolCreatePullRequest,
		Description: "Create a new pull request.",
		InputSchema: object(map[string]Property{
			"project":      projectProp,
			"repository":   repoProp,
			"title":        str("PR title"),
			"description":  str("PR description"),
			"sourceBranch": str("Source branch name"),
			"targetBranch": str("Target branch name"),
			"reviewers": {
				Type:        "array",
				Description: "List of reviewer usernames",
				Items:       &Property{Type: "string"},
			},
		}, "repository", "title", "sourceBranch", "targetBranch"),
	},
	{
		Name:        ToolGetPullRequest,
		Description: "Get pull request details.",
		InputSchema: object(map[string]Property{
			"project":    projectProp,
			"repository": repoProp,
			"prId":       prIDProp,
		}, "repository", "prId"),
	},
	{
		Name:        ToolListPullRequests,
		Description: "List pull requests in a repository.",
		InputSchema: object(map[string]Property{
			"project":    projectProp,
			"repository": repoProp,
			"state":      enum("Pull request state filter (default: OPEN)", prStates...),
			"limit":      limitProp,
			"start":      startProp,
		}, "repository"),
	},
	{
		Name:        ToolMergePullRequest,
		Description: "Merge a pull request.",
		InputSchema: object(map[string]Property{
			"project":    projectProp,
			"repository": repoProp,
			"prId":       prIDProp,
			"message":    str("Merge commit message"),
			"strategy":   enum("Merge strategy to use (default: merge-commit)", mergeStrategies...),
		}, "repository", "prId"),
	},
	{
		Name:        ToolDeclinePullRequest,
		Description: "Decline a pull request.",
		InputSchema: object(map[string]Property{
			"project":    projectProp,
			"repository": repoProp,
			"prId":       prIDProp,
			"message":    str("Reason for declining"),
		}, "repository", "prId"),
	},
	{
		Name:        ToolAddComment,
		Description: "Add a comment to a pull request. Supplying filePath and lineNumber attaches the comment to a line of the diff.",
		InputSchema: object(map[string]Property{
			"project":    projectProp,
			"repository": repoProp,
			"prId":       prIDProp,
			"text":       str("Comment text"),
			"parentId":   num("Parent comment ID for replies"),
			"filePath":   str("Path of the file to comment on"),
			"lineNumber": num("Line number to comment on; required with filePath"),
			"lineType":   enum("Type of the commented line (default: CONTEXT)", lineTypes...),
			"diffType":   enum("Diff the line belongs to (default: EFFECTIVE)", diffTypes...),
			"fileType":   enum("Side of the diff (default: TO)", fileTypes...),
			"fromHash":   str("Commit the diff starts from"),
			"toHash":     str("Commit the diff ends at"),
		}, "repository", "prId", "text"),
	},
	{
		Name:        ToolGetDiff,
		Description: "Get the unified diff of a pull request.",
		InputSchema: object(map[string]Property{
			"project":      projectProp,
			"repository":   repoProp,
			"prId":         prIDProp,
			"contextLines": num("Number of context lines (default: 10)"),
		}, "repository", "prId"),
	},
	{
		Name:        ToolGetReviews,
		Description: "Get the approval and review activity of a pull request.",
		InputSchema: object(map[string]Property{
			"project":    projectProp,
			"repository": repoProp,
			"prId":       prIDProp,
		}, "repository", "prId"),
	},
}

// ListTools returns a deep copy of the tool descriptors in their fixed order.
func ListTools() []Descriptor {
	out := make([]Descriptor, len(registry))
	for i, d := range registry {
		out[i] = d.clone()
	}
	return out
}

func (d Descriptor) clone() Descriptor {
	d.InputSchema.Properties = maps.Clone(d.InputSchema.Properties)
	for name, p := range d.InputSchema.Properties {
		d.InputSchema.Properties[name] = p.clone()
	}
	d.InputSchema.Required = slices.Clone(d.InputSchema.Required)
	return d
}

func (p Property) clone() Property {
	p.Enum = slices.Clone(p.Enum)
	if p.Items != nil {
		items := p.Items.clone()
		p.Items = &items
	}
	return p
}
