package tools

import (
	"context"
	"net/url"
	"strconv"

	"bitbucket-mcp/internal/bitbucket"
)

// Upstream performs a single Bitbucket REST call.
type Upstream interface {
	Do(ctx context.Context, req bitbucket.Request) (*bitbucket.Response, error)
}

// ProjectResolver resolves an optional project key against the configured default.
type ProjectResolver interface {
	ResolveProject(provided string) (string, error)
}

// command is one validated tool invocation. resolve must succeed before
// execute is called.
type command interface {
	resolve(p ProjectResolver) error
	execute(ctx context.Context, up Upstream) (string, error)
}

type validateFunc func(args) (command, error)

var validators = map[string]validateFunc{
	ToolListProjects:       validateListProjects,
	ToolListRepositories:   validateListRepositories,
	ToolCreatePullRequest:  validateCreatePullRequest,
	ToolGetPullRequest:     validateGetPullRequest,
	ToolListPullRequests:   validateListPullRequests,
	ToolMergePullRequest:   validateMergePullRequest,
	ToolDeclinePullRequest: validateDeclinePullRequest,
	ToolAddComment:         validateAddComment,
	ToolGetDiff:            validateGetDiff,
	ToolGetReviews:         validateGetReviews,
}

type repoRef struct {
	Project    string
	Repository string
}

func (r *repoRef) resolve(p ProjectResolver) error {
	project, err := p.ResolveProject(r.Project)
	if err != nil {
		return invalidParams("%v", err)
	}
	r.Project = project
	return nil
}

func (r repoRef) projectPath() string {
	return "/projects/" + url.PathEscape(r.Project)
}

func (r repoRef) path() string {
	return r.projectPath() + "/repos/" + url.PathEscape(r.Repository)
}

type prRef struct {
	repoRef
	PRID int64
}

func (r prRef) path() string {
	return r.repoRef.path() + "/pull-requests/" + strconv.FormatInt(r.PRID, 10)
}

func parseRepoRef(a args) (repoRef, error) {
	project, err := a.optionalString("project")
	if err != nil {
		return repoRef{}, err
	}
	repo, err := a.requiredString("repository")
	if err != nil {
		return repoRef{}, err
	}
	return repoRef{Project: valueOr(project, ""), Repository: repo}, nil
}

func parsePRRef(a args) (prRef, error) {
	repo, err := parseRepoRef(a)
	if err != nil {
		return prRef{}, err
	}
	id, err := a.requiredInt("prId")
	if err != nil {
		return prRef{}, err
	}
	return prRef{repoRef: repo, PRID: id}, nil
}

type listProjects struct {
	Limit *int
	Start *int
}

func (c *listProjects) resolve(ProjectResolver) error { return nil }

func validateListProjects(a args) (command, error) {
	limit, errLimit := a.optionalInt("limit")
	start, errStart := a.optionalInt("start")
	if err := firstErr(errLimit, errStart); err != nil {
		return nil, invalidParams("%v", err)
	}
	return &listProjects{Limit: limit, Start: start}, nil
}

// listRepositories lists across all projects when no project resolves.
type listRepositories struct {
	Project string
	Limit   *int
	Start   *int
}

func (c *listRepositories) resolve(p ProjectResolver) error {
	if project, err := p.ResolveProject(c.Project); err == nil {
		c.Project = project
	}
	return nil
}

func validateListRepositories(a args) (command, error) {
	project, errProject := a.optionalString("project")
	limit, errLimit := a.optionalInt("limit")
	start, errStart := a.optionalInt("start")
	if err := firstErr(errProject, errLimit, errStart); err != nil {
		return nil, invalidParams("%v", err)
	}
	return &listRepositories{Project: valueOr(project, ""), Limit: limit, Start: start}, nil
}

type createPullRequest struct {
	repoRef
	Title        string
	Description  *string
	SourceBranch string
	TargetBranch string
	Reviewers    []string
}

// validateCreatePullRequest names the offending field after the generic
// "Invalid pull request input parameters" prefix.
func validateCreatePullRequest(a args) (command, error) {
	ref, err := parseRepoRef(a)
	if err != nil {
		return nil, invalidParams("Invalid pull request input parameters: %v", err)
	}
	title, errTitle := a.requiredString("title")
	source, errSource := a.requiredString("sourceBranch")
	target, errTarget := a.requiredString("targetBranch")
	desc, errDesc := a.optionalString("description")
	reviewers, errReviewers := a.optionalStringSlice("reviewers")
	if err := firstErr(errTitle, errSource, errTarget, errDesc, errReviewers); err != nil {
		return nil, invalidParams("Invalid pull request input parameters: %v", err)
	}
	return &createPullRequest{
		repoRef:      ref,
		Title:        title,
		Description:  desc,
		SourceBranch: source,
		TargetBranch: target,
		Reviewers:    reviewers,
	}, nil
}

type getPullRequest struct {
	prRef
}

func validateGetPullRequest(a args) (command, error) {
	ref, err := parsePRRef(a)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	return &getPullRequest{prRef: ref}, nil
}

type listPullRequests struct {
	repoRef
	State *string
	Limit *int
	Start *int
}

func validateListPullRequests(a args) (command, error) {
	ref, err := parseRepoRef(a)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	state, errState := a.optionalEnum("state", prStates)
	limit, errLimit := a.optionalInt("limit")
	start, errStart := a.optionalInt("start")
	if err := firstErr(errState, errLimit, errStart); err != nil {
		return nil, invalidParams("%v", err)
	}
	return &listPullRequests{repoRef: ref, State: state, Limit: limit, Start: start}, nil
}

type mergePullRequest struct {
	prRef
	Message  *string
	Strategy *string
}

func validateMergePullRequest(a args) (command, error) {
	ref, err := parsePRRef(a)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	msg, errMsg := a.optionalString("message")
	strategy, errStrategy := a.optionalEnum("strategy", mergeStrategies)
	if err := firstErr(errMsg, errStrategy); err != nil {
		return nil, invalidParams("%v", err)
	}
	return &mergePullRequest{prRef: ref, Message: msg, Strategy: strategy}, nil
}

type declinePullRequest struct {
	prRef
	Message *string
}

func validateDeclinePullRequest(a args) (command, error) {
	ref, err := parsePRRef(a)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	msg, err := a.optionalString("message")
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	return &declinePullRequest{prRef: ref, Message: msg}, nil
}

// addComment carries an Anchor only for inline file comments.
type addComment struct {
	prRef
	Text     string
	ParentID *int64
	Anchor   *CommentAnchor
}

func validateAddComment(a args) (command, error) {
	ref, err := parsePRRef(a)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	text, errText := a.requiredString("text")
	parent, errParent := a.optionalInt64("parentId")
	if err := firstErr(errText, errParent); err != nil {
		return nil, invalidParams("%v", err)
	}
	anchor, err := buildAnchor(a)
	if err != nil {
		return nil, err
	}
	return &addComment{prRef: ref, Text: text, ParentID: parent, Anchor: anchor}, nil
}

type getDiff struct {
	prRef
	ContextLines *int
}

func validateGetDiff(a args) (command, error) {
	ref, err := parsePRRef(a)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	lines, err := a.optionalInt("contextLines")
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	return &getDiff{prRef: ref, ContextLines: lines}, nil
}

type getReviews struct {
	prRef
}

func validateGetReviews(a args) (command, error) {
	ref, err := parsePRRef(a)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	return &getReviews{prRef: ref}, nil
}
