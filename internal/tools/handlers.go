package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"bitbucket-mcp/internal/bitbucket"
)

// Defaults applied immediately before the upstream call.
const (
	defaultLimit         = 25
	defaultStart         = 0
	defaultMergeStrategy = "merge-commit"
	defaultPRState       = "OPEN"
	defaultContextLines  = 10

	// anyVersion lets merge and decline skip the optimistic-lock check.
	anyVersion = -1
)

func pageQuery(limit, start *int) map[string]string {
	return map[string]string{
		"limit": strconv.Itoa(valueOr(limit, defaultLimit)),
		"start": strconv.Itoa(valueOr(start, defaultStart)),
	}
}

// Wire shapes of the Bitbucket Server API. Only fields the tools read are listed.
type page[T any] struct {
	Size          int  `json:"size"`
	IsLastPage    bool `json:"isLastPage"`
	NextPageStart *int `json:"nextPageStart"`
	Values        []T  `json:"values"`
}

type bbProject struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
	Type        string `json:"type"`
}

type bbRepository struct {
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Public      bool      `json:"public"`
	State       string    `json:"state"`
	Project     bbProject `json:"project"`
	Links       struct {
		Clone []struct {
			Href string `json:"href"`
			Name string `json:"name"`
		} `json:"clone"`
	} `json:"links"`
}

type bbRef struct {
	ID        string `json:"id"`
	DisplayID string `json:"displayId"`
}

type bbPullRequest struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	State  string `json:"state"`
	Author struct {
		User struct {
			Name        string `json:"name"`
			DisplayName string `json:"displayName"`
		} `json:"user"`
	} `json:"author"`
	FromRef     bbRef `json:"fromRef"`
	ToRef       bbRef `json:"toRef"`
	CreatedDate int64 `json:"createdDate"`
	UpdatedDate int64 `json:"updatedDate"`
}

// pageSummary heads every list response.
type pageSummary struct {
	Total         int  `json:"total"`
	Showing       int  `json:"showing"`
	IsLastPage    bool `json:"isLastPage"`
	NextPageStart *int `json:"nextPageStart,omitempty"`
}

func summarize[T any](p page[T]) pageSummary {
	total := p.Size
	if total == 0 {
		total = len(p.Values)
	}
	return pageSummary{
		Total:         total,
		Showing:       len(p.Values),
		IsLastPage:    p.IsLastPage,
		NextPageStart: p.NextPageStart,
	}
}

func (c *listProjects) execute(ctx context.Context, up Upstream) (string, error) {
	resp, err := up.Do(ctx, bitbucket.Request{
		Method: http.MethodGet,
		Path:   "/projects",
		Query:  pageQuery(c.Limit, c.Start),
	})
	if err != nil {
		return "", err
	}
	var p page[bbProject]
	if err := json.Unmarshal(resp.Body, &p); err != nil {
		return "", fmt.Errorf("decode projects: %w", err)
	}

	type projectView struct {
		Key         string `json:"key"`
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		Public      bool   `json:"public"`
		Type        string `json:"type"`
	}
	out := struct {
		pageSummary
		Projects []projectView `json:"projects"`
	}{pageSummary: summarize(p), Projects: make([]projectView, 0, len(p.Values))}
	for _, v := range p.Values {
		out.Projects = append(out.Projects, projectView(v))
	}
	return jsonText(out)
}

func (c *listRepositories) execute(ctx context.Context, up Upstream) (string, error) {
	path := "/repos"
	if c.Project != "" {
		path = repoRef{Project: c.Project}.projectPath() + "/repos"
	}
	resp, err := up.Do(ctx, bitbucket.Request{
		Method: http.MethodGet,
		Path:   path,
		Query:  pageQuery(c.Limit, c.Start),
	})
	if err != nil {
		return "", err
	}
	var p page[bbRepository]
	if err := json.Unmarshal(resp.Body, &p); err != nil {
		return "", fmt.Errorf("decode repositories: %w", err)
	}

	type repoView struct {
		Slug        string `json:"slug"`
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		Project     string `json:"project"`
		Public      bool   `json:"public"`
		State       string `json:"state,omitempty"`
		CloneURL    string `json:"cloneUrl,omitempty"`
	}
	out := struct {
		pageSummary
		Repositories []repoView `json:"repositories"`
	}{pageSummary: summarize(p), Repositories: make([]repoView, 0, len(p.Values))}
	for _, r := range p.Values {
		v := repoView{
			Slug:        r.Slug,
			Name:        r.Name,
			Description: r.Description,
			Project:     r.Project.Key,
			Public:      r.Public,
			State:       r.State,
		}
		for _, l := range r.Links.Clone {
			if l.Name == "http" || l.Name == "https" {
				v.CloneURL = l.Href
				break
			}
		}
		out.Repositories = append(out.Repositories, v)
	}
	return jsonText(out)
}

type refBody struct {
	ID         string `json:"id"`
	Repository struct {
		Slug    string `json:"slug"`
		Project struct {
			Key string `json:"key"`
		} `json:"project"`
	} `json:"repository"`
}

type reviewerBody struct {
	User struct {
		Name string `json:"name"`
	} `json:"user"`
}

func (c *createPullRequest) branchRef(branch string) refBody {
	var r refBody
	r.ID = "refs/heads/" + branch
	r.Repository.Slug = c.Repository
	r.Repository.Project.Key = c.Project
	return r
}

func (c *createPullRequest) execute(ctx context.Context, up Upstream) (string, error) {
	body := struct {
		Title       string         `json:"title"`
		Description string         `json:"description,omitempty"`
		State       string         `json:"state"`
		Open        bool           `json:"open"`
		Closed      bool           `json:"closed"`
		FromRef     refBody        `json:"fromRef"`
		ToRef       refBody        `json:"toRef"`
		Reviewers   []reviewerBody `json:"reviewers"`
	}{
		Title:       c.Title,
		Description: valueOr(c.Description, ""),
		State:       "OPEN",
		Open:        true,
		FromRef:     c.branchRef(c.SourceBranch),
		ToRef:       c.branchRef(c.TargetBranch),
		Reviewers:   make([]reviewerBody, 0, len(c.Reviewers)),
	}
	for _, name := range c.Reviewers {
		var r reviewerBody
		r.User.Name = name
		body.Reviewers = append(body.Reviewers, r)
	}

	resp, err := up.Do(ctx, bitbucket.Request{
		Method: http.MethodPost,
		Path:   c.path() + "/pull-requests",
		Body:   body,
	})
	if err != nil {
		return "", err
	}
	return payloadText(resp.Body)
}

func (c *getPullRequest) execute(ctx context.Context, up Upstream) (string, error) {
	resp, err := up.Do(ctx, bitbucket.Request{Method: http.MethodGet, Path: c.path()})
	if err != nil {
		return "", err
	}
	return payloadText(resp.Body)
}

func (c *listPullRequests) execute(ctx context.Context, up Upstream) (string, error) {
	q := pageQuery(c.Limit, c.Start)
	q["state"] = valueOr(c.State, defaultPRState)
	resp, err := up.Do(ctx, bitbucket.Request{
		Method: http.MethodGet,
		Path:   c.path() + "/pull-requests",
		Query:  q,
	})
	if err != nil {
		return "", err
	}
	var p page[bbPullRequest]
	if err := json.Unmarshal(resp.Body, &p); err != nil {
		return "", fmt.Errorf("decode pull requests: %w", err)
	}

	type prView struct {
		ID        int64  `json:"id"`
		Title     string `json:"title"`
		State     string `json:"state"`
		Author    string `json:"author"`
		Source    string `json:"source"`
		Target    string `json:"target"`
		CreatedAt string `json:"createdAt,omitempty"`
		UpdatedAt string `json:"updatedAt,omitempty"`
	}
	out := struct {
		pageSummary
		PullRequests []prView `json:"pullRequests"`
	}{pageSummary: summarize(p), PullRequests: make([]prView, 0, len(p.Values))}
	for _, pr := range p.Values {
		author := pr.Author.User.DisplayName
		if author == "" {
			author = pr.Author.User.Name
		}
		out.PullRequests = append(out.PullRequests, prView{
			ID:        pr.ID,
			Title:     pr.Title,
			State:     pr.State,
			Author:    author,
			Source:    pr.FromRef.DisplayID,
			Target:    pr.ToRef.DisplayID,
			CreatedAt: formatMillis(pr.CreatedDate),
			UpdatedAt: formatMillis(pr.UpdatedDate),
		})
	}
	return jsonText(out)
}

func (c *mergePullRequest) execute(ctx context.Context, up Upstream) (string, error) {
	body := struct {
		Version  int    `json:"version"`
		Message  string `json:"message,omitempty"`
		Strategy string `json:"strategy"`
	}{
		Version:  anyVersion,
		Message:  valueOr(c.Message, ""),
		Strategy: valueOr(c.Strategy, defaultMergeStrategy),
	}
	resp, err := up.Do(ctx, bitbucket.Request{
		Method: http.MethodPost,
		Path:   c.path() + "/merge",
		Body:   body,
	})
	if err != nil {
		return "", err
	}
	return payloadText(resp.Body)
}

func (c *declinePullRequest) execute(ctx context.Context, up Upstream) (string, error) {
	body := struct {
		Version int    `json:"version"`
		Message string `json:"message,omitempty"`
	}{Version: anyVersion, Message: valueOr(c.Message, "")}
	resp, err := up.Do(ctx, bitbucket.Request{
		Method: http.MethodPost,
		Path:   c.path() + "/decline",
		Body:   body,
	})
	if err != nil {
		return "", err
	}
	return payloadText(resp.Body)
}

type parentBody struct {
	ID int64 `json:"id"`
}

func (c *addComment) execute(ctx context.Context, up Upstream) (string, error) {
	body := struct {
		Text   string         `json:"text"`
		Parent *parentBody    `json:"parent,omitempty"`
		Anchor *CommentAnchor `json:"anchor,omitempty"`
	}{Text: c.Text, Anchor: c.Anchor}
	if c.ParentID != nil {
		body.Parent = &parentBody{ID: *c.ParentID}
	}
	resp, err := up.Do(ctx, bitbucket.Request{
		Method: http.MethodPost,
		Path:   c.path() + "/comments",
		Body:   body,
	})
	if err != nil {
		return "", err
	}
	return payloadText(resp.Body)
}

func (c *getDiff) execute(ctx context.Context, up Upstream) (string, error) {
	resp, err := up.Do(ctx, bitbucket.Request{
		Method:  http.MethodGet,
		Path:    c.path() + "/diff",
		Query:   map[string]string{"contextLines": strconv.Itoa(valueOr(c.ContextLines, defaultContextLines))},
		Headers: map[string]string{"Accept": "text/plain"},
	})
	if err != nil {
		return "", err
	}
	return string(resp.Body), nil
}

var reviewActions = map[string]bool{"APPROVED": true, "REVIEWED": true}

// execute keeps only APPROVED and REVIEWED activities, in upstream order.
// The activity list is read from a paged {"values": [...]} reply or a bare array.
func (c *getReviews) execute(ctx context.Context, up Upstream) (string, error) {
	resp, err := up.Do(ctx, bitbucket.Request{Method: http.MethodGet, Path: c.path() + "/activities"})
	if err != nil {
		return "", err
	}
	if !gjson.ValidBytes(resp.Body) {
		return "", fmt.Errorf("decode activities: invalid json")
	}
	doc := gjson.ParseBytes(resp.Body)
	items := doc.Get("values").Array()
	if doc.IsArray() {
		items = doc.Array()
	}

	reviews := make([]json.RawMessage, 0, len(items))
	for _, it := range items {
		if reviewActions[it.Get("action").String()] {
			reviews = append(reviews, json.RawMessage(it.Raw))
		}
	}
	return jsonText(reviews)
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func jsonText(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(b), nil
}

// payloadText re-indents a JSON payload and passes anything else through.
func payloadText(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "{}", nil
	}
	if !json.Valid(trimmed) {
		return string(body), nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, trimmed, "", "  "); err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return buf.String(), nil
}
