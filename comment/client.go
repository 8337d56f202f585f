// Package comment maintains the deployment comments on a GitHub pull request.
package comment

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/imroc/req/v3"
)

const (
	DefaultBaseURL = "https://api.github.com"
	perPage        = 100
)

const (
	pathComments = "/repos/{owner}/{repo}/issues/{number}/comments"
	pathComment  = "/repos/{owner}/{repo}/issues/comments/{id}"
)

// PullRequest identifies the pull request comments are attached to.
type PullRequest struct {
	Owner  string
	Repo   string
	Number int
}

type issueComment struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
}

type apiError struct {
	Message string `json:"message"`
}

func (e *apiError) Error() string { return e.Message }

// Client talks to the GitHub issues API for a single pull request.
type Client struct {
	http *req.Client
	pr   PullRequest
}

func NewClient(token string, pr PullRequest) *Client {
	return NewClientWithBaseURL(DefaultBaseURL, token, pr)
}

func NewClientWithBaseURL(baseURL, token string, pr PullRequest) *Client {
	c := req.C().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetCommonBearerAuthToken(token).
		SetCommonHeader("Accept", "application/vnd.github+json").
		SetCommonHeader("X-GitHub-Api-Version", "2022-11-28").
		SetCommonRetryCount(3).
		SetCommonRetryFixedInterval(1 * time.Second).
		SetCommonErrorResult(&apiError{})
	return &Client{http: c, pr: pr}
}

func (c *Client) request(ctx context.Context) *req.Request {
	return c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"owner":  c.pr.Owner,
			"repo":   c.pr.Repo,
			"number": strconv.Itoa(c.pr.Number),
		})
}

func (c *Client) list(ctx context.Context) ([]issueComment, error) {
	var all []issueComment
	for page := 1; ; page++ {
		var batch []issueComment
		resp, err := c.request(ctx).
			SetQueryParam("per_page", strconv.Itoa(perPage)).
			SetQueryParam("page", strconv.Itoa(page)).
			SetSuccessResult(&batch).
			Get(pathComments)
		if err := handleAPIError(resp, err, "list comments"); err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < perPage {
			return all, nil
		}
	}
}

func (c *Client) find(ctx context.Context, header string) (*issueComment, error) {
	comments, err := c.list(ctx)
	if err != nil {
		return nil, err
	}
	for i := range comments {
		if strings.HasPrefix(comments[i].Body, header) {
			return &comments[i], nil
		}
	}
	return nil, nil
}

func (c *Client) create(ctx context.Context, body string) error {
	resp, err := c.request(ctx).
		SetBody(map[string]string{"body": body}).
		Post(pathComments)
	return handleAPIError(resp, err, "create comment")
}

func (c *Client) update(ctx context.Context, id int64, body string) error {
	resp, err := c.request(ctx).
		SetPathParam("id", strconv.FormatInt(id, 10)).
		SetBody(map[string]string{"body": body}).
		Patch(pathComment)
	return handleAPIError(resp, err, "update comment")
}

func (c *Client) delete(ctx context.Context, id int64) error {
	resp, err := c.request(ctx).
		SetPathParam("id", strconv.FormatInt(id, 10)).
		Delete(pathComment)
	return handleAPIError(resp, err, "delete comment")
}

func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("github %s: %w", operation, requestErr)
	}
	if resp.IsErrorState() {
		if apiErr, ok := resp.ErrorResult().(*apiError); ok && apiErr.Message != "" {
			return fmt.Errorf("github %s: %d %w", operation, resp.StatusCode, apiErr)
		}
		return fmt.Errorf("github %s: unexpected status %d", operation, resp.StatusCode)
	}
	return nil
}
