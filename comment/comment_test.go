package comment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	gosync "sync"
	"testing"

	"github.com/sandeepkandula/sitedeploy/stack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGitHub serves the issue comment endpoints for owner/repo#7.
type fakeGitHub struct {
	mu       gosync.Mutex
	nextID   int64
	comments []issueComment
	calls    []string
}

func (g *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, r.Method+" "+r.URL.Path)

	if r.Header.Get("Authorization") != "Bearer tok" {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(apiError{Message: "Bad credentials"})
		return
	}

	switch {
	case r.URL.Path == "/repos/owner/repo/issues/7/comments" && r.Method == http.MethodGet:
		json.NewEncoder(w).Encode(g.comments)
	case r.URL.Path == "/repos/owner/repo/issues/7/comments" && r.Method == http.MethodPost:
		var in issueComment
		json.NewDecoder(r.Body).Decode(&in)
		g.nextID++
		in.ID = g.nextID
		g.comments = append(g.comments, in)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(in)
	case strings.HasPrefix(r.URL.Path, "/repos/owner/repo/issues/comments/"):
		id, _ := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/repos/owner/repo/issues/comments/"), 10, 64)
		for i, c := range g.comments {
			if c.ID != id {
				continue
			}
			switch r.Method {
			case http.MethodPatch:
				var in issueComment
				json.NewDecoder(r.Body).Decode(&in)
				g.comments[i].Body = in.Body
				json.NewEncoder(w).Encode(g.comments[i])
			case http.MethodDelete:
				g.comments = append(g.comments[:i], g.comments[i+1:]...)
				w.WriteHeader(http.StatusNoContent)
			}
			return
		}
		w.WriteHeader(http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, token string) (*Client, *fakeGitHub) {
	t.Helper()
	gh := &fakeGitHub{}
	srv := httptest.NewServer(gh)
	t.Cleanup(srv.Close)
	c := NewClientWithBaseURL(srv.URL, token, PullRequest{Owner: "owner", Repo: "repo", Number: 7})
	c.http.SetCommonRetryCount(0)
	return c, gh
}

var changes = []stack.Change{{ResourceType: "AWS::S3::Bucket", LogicalID: "Bucket", Action: "Modify", Replacement: "False"}}

func TestPostChangeSet_upserts(t *testing.T) {
	c, gh := newTestClient(t, "tok")

	require.NoError(t, c.PostChangeSet(context.Background(), changes))
	require.NoError(t, c.PostChangeSet(context.Background(), nil))

	require.Len(t, gh.comments, 1)
	assert.True(t, strings.HasPrefix(gh.comments[0].Body, "Stack ChangeSet (ID:7)\n"))
	assert.Contains(t, gh.comments[0].Body, "No Stack changes")
}

func TestPostPreview_replaces(t *testing.T) {
	c, gh := newTestClient(t, "tok")
	ctx := context.Background()

	require.NoError(t, c.PostChangeSet(ctx, changes))
	require.NoError(t, c.PostPreview(ctx, changes, "https://b1.preview.example.com", true))
	require.NoError(t, c.PostPreview(ctx, nil, "https://b1.preview.example.com", true))

	require.Len(t, gh.comments, 2)
	preview := gh.comments[1]
	assert.True(t, strings.HasPrefix(preview.Body, "AWS Stack Change (ID:7)\n"))
	assert.Contains(t, preview.Body, "[https://b1.preview.example.com](https://b1.preview.example.com)")
	assert.Contains(t, preview.Body, "(No Stack changes)")
}

func TestDeletePreview(t *testing.T) {
	c, gh := newTestClient(t, "tok")
	ctx := context.Background()

	require.NoError(t, c.DeletePreview(ctx), "no comment is not an error")
	require.NoError(t, c.PostPreview(ctx, nil, "https://b1.example.com", false))
	require.NoError(t, c.DeletePreview(ctx))
	assert.Empty(t, gh.comments)
}

func TestAPIError(t *testing.T) {
	c, _ := newTestClient(t, "wrong")
	err := c.PostChangeSet(context.Background(), changes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Bad credentials")
}

func TestMarkdown(t *testing.T) {
	md := ChangeSetMarkdown(changes)
	assert.Contains(t, md, "| ⚠️ | AWS::S3::Bucket | Bucket | Modify | False |")
	assert.Contains(t, md, "The above changes will be applied.")

	md = PreviewMarkdown(changes, "https://x", true)
	assert.Contains(t, md, "have been applied")
	assert.Contains(t, md, "| ✅ | AWS::S3::Bucket |")

	md = PreviewMarkdown(changes, "https://x", false)
	assert.NotContains(t, md, "Stack changes")
	assert.Contains(t, md, "Preview site deployed to")
}
