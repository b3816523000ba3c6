package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/frostline/repofreeze/internal/model"
)

// DefaultBaseURL is the public GitHub API endpoint.
const DefaultBaseURL = "https://api.github.com"

// Client is a Gateway implementation over the GitHub REST API.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	logger  *zap.Logger
}

// NewClient creates a new GitHub API client. If httpClient is nil a client
// with a 30 second timeout is used.
func NewClient(baseURL string, tokens TokenSource, httpClient *http.Client, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		tokens:  tokens,
		logger:  logger,
	}
}

// pullRequestPayload is the subset of the pull request response we consume.
type pullRequestPayload struct {
	Number int `json:"number"`
	Head   struct {
		SHA string `json:"sha"`
	} `json:"head"`
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
}

func (p pullRequestPayload) toRef() model.PullRequestRef {
	return model.PullRequestRef{
		Number:     p.Number,
		HeadSHA:    p.Head.SHA,
		BaseBranch: p.Base.Ref,
	}
}

// ListOpenPullRequests returns every open pull request in the repository,
// following pagination.
func (c *Client) ListOpenPullRequests(ctx context.Context, installationID int64, repo model.Repo) ([]model.PullRequestRef, error) {
	var refs []model.PullRequestRef

	for page := 1; ; page++ {
		path := fmt.Sprintf("/repos/%s/%s/pulls?state=open&per_page=100&page=%d", repo.Owner, repo.Name, page)

		var payload []pullRequestPayload
		if err := c.do(ctx, installationID, http.MethodGet, path, nil, &payload); err != nil {
			return nil, fmt.Errorf("failed to list open pull requests for %s: %w", repo.FullName(), err)
		}

		for _, pr := range payload {
			refs = append(refs, pr.toRef())
		}

		if len(payload) < 100 {
			break
		}
	}

	c.logger.Debug("Listed open pull requests",
		zap.String("repository", repo.FullName()),
		zap.Int("count", len(refs)),
	)

	return refs, nil
}

// GetPullRequest fetches a single pull request by number.
func (c *Client) GetPullRequest(ctx context.Context, installationID int64, repo model.Repo, number int) (*model.PullRequestRef, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", repo.Owner, repo.Name, number)

	var payload pullRequestPayload
	if err := c.do(ctx, installationID, http.MethodGet, path, nil, &payload); err != nil {
		return nil, fmt.Errorf("failed to get pull request %s#%d: %w", repo.FullName(), number, err)
	}

	ref := payload.toRef()
	return &ref, nil
}

// CreateCheckRun creates a check run on the given head commit.
func (c *Client) CreateCheckRun(ctx context.Context, installationID int64, repo model.Repo, run CheckRun) error {
	path := fmt.Sprintf("/repos/%s/%s/check-runs", repo.Owner, repo.Name)

	if err := c.do(ctx, installationID, http.MethodPost, path, run, nil); err != nil {
		return fmt.Errorf("failed to create check run on %s@%s: %w", repo.FullName(), run.HeadSHA, err)
	}

	c.logger.Debug("Created check run",
		zap.String("repository", repo.FullName()),
		zap.String("head_sha", run.HeadSHA),
		zap.String("conclusion", string(run.Conclusion)),
	)

	return nil
}

// CreateIssueComment posts a Markdown comment on an issue or pull request.
func (c *Client) CreateIssueComment(ctx context.Context, installationID int64, repo model.Repo, issueNumber int, body string) error {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", repo.Owner, repo.Name, issueNumber)

	payload := map[string]string{"body": body}
	if err := c.do(ctx, installationID, http.MethodPost, path, payload, nil); err != nil {
		return fmt.Errorf("failed to comment on %s#%d: %w", repo.FullName(), issueNumber, err)
	}

	return nil
}

// do performs one authenticated API request, decoding a JSON response into
// out when out is non-nil.
func (c *Client) do(ctx context.Context, installationID int64, method, path string, body, out interface{}) error {
	token, err := c.tokens.Token(ctx, installationID)
	if err != nil {
		return fmt.Errorf("failed to get installation token: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: string(data)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
