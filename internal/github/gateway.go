package github

import (
	"context"
	"fmt"

	"github.com/frostline/repofreeze/internal/model"
)

// CheckRunStatus is the lifecycle state of a check run.
type CheckRunStatus string

// CheckRunConclusion is the final conclusion of a completed check run.
type CheckRunConclusion string

const (
	// StatusCompleted marks a check run as finished.
	StatusCompleted CheckRunStatus = "completed"

	// ConclusionSuccess marks the change request as mergeable.
	ConclusionSuccess CheckRunConclusion = "success"
	// ConclusionFailure blocks the change request from merging.
	ConclusionFailure CheckRunConclusion = "failure"
)

// CheckRunName is the name under which freeze check runs are published.
const CheckRunName = "freeze-status"

// CheckRunOutput is the human-readable body of a check run.
type CheckRunOutput struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Text    string `json:"text,omitempty"`
}

// CheckRun describes a check run to create on a head commit. Check runs are
// always created fresh rather than updated in place, so the latest one wins.
type CheckRun struct {
	Name       string             `json:"name"`
	HeadSHA    string             `json:"head_sha"`
	Status     CheckRunStatus     `json:"status"`
	Conclusion CheckRunConclusion `json:"conclusion"`
	Output     CheckRunOutput     `json:"output"`
}

// Gateway is the surface of the GitHub API the service depends on. All calls
// authenticate as the installation identified by installationID.
type Gateway interface {
	// ListOpenPullRequests returns every open pull request in the repository.
	ListOpenPullRequests(ctx context.Context, installationID int64, repo model.Repo) ([]model.PullRequestRef, error)

	// GetPullRequest fetches a single pull request by number.
	GetPullRequest(ctx context.Context, installationID int64, repo model.Repo, number int) (*model.PullRequestRef, error)

	// CreateCheckRun creates a check run on the given head commit.
	CreateCheckRun(ctx context.Context, installationID int64, repo model.Repo, run CheckRun) error

	// CreateIssueComment posts a Markdown comment on an issue or pull
	// request.
	CreateIssueComment(ctx context.Context, installationID int64, repo model.Repo, issueNumber int, body string) error
}

// APIError is a non-2xx response from the GitHub API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github api error: status %d: %s", e.StatusCode, e.Message)
}
