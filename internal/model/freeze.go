package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultFreezeDuration is applied when a freeze request carries neither an
// explicit end nor a duration.
const DefaultFreezeDuration = 2 * time.Hour

// ErrInvalidRepo is returned when a repository name is not in "owner/name" format.
var ErrInvalidRepo = errors.New("repository must be in owner/name format")

// Status tracks the lifecycle of a freeze from creation to completion.
type Status string

const (
	// StatusScheduled marks a freeze waiting for its start time.
	StatusScheduled Status = "scheduled"
	// StatusActive marks a freeze currently blocking pull requests.
	StatusActive Status = "active"
	// StatusExpired marks a freeze whose window has passed without a manual end.
	StatusExpired Status = "expired"
	// StatusEnded marks a freeze manually ended by a user. Terminal.
	StatusEnded Status = "ended"
)

// ParseStatus converts a stored status string into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusScheduled, StatusActive, StatusExpired, StatusEnded:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown freeze status: %q", s)
}

// Repo identifies a repository by its owner and name.
type Repo struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// ParseRepo parses an "owner/name" string into a Repo.
func ParseRepo(fullName string) (Repo, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Repo{}, fmt.Errorf("%w: %q", ErrInvalidRepo, fullName)
	}
	return Repo{Owner: parts[0], Name: parts[1]}, nil
}

// FullName returns the repository in "owner/name" format, the form used for
// persistence and display.
func (r Repo) FullName() string {
	return r.Owner + "/" + r.Name
}

// FreezeRecord represents one freeze window on one repository.
type FreezeRecord struct {
	// ID uniquely identifies this freeze record.
	ID uuid.UUID `json:"id"`

	// Repository is the repository name in "owner/name" format.
	Repository string `json:"repository"`

	// InstallationID is the tenant scope under which the repository and its
	// credentials are grouped.
	InstallationID int64 `json:"installation_id"`

	// StartedAt is when the freeze becomes (or became) active.
	StartedAt time.Time `json:"started_at"`

	// ExpiresAt is when the freeze automatically expires; nil means no end.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// EndedAt is when the freeze was manually ended; set only with StatusEnded.
	EndedAt *time.Time `json:"ended_at,omitempty"`

	// Reason is the optional operator-supplied reason for the freeze.
	Reason *string `json:"reason,omitempty"`

	// InitiatedBy is the login of the user who initiated the freeze.
	InitiatedBy string `json:"initiated_by"`

	// EndedBy is the login of the user who ended the freeze, if applicable.
	EndedBy *string `json:"ended_by,omitempty"`

	// Branch optionally scopes the freeze to one base branch; nil freezes all
	// branches.
	Branch *string `json:"branch,omitempty"`

	// Status is the stored lifecycle status.
	Status Status `json:"status"`

	// CreatedAt is when this record was persisted.
	CreatedAt time.Time `json:"created_at"`
}

// NewFreeze builds an immediately-active freeze record.
func NewFreeze(repo Repo, installationID int64, start time.Time, expires *time.Time, reason, branch *string, initiatedBy string) *FreezeRecord {
	return &FreezeRecord{
		ID:             uuid.New(),
		Repository:     repo.FullName(),
		InstallationID: installationID,
		StartedAt:      start,
		ExpiresAt:      expires,
		Reason:         reason,
		InitiatedBy:    initiatedBy,
		Branch:         branch,
		Status:         StatusActive,
		CreatedAt:      time.Now().UTC(),
	}
}

// NewScheduledFreeze builds a freeze record waiting for a future start time.
func NewScheduledFreeze(repo Repo, installationID int64, start time.Time, expires *time.Time, reason, branch *string, initiatedBy string) *FreezeRecord {
	rec := NewFreeze(repo, installationID, start, expires, reason, branch, initiatedBy)
	rec.Status = StatusScheduled
	return rec
}

// EffectivelyExpired reports whether an active freeze has passed its window.
// The stored status stays Active until explicitly ended; callers that need
// the real freeze state recompute it from the window at read time.
func (f *FreezeRecord) EffectivelyExpired(now time.Time) bool {
	return f.ExpiresAt != nil && !now.Before(*f.ExpiresAt)
}

// AppliesToBranch reports whether the freeze blocks pull requests targeting
// the given base branch. An unscoped freeze blocks every branch.
func (f *FreezeRecord) AppliesToBranch(baseBranch string) bool {
	return f.Branch == nil || *f.Branch == baseBranch
}

// UnlockedPr is an override record letting one pull request bypass an active
// freeze. Keyed by (installation, repository, pr_number); re-unlocking
// replaces the record.
type UnlockedPr struct {
	// Repository is the repository name in "owner/name" format.
	Repository string `json:"repository"`

	// InstallationID is the installation the repository belongs to.
	InstallationID int64 `json:"installation_id"`

	// PRNumber is the pull request number granted the override.
	PRNumber int `json:"pr_number"`

	// UnlockedBy is the login of the user who granted the override.
	UnlockedBy string `json:"unlocked_by"`

	// UnlockedAt is when the override was granted.
	UnlockedAt time.Time `json:"unlocked_at"`
}

// PullRequestRef carries the fields of an open pull request the synchronizer
// needs. Fetched fresh on each pass, never persisted.
type PullRequestRef struct {
	Number     int    `json:"number"`
	HeadSHA    string `json:"head_sha"`
	BaseBranch string `json:"base_branch"`
}

// RefreshResult summarises one synchronization pass over a repository's open
// pull requests. Used for logging only; a failed pass never blocks the
// operation that triggered it.
type RefreshResult struct {
	Total     int      `json:"total"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}
