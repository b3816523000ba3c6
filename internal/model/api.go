package model

import "time"

// FreezeRequest is the payload for creating a freeze.
type FreezeRequest struct {
	InstallationID int64  `json:"installation_id"`
	Repository     string `json:"repository"`

	// Start defaults to now; a future start schedules the freeze.
	Start *time.Time `json:"start,omitempty"`

	// End takes precedence over Duration when both are present.
	End      *time.Time `json:"end,omitempty"`
	Duration *string    `json:"duration,omitempty"`

	Reason *string `json:"reason,omitempty"`
	Branch *string `json:"branch,omitempty"`
	Actor  string  `json:"actor"`

	// IssueNumber optionally receives an acknowledgement comment.
	IssueNumber *int `json:"issue_number,omitempty"`
}

// UnfreezeRequest is the payload for ending a repository's active freezes.
type UnfreezeRequest struct {
	InstallationID int64  `json:"installation_id"`
	Repository     string `json:"repository"`
	Actor          string `json:"actor"`
}

// UnlockRequest is the payload for granting one pull request an override.
type UnlockRequest struct {
	InstallationID int64  `json:"installation_id"`
	Repository     string `json:"repository"`
	PRNumber       int    `json:"pr_number"`
	Actor          string `json:"actor"`
}

// APIResponse is the common envelope for freeze API responses.
type APIResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message,omitempty"`
	Record  *FreezeRecord `json:"record,omitempty"`
	Unlock  *UnlockedPr   `json:"unlock,omitempty"`
}
