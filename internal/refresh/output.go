package refresh

import (
	"fmt"

	"github.com/frostline/repofreeze/internal/github"
	"github.com/frostline/repofreeze/internal/model"
)

const timeLayout = "2006-01-02 15:04:05 UTC"

// frozenOutput builds the check run body shown on blocked pull requests.
func frozenOutput(freeze *model.FreezeRecord) github.CheckRunOutput {
	end := "No end time set"
	if freeze.ExpiresAt != nil {
		end = freeze.ExpiresAt.UTC().Format(timeLayout)
	}

	reason := "No reason provided"
	if freeze.Reason != nil && *freeze.Reason != "" {
		reason = *freeze.Reason
	}

	scope := "all branches"
	if freeze.Branch != nil {
		scope = fmt.Sprintf("branch `%s`", *freeze.Branch)
	}

	text := fmt.Sprintf(
		"**Repository Freeze Details**\n\n"+
			"- **Author**: %s\n"+
			"- **Start**: %s\n"+
			"- **End**: %s\n"+
			"- **Scope**: %s\n"+
			"- **Reason**: %s\n\n"+
			"This pull request cannot be merged while the repository is frozen. "+
			"Please wait for the freeze to end or contact the freeze author.",
		freeze.InitiatedBy,
		freeze.StartedAt.UTC().Format(timeLayout),
		end,
		scope,
		reason,
	)

	return github.CheckRunOutput{
		Title:   fmt.Sprintf("Repository is frozen by %s", freeze.InitiatedBy),
		Summary: "This repository is currently under a freeze restriction",
		Text:    text,
	}
}

// notFrozenOutput builds the check run body shown on mergeable pull requests.
func notFrozenOutput() github.CheckRunOutput {
	return github.CheckRunOutput{
		Title:   "Repository is not frozen",
		Summary: "This repository is currently not under any freeze restrictions",
		Text:    "Pull requests can be merged normally.",
	}
}
