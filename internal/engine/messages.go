package engine

import (
	"fmt"
	"strings"
	"time"
)

// User-facing acknowledgement messages posted as issue comments. All
// messages are Markdown.

// freezeSuccessMessage acknowledges a newly created freeze.
func freezeSuccessMessage(repository string, duration *time.Duration, reason *string) string {
	return fmt.Sprintf(
		"## ❄️ Repository Frozen\n\n"+
			"🔒 **Repository `%s` has been frozen**%s%s\n\n"+
			"> 🚨 **Important**: All pull requests are now blocked until the freeze is lifted.\n\n"+
			"*Use `/unfreeze` to lift the freeze when ready.*",
		repository, formatDuration(duration), formatReason(reason),
	)
}

// scheduleSuccessMessage acknowledges a freeze scheduled for a future start.
func scheduleSuccessMessage(repository string, start time.Time) string {
	return fmt.Sprintf(
		"## ⏰ Freeze Scheduled\n\n"+
			"🔒 **Repository `%s` will freeze at %s**\n\n"+
			"*Use `/unfreeze` to cancel once the freeze activates.*",
		repository, start.UTC().Format("2006-01-02 15:04:05 UTC"),
	)
}

// unfreezeSuccessMessage acknowledges an ended freeze.
func unfreezeSuccessMessage(repository string) string {
	return fmt.Sprintf(
		"## 🌞 Repository Unfrozen\n\n"+
			"✅ **Repository `%s` has been unfrozen**\n\n"+
			"> 🎉 **All systems go**: Pull requests are now allowed.\n\n"+
			"*The freeze has been successfully lifted.*",
		repository,
	)
}

// unlockSuccessMessage acknowledges a per-PR override.
func unlockSuccessMessage(repository string, prNumber int) string {
	return fmt.Sprintf(
		"## 🔓 Pull Request Unlocked\n\n"+
			"✅ **Pull request #%d in `%s` may now merge despite the active freeze**\n\n"+
			"*The override is cleared automatically when the freeze ends.*",
		prNumber, repository,
	)
}

// formatDuration renders a freeze duration for display.
func formatDuration(duration *time.Duration) string {
	if duration == nil {
		return ""
	}
	total := int(duration.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60

	switch {
	case hours > 0:
		return fmt.Sprintf(" for **%dh %dm**", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf(" for **%dm**", minutes)
	default:
		return " for a **short duration**"
	}
}

// formatReason renders an optional freeze reason for display.
func formatReason(reason *string) string {
	if reason == nil || strings.TrimSpace(*reason) == "" {
		return ""
	}
	return fmt.Sprintf("\n\n**Reason**: _%s_", strings.TrimSpace(*reason))
}
