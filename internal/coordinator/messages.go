package coordinator

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/release-signoff/internal/release"
)

// Message construction is pure string assembly over session snapshots so it
// can run outside the store lock.

func announcementMessage(s *release.Session) string {
	var b strings.Builder
	b.WriteString("Hi team! 🚀\n\n")
	fmt.Fprintf(&b, "Release *%s %s* is scheduled for:\n", s.ServiceName, s.Version)
	fmt.Fprintf(&b, "• Day 1 (prep): %s\n", s.Day1Date)
	fmt.Fprintf(&b, "• Day 2 (deploy): %s\n\n", s.Day2Date)
	fmt.Fprintf(&b, "Please sign off on your changes by *%s*:\n\n", formatCutoff(s.CutoffTime))

	for _, item := range s.Items {
		fmt.Fprintf(&b, "• ❌ <@%s> — #%d: %s\n", item.Author, item.ID, item.Title)
	}
	if len(s.Items) == 0 {
		b.WriteString("_No changes require sign-off for this release._\n")
	}

	b.WriteString("\nTo sign off, reply in this thread: `@release_rc signed off`\n")
	b.WriteString("For status: `@release_rc status`\n")
	b.WriteString("To abort: `@release_rc abort`\n\n")
	fmt.Fprintf(&b, "Release Coordinator: %s", s.CoordinatorHandle)
	return b.String()
}

func confirmationMessage(actorID string) string {
	return fmt.Sprintf("✅ <@%s> signed off! Thank you.", actorID)
}

func reminderMessage(s *release.Session, pending []string, remaining time.Duration) string {
	urgency := "🔔 *Gentle Reminder*"
	switch {
	case remaining <= time.Hour:
		urgency = "🚨 *FINAL REMINDER*"
	case remaining <= 4*time.Hour:
		urgency = "⏰ *Reminder*"
	}

	var b strings.Builder
	b.WriteString(urgency)
	fmt.Fprintf(&b, "\n\n📢 Please sign off by *%s* (%s remaining):\n\n", formatCutoff(s.CutoffTime), formatRemaining(remaining))
	for _, author := range pending {
		fmt.Fprintf(&b, "• <@%s>\n", author)
	}
	b.WriteString("\nReply: `@release_rc signed off`")
	return b.String()
}

func statusMessage(s *release.Session, now time.Time) string {
	var signed, pending []string
	for _, item := range s.Items {
		line := fmt.Sprintf("• %s <@%s> — #%d: %s", statusMark(item.Acknowledged), item.Author, item.ID, item.Title)
		if item.Acknowledged {
			signed = append(signed, line)
		} else {
			pending = append(pending, line)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 *Sign-off Status for %s %s*\n\n", s.ServiceName, s.Version)
	if len(signed) > 0 {
		b.WriteString("*Completed:*\n")
		b.WriteString(strings.Join(signed, "\n"))
		b.WriteString("\n\n")
	}
	if len(pending) > 0 {
		b.WriteString("*Pending:*\n")
		b.WriteString(strings.Join(pending, "\n"))
		b.WriteString("\n\n")
		if s.Resolved() {
			fmt.Fprintf(&b, "⏰ Cutoff passed at %s — sign-off state is frozen.", formatCutoff(s.CutoffTime))
		} else {
			fmt.Fprintf(&b, "⏰ Cutoff: %s (%s remaining)", formatCutoff(s.CutoffTime), formatRemaining(s.CutoffTime.Sub(now)))
		}
	} else {
		b.WriteString("🎉 All changes signed off!")
	}
	return b.String()
}

func earlyCompletionMessage(s *release.Session) string {
	return fmt.Sprintf(`🎉 *All changes signed off early!*

Every author has signed off for *%s %s*.

%s the release is ready to proceed ahead of schedule!`, s.ServiceName, s.Version, s.CoordinatorHandle)
}

func cutoffSuccessMessage(s *release.Session) string {
	return fmt.Sprintf(`🎉 *All changes signed off!* Ready for review.

Release *%s %s* is ready to proceed.

%s please proceed with the release process.`, s.ServiceName, s.Version, s.CoordinatorHandle)
}

func cutoffEscalationMessage(s *release.Session, pending []string) string {
	var b strings.Builder
	b.WriteString("⚠️ *Sign-off incomplete*\n\n")
	fmt.Fprintf(&b, "The following authors have not signed off by the cutoff `%s`:\n", formatCutoff(s.CutoffTime))
	for _, author := range pending {
		fmt.Fprintf(&b, "• <@%s>\n", author)
	}
	b.WriteString("\nTheir changes will be removed from the release.\n\n")
	fmt.Fprintf(&b, "%s please review and proceed accordingly.", s.CoordinatorHandle)
	return b.String()
}

func abortMessage(s *release.Session) string {
	return fmt.Sprintf("🛑 Release workflow for *%s %s* aborted. All reminders cancelled. You can trigger a new workflow anytime.", s.ServiceName, s.Version)
}

func statusMark(acknowledged bool) string {
	if acknowledged {
		return "✅"
	}
	return "❌"
}

func formatCutoff(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Minute)
	hours := int(d / time.Hour)
	minutes := int(d % time.Hour / time.Minute)
	if hours == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh%02dm", hours, minutes)
}
