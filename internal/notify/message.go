package notify

import (
	"fmt"
	"html"
	"strings"

	"github.com/vesaa/queuewatch/internal/models"
)

// Subject returns the plain-text subject line for an event.
func Subject(ev Event) string {
	switch ev.Stage {
	case models.StageRecovery:
		return fmt.Sprintf("Traffic recovered: %s", ev.Entity)
	case models.StageSecond:
		return fmt.Sprintf("Low traffic alert (escalated): %s", ev.Entity)
	default:
		return fmt.Sprintf("Low traffic alert: %s", ev.Entity)
	}
}

// RenderHTML renders the shared HTML message body for an event.
// Entity name and target come from router/operator input and are escaped for
// HTML unconditionally — both Telegram (ParseMode HTML) and the email body are
// markup-bearing, and unescaped queue names would be an injection vector.
func RenderHTML(ev Event) string {
	name := html.EscapeString(ev.Entity)
	target := html.EscapeString(ev.Target)

	var b strings.Builder
	switch ev.Stage {
	case models.StageRecovery:
		fmt.Fprintf(&b, "✅ <b>%s</b> traffic is back above threshold.\n", name)
		fmt.Fprintf(&b, "Current rate: <b>%.1f KB/s</b> (threshold %d KB/s)\n", ev.TrafficKb, ev.ThresholdKb)
	default:
		fmt.Fprintf(&b, "⚠️ <b>%s</b> traffic dropped below threshold.\n", name)
		fmt.Fprintf(&b, "Current rate: <b>%.1f KB/s</b> (threshold %d KB/s)\n", ev.TrafficKb, ev.ThresholdKb)
		if ev.Stage == models.StageSecond {
			b.WriteString("\n<b>Still below threshold — escalated notice.</b>\n")
		}
	}
	if target != "" {
		fmt.Fprintf(&b, "Target: <code>%s</code>\n", target)
	}
	fmt.Fprintf(&b, "Time: %s", ev.When.UTC().Format("2006-01-02 15:04:05"))
	return b.String()
}
