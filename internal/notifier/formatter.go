package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"SwingSentinel/internal/model"
	"SwingSentinel/internal/window"
)

// AlertTitle is the short alert line, e.g. "EURUSD/4H/Swing High".
func AlertTitle(evt *model.AlertEvent) string {
	kind := "Swing"
	if evt.Formation == model.FormationSequence {
		kind = "Sequence"
	}
	side := "High"
	if evt.Direction == model.DirectionLow {
		side = "Low"
	}
	return fmt.Sprintf("%s/%s/%s %s", evt.Symbol, evt.Timeframe, kind, side)
}

// FormatAlert renders an alert event for chat delivery (HTML).
func FormatAlert(evt *model.AlertEvent) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("<b>%s</b>\n", html.EscapeString(AlertTitle(evt))))
	if evt.ChainLength > 1 {
		b.WriteString(fmt.Sprintf("Chain: %d\n", evt.ChainLength))
	}
	b.WriteString(fmt.Sprintf("Swing bar: %s\n", evt.AnchorTime.UTC().Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("Bar: %s UTC", evt.BarTime.UTC().Format("2006-01-02 15:04")))
	return b.String()
}

// FormatAlertMarkdown renders an alert event for Discord, which does not
// interpret HTML.
func FormatAlertMarkdown(evt *model.AlertEvent) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("**%s**\n", AlertTitle(evt)))
	if evt.ChainLength > 1 {
		b.WriteString(fmt.Sprintf("Chain: %d\n", evt.ChainLength))
	}
	b.WriteString(fmt.Sprintf("Swing bar: %s\n", evt.AnchorTime.UTC().Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("Bar: %s UTC", evt.BarTime.UTC().Format("2006-01-02 15:04")))
	return b.String()
}

// AlertFormatter is implemented by notifiers whose channel needs a markup
// other than Telegram HTML.
type AlertFormatter interface {
	FormatAlert(evt *model.AlertEvent) string
}

// Render formats evt for delivery through n.
func Render(n Notifier, evt *model.AlertEvent) string {
	if f, ok := n.(AlertFormatter); ok {
		return f.FormatAlert(evt)
	}
	return FormatAlert(evt)
}

// FormatPending renders the active chains for the /pending command.
func FormatPending(entries []window.PendingEntry) string {
	if len(entries) == 0 {
		return "No active swings."
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("<b>Active swings</b> | %s\n\n", time.Now().UTC().Format("2006-01-02 15:04")))
	for _, e := range entries {
		side := "High"
		if e.Pending.Direction == model.DirectionLow {
			side = "Low"
		}
		b.WriteString(fmt.Sprintf("%s/%s %s x%d (since %s)\n",
			html.EscapeString(e.Key.Symbol), e.Key.Timeframe, side, e.Pending.ChainLength,
			e.Pending.AnchorTime.UTC().Format("01-02 15:04")))
	}
	return strings.TrimRight(b.String(), "\n")
}
