package engine

import (
	"fmt"
	"html"
	"strings"

	"github.com/sentinelshare/sentinel/internal/core"
	"github.com/sentinelshare/sentinel/internal/rules"
)

// renderForward builds the outbound subject and HTML body for a forwarded
// receipt. The quoted From line and the command footer are load-bearing: the
// reply parser extracts the original sender from the former and the command
// keywords from the latter.
func renderForward(msg *core.Message, verdict *core.Verdict) (subject, body string) {
	subject = "Fwd: " + msg.Subject

	var b strings.Builder
	b.WriteString("<div>")
	b.WriteString(fmt.Sprintf("<p><b>Category:</b> %s", html.EscapeString(verdict.Category)))
	if verdict.Amount > 0 {
		b.WriteString(fmt.Sprintf(" &middot; <b>Amount:</b> $%.2f", verdict.Amount))
	}
	b.WriteString("</p>")
	b.WriteString(fmt.Sprintf("<p>From: %s<br>Subject: %s</p>",
		html.EscapeString(rules.NormalizeFrom(msg.From)),
		html.EscapeString(msg.Subject)))
	b.WriteString("<hr>")
	b.WriteString("<div>" + html.EscapeString(msg.Body) + "</div>")
	b.WriteString("<hr>")
	b.WriteString(footer(verdict.Category))
	b.WriteString("</div>")
	return subject, b.String()
}

// footer is the reply contract appended to every forwarded receipt.
func footer(category string) string {
	category = html.EscapeString(category)
	var b strings.Builder
	b.WriteString("<p style=\"color:#888;font-size:12px\">")
	b.WriteString("Reply <b>STOP</b> to pause this sender, ")
	b.WriteString(fmt.Sprintf("<b>STOP %s</b> to block the whole category, ", category))
	b.WriteString("<b>MORE &lt;sender&gt;</b> to always forward, ")
	b.WriteString("<b>SETTINGS</b> for your current settings, ")
	b.WriteString("or <b>NEVERMIND</b> to cancel a pending block.")
	b.WriteString("</p>")
	return b.String()
}
