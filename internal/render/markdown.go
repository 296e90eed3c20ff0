// Package render normalizes backend message text for terminal output and
// notifications. Agent messages may arrive as HTML fragments; they are
// converted to markdown and truncated to a display budget.
package render

import (
	"fmt"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

const maxMessageChars = 2000

// Message normalizes a single event message for display. Plain text passes
// through unchanged; HTML is converted to markdown. Conversion failures fall
// back to the raw text rather than dropping the message.
func Message(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	if looksLikeHTML(text) {
		md, err := htmltomarkdown.ConvertString(text)
		if err == nil {
			text = strings.TrimSpace(md)
		}
	}

	return Truncate(text, maxMessageChars)
}

// Truncate cuts text to at most max bytes, appending a marker when anything
// was removed. The cut lands on a rune boundary so a multibyte character is
// never split.
func Truncate(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "\n\n[Content truncated]"
}

// looksLikeHTML is a cheap check for markup worth converting. Anything with
// a closing tag or common void element qualifies.
func looksLikeHTML(text string) bool {
	if !strings.Contains(text, "<") {
		return false
	}
	for _, marker := range []string{"</", "<br", "<p>", "<p ", "<div", "<ul", "<ol", "<li", "<b>", "<i>", "<code", "<pre", "<a "} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// Summary formats a one-line completion summary for a session.
func Summary(sessionID string, failed bool, detail string) string {
	state := "completed"
	if failed {
		state = "failed"
	}
	if detail == "" {
		return fmt.Sprintf("session %s %s", sessionID, state)
	}
	return fmt.Sprintf("session %s %s: %s", sessionID, state, detail)
}
