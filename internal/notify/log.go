// internal/notify/log.go
package notify

import "log/slog"

// LogHandler writes notifications to the structured log. Used as the default
// channel when no external notifier is configured; targets look like "log:".
func LogHandler(_ string, n Notification) error {
	if n.Failed {
		slog.Warn("session failed", "session", n.SessionID, "summary", n.Summary)
	} else {
		slog.Info("session complete", "session", n.SessionID, "summary", n.Summary)
	}
	return nil
}
