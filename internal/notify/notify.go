// Package notify pushes run summaries to operator channels.
package notify

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/containrrr/shoutrrr"
	"golang.org/x/sync/errgroup"

	"github.com/restartcheck/restartcheck/internal/audit"
)

// DefaultTemplate formats the summary line. The verbs receive, in order,
// the pending-restart count, the total row count and the failure count.
const DefaultTemplate = "restartcheck: %d of %d nodes pending restart (%d check failures)"

// Notifier sends run summaries to zero or more shoutrrr URLs.
type Notifier struct {
	urls     []string
	template string
	logger   *slog.Logger
}

func New(urls []string, template string, logger *slog.Logger) *Notifier {
	if template == "" {
		template = DefaultTemplate
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{urls: urls, template: template, logger: logger}
}

// Message renders the notification text for a summary.
func Message(template string, s audit.RunSummary) string {
	if template == "" {
		template = DefaultTemplate
	}
	return fmt.Sprintf(template, s.PendingRestart, s.Total, s.Failed)
}

// Send delivers the summary to every configured URL in parallel and returns
// the first delivery error. With no URLs configured it is a no-op.
func (n *Notifier) Send(summary audit.RunSummary) error {
	if len(n.urls) == 0 {
		return nil
	}
	msg := Message(n.template, summary)
	var g errgroup.Group
	for _, url := range n.urls {
		g.Go(func() error {
			if err := shoutrrr.Send(url, msg); err != nil {
				return fmt.Errorf("notifying %s: %w", scheme(url), err)
			}
			n.logger.Debug("notification sent", "service", scheme(url))
			return nil
		})
	}
	return g.Wait()
}

// scheme names the target service without leaking tokens embedded in the URL.
func scheme(url string) string {
	if i := strings.Index(url, ":"); i > 0 {
		return url[:i]
	}
	return "notification"
}
