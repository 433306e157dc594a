// Package notify delivers competitor update digests.
package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/competitor-url-checker/internal/checker"
)

// Subject is the digest subject line.
const Subject = "Competitor URL Updates"

// Config names the digest sender and recipient.
type Config struct {
	Enabled   bool
	Sender    string
	Recipient string
}

// LogNotifier renders digests and writes them to the log.
type LogNotifier struct {
	cfg    Config
	logger *zap.Logger
}

var _ checker.Notifier = (*LogNotifier)(nil)

// NewLogNotifier builds a LogNotifier.
func NewLogNotifier(cfg Config, logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{cfg: cfg, logger: logger}
}

// SendUpdates logs the digest. Nothing is sent when disabled or when there are no updates.
func (n *LogNotifier) SendUpdates(ctx context.Context, updates []checker.EmailUpdate) error {
	if !n.cfg.Enabled || len(updates) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("send updates: %w", err)
	}
	n.logger.Info("competitor update digest",
		zap.String("from", n.cfg.Sender),
		zap.String("to", n.cfg.Recipient),
		zap.String("subject", Subject),
		zap.Int("updates", len(updates)),
		zap.String("body", Render(updates)),
	)
	return nil
}

// Render formats updates as the plain-text digest body.
func Render(updates []checker.EmailUpdate) string {
	var b strings.Builder
	b.WriteString(Subject)
	b.WriteString(":\n\n")
	for i, u := range updates {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Competitor: %s (Volume: %s) Your Page: %s (%d days older)",
			u.CompetitorURL, u.SearchVolume, u.OurURL, u.DaysOlder)
	}
	return b.String()
}
