package notify

import (
	"context"

	"realtime-chat/internal/models"
	"realtime-chat/pkg/logger"
)

// LogNotifier only logs; used when no queue backend is configured.
type LogNotifier struct {
	log           *logger.Logger
	previewLength int
}

func NewLogNotifier(log *logger.Logger, previewLength int) *LogNotifier {
	return &LogNotifier{log: log, previewLength: previewLength}
}

func (n *LogNotifier) Notify(_ context.Context, recipient, sender models.Identity, summary Summary) error {
	note := Build(recipient, sender, summary, n.previewLength)
	n.log.Info("offline notification for %s from %s: %q", note.RecipientEmail, note.SenderName, note.MessagePreview)
	return nil
}
