package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"realtime-chat/internal/models"
)

const DefaultNATSSubject = "chat.notifications.offline"

// ConnectNATS dials url with unlimited reconnects.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.Timeout(3*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return nc, nil
}

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes one notification event per offline recipient.
type NATSPublisher struct {
	conn          publisher
	subject       string
	previewLength int
}

func NewNATSPublisher(conn publisher, subject string, previewLength int) *NATSPublisher {
	if subject == "" {
		subject = DefaultNATSSubject
	}
	return &NATSPublisher{conn: conn, subject: subject, previewLength: previewLength}
}

func (p *NATSPublisher) Notify(ctx context.Context, recipient, sender models.Identity, summary Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(Build(recipient, sender, summary, p.previewLength))
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish notification for %s: %w", recipient.ID, err)
	}
	return nil
}
