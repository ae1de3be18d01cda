package dispatch

import (
	"context"
	"time"

	"realtime-chat/internal/models"
	"realtime-chat/internal/notify"
)

// Delivery tracks one message after its optimistic emit.
type Delivery struct {
	Envelope models.Envelope
	// Online holds the user ids that received message-delivered.
	Online []string
	// Offline holds the participants that were not connected at send time.
	Offline []models.Identity

	messageType  notify.MessageType
	emitDuration time.Duration
	done         chan struct{}
	outcome      Outcome
}

// Outcome is the final state of a delivery.
type Outcome struct {
	Envelope            models.Envelope
	Message             *models.Message
	Err                 error
	Online              int
	Offline             int
	NotificationsQueued int
	EmitDuration        time.Duration
	PersistDuration     time.Duration
}

func (o Outcome) Confirmed() bool {
	return o.Err == nil && o.Message != nil
}

func (d *Delivery) finish(o Outcome) {
	d.outcome = o
	close(d.done)
}

// Done is closed once the message is confirmed or failed.
func (d *Delivery) Done() <-chan struct{} {
	return d.done
}

// Wait blocks for the outcome of the delivery.
func (d *Delivery) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-d.done:
		return d.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}
