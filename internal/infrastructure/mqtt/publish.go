package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/hsm-core/internal/archive"
)

// maxPayloadSize caps a single message. An event carries one path, so
// anything near this is a bug rather than a long file name.
const maxPayloadSize = 64 << 10

// Publish sends payload to topic and waits for the broker to acknowledge
// it, for defaultPublishTimeout or until ctx is done, whichever is first.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	// Validate inputs
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %s: payload of %d bytes exceeds %d", ErrPublishFailed, topic, len(payload), maxPayloadSize)
	}

	// Check connection state
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := waitToken(ctx, c.client.Publish(topic, qos, retained, payload)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// waitToken blocks until tok completes, ctx is done or the publish timeout
// passes.
func waitToken(ctx context.Context, tok pahomqtt.Token) error {
	ctx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w after %v", ErrAckTimeout, defaultPublishTimeout)
		}
		return ctx.Err()
	}
}

// Publisher publishes archive events to <prefix>/archive/<op>.
// It implements archive.Observer.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher over a connected client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// ObserveArchiveEvent publishes ev with the configured QoS. Events are not
// retained: a late subscriber wants the journal, not the last release.
func (p *Publisher) ObserveArchiveEvent(ctx context.Context, ev archive.Event) error {
	payload, err := json.Marshal(NewEventMessage(ev, p.client.cfg.Broker.ClientID))
	if err != nil {
		return fmt.Errorf("%w: encoding %s event for %s: %w", ErrPublishFailed, ev.Op, ev.Path, err)
	}
	topic := p.client.topics.ArchiveEvent(string(ev.Op))
	return p.client.Publish(ctx, topic, payload, byte(p.client.cfg.QoS), false)
}
