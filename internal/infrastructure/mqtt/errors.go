package mqtt

import "errors"

// Errors returned by the MQTT client. Check them with errors.Is.
var (
	// ErrNotConnected is returned while the broker link is down, including
	// between automatic reconnects.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrConnectionFailed wraps the reason Connect could not reach the broker.
	ErrConnectionFailed = errors.New("mqtt: cannot connect to broker")

	// ErrPublishFailed wraps a rejected, oversized or unacknowledged
	// archive event.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when the events subscription is refused.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed is returned when an unsubscribe is refused.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrAckTimeout is wrapped when the broker does not acknowledge in time.
	ErrAckTimeout = errors.New("mqtt: no acknowledgement")

	// ErrInvalidQoS is returned for a QoS other than 0, 1 or 2.
	ErrInvalidQoS = errors.New("mqtt: QoS must be 0, 1 or 2")

	// ErrInvalidTopic is returned for an empty topic.
	ErrInvalidTopic = errors.New("mqtt: empty topic")
)
