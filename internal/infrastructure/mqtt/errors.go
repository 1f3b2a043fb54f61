package mqtt

import "errors"

// Sentinel errors returned by Client. Publish, Subscribe and Unsubscribe
// wrap the broker's reason, so match with errors.Is.
var (
	// ErrNotConnected means the broker link is down. Messages are not
	// queued for later delivery.
	ErrNotConnected = errors.New("mqtt: not connected to broker")

	// ErrConnectionFailed wraps the reason Connect could not reach the
	// broker.
	ErrConnectionFailed = errors.New("mqtt: broker connection failed")

	// ErrPublishFailed wraps a rejected or failed publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed covers a nil handler as well as a rejected
	// subscription.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed wraps a rejected unsubscribe.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS rejects QoS levels above 2.
	ErrInvalidQoS = errors.New("mqtt: qos must be 0, 1 or 2")

	// ErrInvalidTopic rejects an empty topic.
	ErrInvalidTopic = errors.New("mqtt: empty topic")

	// ErrTimeout means the broker did not answer before the context
	// deadline.
	ErrTimeout = errors.New("mqtt: broker did not answer in time")
)
