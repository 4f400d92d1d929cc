package mqtt

import "fmt"

// maxPayloadSize caps publishes at 1MB, in line with common broker limits.
// State documents are a few hundred bytes; anything near the cap is a bug.
const maxPayloadSize = 1 << 20

// Publish sends one message and waits for broker acknowledgment.
//
// Parameters:
//   - topic: destination topic, e.g. "dknbridge/state/dkn/12345"
//   - payload: message body, at most maxPayloadSize bytes
//   - qos: 0, 1, or 2
//   - retained: broker keeps the last message for new subscribers
//
// Returns:
//   - error: validation sentinel, ErrNotConnected, or ErrPublishFailed
//     wrapping the broker error or timeout
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validatePublish(topic, payload, qos); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// PublishRetained publishes a retained message at the configured QoS.
// State and connectivity topics use this so new subscribers see current
// values immediately.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}

func validatePublish(topic string, payload []byte, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	return nil
}
