package mqtt

import (
	"encoding/json"
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20

// Publish sends a message to the specified MQTT topic.
//
// Retained messages should be used for state topics (barrier state,
// connectivity) so new subscribers immediately see the current value;
// capture events are fire-and-forget and should not be retained.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishJSON marshals v and publishes it with the configured default
// QoS. Marshal or publish failures are logged, not returned; event
// fan-out must never fail a device operation.
func (c *Client) PublishJSON(topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Error("mqtt payload marshal failed", "topic", topic, "error", err)
		}
		return
	}

	if err := c.Publish(topic, payload, byte(c.cfg.QoS), retained); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("mqtt publish failed", "topic", topic, "error", err)
		}
	}
}

// PublishRetained publishes a retained message with the configured default QoS.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}
