package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ANIKETSHETTY47/grid-integrity-core/internal/domain"
)

const (
	controlTopicFmt = "meters/%s/control"
	ackTopicFilter  = "meters/+/ack"
)

func ControlTopic(meterID string) string { return fmt.Sprintf(controlTopicFmt, meterID) }
func AckTopic(meterID string) string     { return fmt.Sprintf("meters/%s/ack", meterID) }

// ControlChannel delivers control messages over MQTT and waits for the meter
// to acknowledge on its ack topic. The caller's context bounds the wait.
type ControlChannel struct {
	transport Transport

	mu      sync.Mutex
	pending map[string]chan domain.ControlAck
}

func NewControlChannel(t Transport) (*ControlChannel, error) {
	c := &ControlChannel{transport: t, pending: make(map[string]chan domain.ControlAck)}
	if err := t.Subscribe(ackTopicFilter, 1, c.onAck); err != nil {
		return nil, err
	}
	return c, nil
}

func waitKey(commandID, meterID string) string { return commandID + "/" + meterID }

func (c *ControlChannel) Send(ctx context.Context, msg domain.ControlMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := waitKey(msg.CommandID, msg.MeterID)
	ch := make(chan domain.ControlAck, 1)
	c.mu.Lock()
	c.pending[key] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
	}()

	if err := c.transport.Publish(ctx, ControlTopic(msg.MeterID), 1, payload); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeliveryFailure, err)
	}

	select {
	case ack := <-ch:
		if !ack.OK {
			return fmt.Errorf("%w: meter %s rejected command: %s", domain.ErrDeliveryFailure, msg.MeterID, ack.Error)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: meter %s: %v", domain.ErrDeliveryFailure, msg.MeterID, ctx.Err())
	}
}

func (c *ControlChannel) onAck(topic string, payload []byte) error {
	var ack domain.ControlAck
	if err := json.Unmarshal(payload, &ack); err != nil {
		return fmt.Errorf("decode ack on %s: %w", topic, err)
	}
	if ack.MeterID == "" {
		parts := strings.Split(topic, "/")
		if len(parts) == 3 {
			ack.MeterID = parts[1]
		}
	}

	c.mu.Lock()
	ch, ok := c.pending[waitKey(ack.CommandID, ack.MeterID)]
	c.mu.Unlock()
	if !ok {
		return nil // late or unknown ack
	}
	select {
	case ch <- ack:
	default:
	}
	return nil
}
