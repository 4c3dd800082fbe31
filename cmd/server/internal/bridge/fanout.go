package bridge

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/ICEcream2714/ktpm-btl-cs4/cmd/server/internal/protocol"
	"github.com/ICEcream2714/ktpm-btl-cs4/pkg/models"
)

// Broadcaster is the registry surface the bridge needs.
type Broadcaster interface {
	PublishToKey(key string, frame []byte)
}

// FanOut translates broker envelopes into wire frames and hands them to the
// subscriber registry. Forwarding is idempotent: a duplicate delivery makes
// subscribers re-render the same value, nothing more. Both the broker
// consumers and the direct (broker-disabled) publish path go through here.
type FanOut struct {
	hub    Broadcaster
	logger *zap.Logger
}

func NewFanOut(hub Broadcaster, logger *zap.Logger) *FanOut {
	return &FanOut{hub: hub, logger: logger}
}

// ForwardValue routes an identity-topic payload (observation or tombstone
// JSON) to subscribers of that observation id.
func (f *FanOut) ForwardValue(routingKey string, payload []byte) error {
	if routingKey == "" {
		return fmt.Errorf("value update without routing key")
	}
	if !json.Valid(payload) {
		return fmt.Errorf("value update payload is not valid JSON")
	}

	f.hub.PublishToKey(routingKey, protocol.ValueUpdateFrame(payload))
	return nil
}

// ForwardType decodes a category-topic envelope and routes it to subscribers
// of that category. The decoded type wins over the routing key; the two only
// diverge on a misrouted message.
func (f *FanOut) ForwardType(routingKey string, payload []byte) error {
	env, err := models.DecodeEnvelope(payload)
	if err != nil {
		return err
	}

	if env.Type != routingKey {
		f.logger.Warn("Envelope type differs from routing key",
			zap.String("routing_key", routingKey), zap.String("type", env.Type))
	}

	f.hub.PublishToKey(env.Type, protocol.TypeUpdateFrame(payload))
	return nil
}
