package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ICEcream2714/ktpm-btl-cs4/cmd/server/internal/bridge"
	"github.com/ICEcream2714/ktpm-btl-cs4/pkg/models"
)

// Compile-time check to ensure Direct implements Publisher
var _ Publisher = (*Direct)(nil)

// Direct delivers updates synchronously through the fan-out bridge. Only
// currently connected sockets receive anything; there is no queue and no
// redelivery. Used when the broker is disabled and as the degraded path when
// a broker publish fails.
type Direct struct {
	fanout *bridge.FanOut
}

func NewDirect(fanout *bridge.FanOut) *Direct {
	return &Direct{fanout: fanout}
}

func (d *Direct) PublishObservation(_ context.Context, obs models.Observation) error {
	value, env, err := encodeObservation(obs)
	if err != nil {
		return err
	}

	if err := d.fanout.ForwardValue(obs.ID, value); err != nil {
		return err
	}
	return d.fanout.ForwardType(obs.Category, env)
}

func (d *Direct) PublishTombstone(_ context.Context, category, id string) error {
	value, env, err := encodeTombstone(category, id)
	if err != nil {
		return err
	}

	if err := d.fanout.ForwardValue(id, value); err != nil {
		return err
	}
	return d.fanout.ForwardType(category, env)
}

// encodeObservation produces the identity-topic payload (the raw observation)
// and the category-topic envelope ({type, item}).
func encodeObservation(obs models.Observation) (value, envelope []byte, err error) {
	value, err = json.Marshal(obs)
	if err != nil {
		return nil, nil, fmt.Errorf("encode observation: %w", err)
	}
	envelope, err = json.Marshal(models.ItemUpdate(obs))
	if err != nil {
		return nil, nil, fmt.Errorf("encode envelope: %w", err)
	}
	return value, envelope, nil
}

func encodeTombstone(category, id string) (value, envelope []byte, err error) {
	value, err = json.Marshal(models.TombstoneMsg{Deleted: true, ID: id, Category: category})
	if err != nil {
		return nil, nil, fmt.Errorf("encode tombstone: %w", err)
	}
	envelope, err = json.Marshal(models.TombstoneUpdate(category, id))
	if err != nil {
		return nil, nil, fmt.Errorf("encode tombstone envelope: %w", err)
	}
	return value, envelope, nil
}
