package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope is the payload carried on the category topic. It is a tagged
// variant decoded exactly once at the consumer boundary:
//
//	ItemUpdate  {type, item}
//	BulkUpdate  {type, items}
//	Tombstone   {type, deleted:true, id}
type Envelope struct {
	Type    string        `json:"type"`
	Item    *Observation  `json:"item,omitempty"`
	Items   []Observation `json:"items,omitempty"`
	Deleted bool          `json:"deleted,omitempty"`
	ID      string        `json:"id,omitempty"`
}

// TombstoneMsg is the identity-topic payload marking a record as deleted.
type TombstoneMsg struct {
	Deleted  bool   `json:"deleted"`
	ID       string `json:"id"`
	Category string `json:"category"`
}

var ErrBadEnvelope = errors.New("malformed envelope")

// ItemUpdate wraps a freshly persisted observation for the category topic.
func ItemUpdate(obs Observation) Envelope {
	return Envelope{Type: obs.Category, Item: &obs}
}

// BulkUpdate wraps a snapshot of observations for a single category.
func BulkUpdate(category string, items []Observation) Envelope {
	return Envelope{Type: category, Items: items}
}

// TombstoneUpdate marks an observation of the given category as deleted.
func TombstoneUpdate(category, id string) Envelope {
	return Envelope{Type: category, Deleted: true, ID: id}
}

// DecodeEnvelope parses a category-topic payload and validates its shape.
func DecodeEnvelope(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrBadEnvelope)
	}
	if env.Deleted && env.ID == "" {
		return Envelope{}, fmt.Errorf("%w: tombstone without id", ErrBadEnvelope)
	}
	return env, nil
}
