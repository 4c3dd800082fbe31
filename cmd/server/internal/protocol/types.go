package protocol

import "encoding/json"

const (
	ActionSubscribe      = "subscribe"
	ActionUnsubscribe    = "unsubscribe"
	ActionUnsubscribeAll = "unsubscribe_all"
)

const (
	EventValueUpdate = "value_update" // identity-keyed pushes
	EventTypeUpdate  = "type_update"  // category-keyed pushes
)

type WSRequest struct {
	Action string `json:"action"`
	Key    string `json:"key,omitempty"`
	ID     string `json:"id,omitempty"`
}

type WSResponse struct {
	Type    string `json:"type"`             // "ack", "error"
	ID      string `json:"id,omitempty"`     // Matches request ID
	Status  string `json:"status,omitempty"` // "success", "error"
	Message string `json:"message,omitempty"`
}

// ServerEvent is the push frame sent to live connections.
type ServerEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ValueUpdateFrame wraps an identity-keyed payload (observation JSON, a
// tombstone, or a literal string) into a wire frame.
func ValueUpdateFrame(data []byte) []byte {
	return marshalEvent(EventValueUpdate, data)
}

// TypeUpdateFrame wraps a category-keyed envelope into a wire frame.
func TypeUpdateFrame(data []byte) []byte {
	return marshalEvent(EventTypeUpdate, data)
}

func marshalEvent(event string, data []byte) []byte {
	b, err := json.Marshal(ServerEvent{Event: event, Data: data})
	if err != nil {
		// Data is always valid JSON produced by callers; this cannot fail
		// for well-formed input.
		return nil
	}
	return b
}
