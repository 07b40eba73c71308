package client

import "encoding/json"

const (
	eventTypeFull = "full"
	eventTypeDiff = "diff"
)

// SubscriptionEvent is the wrapper object received from the server.
type SubscriptionEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}
