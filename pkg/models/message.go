package models

type Message struct {
	ID           string `json:"id"`
	Conversation string `json:"conversation"`
	Sender       string `json:"sender"`
	Receiver     string `json:"receiver"`
	Body         string `json:"body"`
	TS           int64  `json:"ts"`
	// Edited is set when the body has been changed after creation.
	Edited bool `json:"edited,omitempty"`
	// Parent is the id of the message this one replies to. Set only at
	// creation time to an already-existing message; never rebound.
	Parent string `json:"parent,omitempty"`
	// SortKey is the timestamp-ordered key suffix assigned at creation.
	// Persisted so index entries can be reconstructed without scans.
	SortKey string `json:"sort_key,omitempty"`
}
