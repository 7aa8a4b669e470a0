package models

type Notification struct {
	// ID is a timestamp-ordered key suffix, unique per user.
	ID string `json:"id"`
	// User is the notification's addressee.
	User    string `json:"user"`
	Message string `json:"message"`
	Read    bool   `json:"read,omitempty"`
	// Created timestamp (ns)
	CreatedTS int64 `json:"created_ts,omitempty"`
}

// MessageHistory is an append-only snapshot of a message body taken
// immediately before a content-changing update.
type MessageHistory struct {
	Message string `json:"message"`
	// OldBody is the body as stored before the update overwrote it.
	OldBody string `json:"old_body"`
	// Editor is the actor performing the edit; may be empty when the
	// recorder cannot attribute the change.
	Editor string `json:"editor,omitempty"`
	// Edited timestamp (ns)
	EditedTS int64 `json:"edited_ts"`
}
