package models

type Conversation struct {
	ID string `json:"id"`
	// Participants holds the user ids with access to the conversation.
	Participants []string `json:"participants"`
	// Created timestamp (ns)
	CreatedTS int64 `json:"created_ts,omitempty"`
	// Updated timestamp (ns) - last time a message was added
	UpdatedTS int64 `json:"updated_ts,omitempty"`
}

// HasParticipant reports whether the given user id is a participant.
func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
