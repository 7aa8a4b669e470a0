package auth

import (
	"parley/pkg/models"
)

// CanViewConversation reports whether the actor may read a conversation
// and its messages: superusers always, otherwise participants only.
func CanViewConversation(u models.User, c models.Conversation) bool {
	if u.Superuser {
		return true
	}
	return c.HasParticipant(u.ID)
}

// CanMutateMessage reports whether the actor may update or delete a
// message: superusers always, otherwise only the original sender.
func CanMutateMessage(u models.User, m models.Message) bool {
	if u.Superuser {
		return true
	}
	return m.Sender == u.ID
}
