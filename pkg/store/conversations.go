package store

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/pebble"

	"parley/pkg/logger"
	"parley/pkg/models"
)

// Key namespaces:
//   conv:<id>:meta        -> Conversation JSON
//   conv:<id>:msg:<sort>  -> message id (insertion order)

// SaveConversation stores conversation metadata under a reserved key.
func SaveConversation(c models.Conversation) error {
	if err := ready(); err != nil {
		return err
	}
	if c.CreatedTS == 0 {
		c.CreatedTS = time.Now().UTC().UnixNano()
	}
	if c.UpdatedTS == 0 {
		c.UpdatedTS = c.CreatedTS
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := db.Set([]byte("conv:"+c.ID+":meta"), data, pebble.Sync); err != nil {
		logger.Error("save_conversation_failed", "conversation", c.ID, "error", err)
		return err
	}
	logger.Info("conversation_saved", "conversation", c.ID, "participants", len(c.Participants))
	return nil
}

// GetConversation returns the stored conversation for a given ID.
func GetConversation(id string) (models.Conversation, error) {
	var c models.Conversation
	if err := ready(); err != nil {
		return c, err
	}
	countRead()
	v, err := getRaw("conv:" + id + ":meta")
	if err != nil {
		return c, err
	}
	err = json.Unmarshal(v, &c)
	return c, err
}

// ListConversationsFor returns all conversations the user participates in.
func ListConversationsFor(userID string) ([]models.Conversation, error) {
	all, err := listConversations()
	if err != nil {
		return nil, err
	}
	var out []models.Conversation
	for _, c := range all {
		if c.HasParticipant(userID) {
			out = append(out, c)
		}
	}
	return out, nil
}

// ListConversations returns every stored conversation (superuser listing).
func ListConversations() ([]models.Conversation, error) {
	return listConversations()
}

func listConversations() ([]models.Conversation, error) {
	if err := ready(); err != nil {
		return nil, err
	}
	countRead()
	keys, err := scanPrefixKeys("conv:")
	if err != nil {
		return nil, err
	}
	var out []models.Conversation
	for _, k := range keys {
		if len(k) < 5 || k[len(k)-5:] != ":meta" {
			continue
		}
		v, err := getRaw(k)
		if err != nil {
			continue
		}
		var c models.Conversation
		if err := json.Unmarshal(v, &c); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
