package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"

	"parley/pkg/logger"
	"parley/pkg/models"
	"parley/pkg/utils"
)

// Key namespaces:
//   msg:<id>                    -> Message JSON (canonical record)
//   conv:<cid>:msg:<sort>       -> message id
//   reply:<parent>:<sort>       -> child message id (adjacency index)
//   hist:<mid>:<sort>           -> MessageHistory JSON (append-only)
//   notif:<uid>:<nid>           -> Notification JSON
//   notifmsg:<mid>:<uid>:<nid>  -> "" (reverse index for cascade)
//
// Mutations stage the record, its index entries and any hook side
// effects into a single batch committed with Sync, so readers never
// observe a message without its notification or an edited flag without
// its history row.

// CreateMessage durably creates a message together with its index
// entries and the receiver's notification. The parent, when given, must
// already exist in the same conversation; parents are never rebound.
func CreateMessage(m models.Message) (models.Message, error) {
	if err := ready(); err != nil {
		return m, err
	}
	if m.Parent != "" {
		if m.Parent == m.ID {
			return m, fmt.Errorf("message cannot reply to itself")
		}
		parent, err := GetMessage(m.Parent)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return m, fmt.Errorf("parent message %s: %w", m.Parent, ErrNotFound)
			}
			return m, err
		}
		if parent.Conversation != m.Conversation {
			return m, fmt.Errorf("parent message belongs to another conversation")
		}
	}
	if m.ID == "" {
		m.ID = utils.GenID()
	}
	if m.TS == 0 {
		m.TS = time.Now().UTC().UnixNano()
	}
	m.SortKey = utils.GenSortKey()
	m.Edited = false

	data, err := json.Marshal(m)
	if err != nil {
		return m, err
	}
	b := db.NewBatch()
	defer b.Close()
	_ = b.Set([]byte("msg:"+m.ID), data, nil)
	_ = b.Set([]byte("conv:"+m.Conversation+":msg:"+m.SortKey), []byte(m.ID), nil)
	if m.Parent != "" {
		_ = b.Set([]byte("reply:"+m.Parent+":"+m.SortKey), []byte(m.ID), nil)
	}
	_ = b.Set([]byte("usermsg:"+m.Sender+":"+m.ID), nil, nil)
	_ = b.Set([]byte("usermsg:"+m.Receiver+":"+m.ID), nil, nil)

	emitNotification(b, m)
	stageConversationTouch(b, m.Conversation, m.TS)

	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("create_message_failed", "message", m.ID, "conversation", m.Conversation, "error", err)
		return m, err
	}
	messagesCreated.Inc()
	logger.Info("message_created", "message", m.ID, "conversation", m.Conversation, "parent", m.Parent)
	return m, nil
}

// emitNotification stages exactly one unread notification for the
// receiver of a newly created message. Runs only on the create path;
// updates never emit.
func emitNotification(b *pebble.Batch, m models.Message) {
	n := models.Notification{
		ID:        utils.GenSortKey(),
		User:      m.Receiver,
		Message:   m.ID,
		CreatedTS: time.Now().UTC().UnixNano(),
	}
	data, err := json.Marshal(n)
	if err != nil {
		return
	}
	_ = b.Set([]byte("notif:"+n.User+":"+n.ID), data, nil)
	_ = b.Set([]byte("notifmsg:"+m.ID+":"+n.User+":"+n.ID), nil, nil)
	notificationsEmitted.Inc()
}

// UpdateMessage overwrites a message's body. When the stored body
// differs from the incoming one, a history row carrying the old body is
// staged and the edited flag set, all committed atomically with the
// content write. An identical body leaves history and flag untouched.
// A message deleted between the caller's read and this call surfaces as
// ErrNotFound; nothing is logged to history.
func UpdateMessage(id, body, editor string) (models.Message, error) {
	var m models.Message
	if err := ready(); err != nil {
		return m, err
	}
	old, err := GetMessage(id)
	if err != nil {
		return m, err
	}
	m = old
	m.Body = body

	b := db.NewBatch()
	defer b.Close()
	if old.Body != body {
		recordEditHistory(b, old, editor)
		m.Edited = true
	}
	data, err := json.Marshal(m)
	if err != nil {
		return m, err
	}
	_ = b.Set([]byte("msg:"+m.ID), data, nil)
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("update_message_failed", "message", id, "error", err)
		return m, err
	}
	logger.Info("message_updated", "message", id, "edited", m.Edited)
	return m, nil
}

// recordEditHistory stages the pre-update snapshot of a message body.
func recordEditHistory(b *pebble.Batch, old models.Message, editor string) {
	h := models.MessageHistory{
		Message:  old.ID,
		OldBody:  old.Body,
		Editor:   editor,
		EditedTS: time.Now().UTC().UnixNano(),
	}
	data, err := json.Marshal(h)
	if err != nil {
		return
	}
	_ = b.Set([]byte("hist:"+old.ID+":"+utils.GenSortKey()), data, nil)
	messageEdits.Inc()
}

// DeleteMessage removes a message, its reply subtree, history rows,
// index entries and any notifications referencing it, in one batch.
func DeleteMessage(id string) error {
	if err := ready(); err != nil {
		return err
	}
	m, err := GetMessage(id)
	if err != nil {
		return err
	}
	b := db.NewBatch()
	defer b.Close()
	if err := stageMessageDelete(b, m); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("delete_message_failed", "message", id, "error", err)
		return err
	}
	logger.Info("message_deleted", "message", id)
	return nil
}

// stageMessageDelete stages the removal of a message and everything
// referencing it: index entries, history rows, notifications, and the
// reply subtree (replies cascade with their parent).
func stageMessageDelete(b *pebble.Batch, m models.Message) error {
	_ = b.Delete([]byte("msg:"+m.ID), nil)
	_ = b.Delete([]byte("conv:"+m.Conversation+":msg:"+m.SortKey), nil)
	if m.Parent != "" {
		_ = b.Delete([]byte("reply:"+m.Parent+":"+m.SortKey), nil)
	}
	_ = b.Delete([]byte("usermsg:"+m.Sender+":"+m.ID), nil)
	_ = b.Delete([]byte("usermsg:"+m.Receiver+":"+m.ID), nil)

	histKeys, err := scanPrefixKeys("hist:" + m.ID + ":")
	if err != nil {
		return err
	}
	for _, k := range histKeys {
		_ = b.Delete([]byte(k), nil)
	}

	notifKeys, err := scanPrefixKeys("notifmsg:" + m.ID + ":")
	if err != nil {
		return err
	}
	for _, k := range notifKeys {
		rest := strings.TrimPrefix(k, "notifmsg:"+m.ID+":")
		_ = b.Delete([]byte("notif:"+rest), nil)
		_ = b.Delete([]byte(k), nil)
	}

	// Replies cascade with their parent.
	children, err := repliesOf(m.ID)
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := stageMessageDelete(b, c); err != nil {
			return err
		}
	}
	return nil
}

// GetMessage returns the canonical record for a message id.
func GetMessage(id string) (models.Message, error) {
	var m models.Message
	if err := ready(); err != nil {
		return m, err
	}
	countRead()
	v, err := getRaw("msg:" + id)
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(v, &m)
	return m, err
}

// ListConversationMessages returns a conversation's messages in
// insertion order.
func ListConversationMessages(convID string, limit ...int) ([]models.Message, error) {
	if err := ready(); err != nil {
		return nil, err
	}
	countRead()
	vals, err := scanPrefix("conv:" + convID + ":msg:")
	if err != nil {
		return nil, err
	}
	max := -1
	if len(limit) > 0 {
		max = limit[0]
	}
	out := make([]models.Message, 0, len(vals))
	for _, v := range vals {
		raw, err := getRaw("msg:" + string(v))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var m models.Message
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		out = append(out, m)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out, nil
}

// ListRepliesBatch returns the direct replies of every parent in one
// storage round-trip: a single iterator pass over the adjacency index,
// seeking each parent's prefix in key order. Results are grouped by
// parent, each group in insertion order.
func ListRepliesBatch(parents []string) (map[string][]models.Message, error) {
	if err := ready(); err != nil {
		return nil, err
	}
	if len(parents) == 0 {
		return map[string][]models.Message{}, nil
	}
	countRead()
	sorted := append([]string(nil), parents...)
	sort.Strings(sorted)

	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make(map[string][]models.Message, len(parents))
	for _, p := range sorted {
		pfx := []byte("reply:" + p + ":")
		for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
			if !bytes.HasPrefix(iter.Key(), pfx) {
				break
			}
			raw, gerr := getRaw("msg:" + string(iter.Value()))
			if errors.Is(gerr, ErrNotFound) {
				continue
			}
			if gerr != nil {
				return nil, gerr
			}
			var m models.Message
			if err := json.Unmarshal(raw, &m); err != nil {
				continue
			}
			out[p] = append(out[p], m)
		}
	}
	return out, iter.Error()
}

func repliesOf(parent string) ([]models.Message, error) {
	grouped, err := ListRepliesBatch([]string{parent})
	if err != nil {
		return nil, err
	}
	return grouped[parent], nil
}

// ListHistory returns the edit history of a message in chronological
// order (oldest snapshot first).
func ListHistory(msgID string) ([]models.MessageHistory, error) {
	if err := ready(); err != nil {
		return nil, err
	}
	countRead()
	vals, err := scanPrefix("hist:" + msgID + ":")
	if err != nil {
		return nil, err
	}
	out := make([]models.MessageHistory, 0, len(vals))
	for _, v := range vals {
		var h models.MessageHistory
		if err := json.Unmarshal(v, &h); err != nil {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

// ListHistoryBatch resolves the edit history of many messages in one
// storage round-trip, grouped by message id.
func ListHistoryBatch(msgIDs []string) (map[string][]models.MessageHistory, error) {
	if err := ready(); err != nil {
		return nil, err
	}
	if len(msgIDs) == 0 {
		return map[string][]models.MessageHistory{}, nil
	}
	countRead()
	sorted := append([]string(nil), msgIDs...)
	sort.Strings(sorted)

	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make(map[string][]models.MessageHistory)
	for _, id := range sorted {
		pfx := []byte("hist:" + id + ":")
		for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
			if !bytes.HasPrefix(iter.Key(), pfx) {
				break
			}
			var h models.MessageHistory
			if err := json.Unmarshal(append([]byte(nil), iter.Value()...), &h); err != nil {
				continue
			}
			out[id] = append(out[id], h)
		}
	}
	return out, iter.Error()
}

// stageConversationTouch bumps the conversation's UpdatedTS inside the
// same batch as the message write.
func stageConversationTouch(b *pebble.Batch, convID string, ts int64) {
	v, err := getRaw("conv:" + convID + ":meta")
	if err != nil {
		return
	}
	var c models.Conversation
	if err := json.Unmarshal(v, &c); err != nil {
		return
	}
	c.UpdatedTS = ts
	if data, err := json.Marshal(c); err == nil {
		_ = b.Set([]byte("conv:"+convID+":meta"), data, nil)
	}
}
