package store

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/pebble"

	"parley/pkg/logger"
	"parley/pkg/models"
)

// ListNotifications returns a user's notifications in creation order.
func ListNotifications(userID string) ([]models.Notification, error) {
	if err := ready(); err != nil {
		return nil, err
	}
	countRead()
	vals, err := scanPrefix("notif:" + userID + ":")
	if err != nil {
		return nil, err
	}
	out := make([]models.Notification, 0, len(vals))
	for _, v := range vals {
		var n models.Notification
		if err := json.Unmarshal(v, &n); err != nil {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// MarkNotificationRead flips the read flag on a user's notification.
// Marking an already-read notification is a no-op, not an error.
func MarkNotificationRead(userID, id string) (models.Notification, error) {
	var n models.Notification
	if err := ready(); err != nil {
		return n, err
	}
	countRead()
	key := "notif:" + userID + ":" + id
	v, err := getRaw(key)
	if err != nil {
		return n, err
	}
	if err := json.Unmarshal(v, &n); err != nil {
		return n, err
	}
	if n.Read {
		return n, nil
	}
	n.Read = true
	data, err := json.Marshal(n)
	if err != nil {
		return n, err
	}
	if err := db.Set([]byte(key), data, pebble.Sync); err != nil {
		logger.Error("mark_notification_read_failed", "user", userID, "notification", id, "error", err)
		return n, err
	}
	logger.Info("notification_read", "user", userID, "notification", id)
	return n, nil
}

// SweepReadNotifications deletes read notifications created before the
// cutoff. Used by the retention scheduler. Returns the number removed.
func SweepReadNotifications(cutoff time.Time) (int, error) {
	if err := ready(); err != nil {
		return 0, err
	}
	countRead()
	keys, err := scanPrefixKeys("notif:")
	if err != nil {
		return 0, err
	}
	b := db.NewBatch()
	defer b.Close()
	removed := 0
	for _, k := range keys {
		v, err := getRaw(k)
		if err != nil {
			continue
		}
		var n models.Notification
		if err := json.Unmarshal(v, &n); err != nil {
			continue
		}
		if !n.Read || n.CreatedTS >= cutoff.UTC().UnixNano() {
			continue
		}
		_ = b.Delete([]byte(k), nil)
		_ = b.Delete([]byte("notifmsg:"+n.Message+":"+n.User+":"+n.ID), nil)
		removed++
	}
	if removed == 0 {
		return 0, nil
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return 0, err
	}
	notificationsSwept.Add(float64(removed))
	logger.Info("notifications_swept", "removed", removed)
	return removed, nil
}
