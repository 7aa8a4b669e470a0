package store

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"

	"parley/pkg/logger"
	"parley/pkg/models"
)

// Key namespaces:
//   user:<id>            -> User JSON
//   username:<name>      -> user id
//   usermsg:<uid>:<mid>  -> "" (messages where uid is sender or receiver)

// CreateUser stores a new user and its username index entry. Returns
// ErrConflict when the username is taken.
func CreateUser(u models.User) error {
	if err := ready(); err != nil {
		return err
	}
	countRead()
	if _, err := getRaw("username:" + u.Username); err == nil {
		return ErrConflict
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if u.CreatedTS == 0 {
		u.CreatedTS = time.Now().UTC().UnixNano()
	}
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	b := db.NewBatch()
	defer b.Close()
	_ = b.Set([]byte("user:"+u.ID), data, nil)
	_ = b.Set([]byte("username:"+u.Username), []byte(u.ID), nil)
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("create_user_failed", "user", u.ID, "error", err)
		return err
	}
	logger.Info("user_created", "user", u.ID, "username", u.Username)
	return nil
}

// GetUser returns a user by id.
func GetUser(id string) (models.User, error) {
	var u models.User
	if err := ready(); err != nil {
		return u, err
	}
	countRead()
	v, err := getRaw("user:" + id)
	if err != nil {
		return u, err
	}
	err = json.Unmarshal(v, &u)
	return u, err
}

// GetUserByUsername resolves the username index and returns the user.
func GetUserByUsername(name string) (models.User, error) {
	var u models.User
	if err := ready(); err != nil {
		return u, err
	}
	countRead()
	id, err := getRaw("username:" + name)
	if err != nil {
		return u, err
	}
	v, err := getRaw("user:" + string(id))
	if err != nil {
		return u, err
	}
	err = json.Unmarshal(v, &u)
	return u, err
}

// GetUsers resolves a set of user ids in one round-trip. Unknown ids are
// skipped rather than failing the whole batch.
func GetUsers(ids []string) (map[string]models.User, error) {
	if err := ready(); err != nil {
		return nil, err
	}
	countRead()
	out := make(map[string]models.User, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		v, err := getRaw("user:" + id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var u models.User
		if err := json.Unmarshal(v, &u); err != nil {
			return nil, err
		}
		out[id] = u
	}
	return out, nil
}

// DeleteUser removes an account and everything hanging off it in one
// atomic batch: every message where the user is sender or receiver
// (with each message's history rows, indexes and notifications
// referencing it, for any owner), every notification addressed to the
// user, and finally the user record itself. Other users' data is
// untouched.
func DeleteUser(id string) error {
	if err := ready(); err != nil {
		return err
	}
	u, err := GetUser(id)
	if err != nil {
		return err
	}

	countRead()
	msgKeys, err := scanPrefixKeys("usermsg:" + id + ":")
	if err != nil {
		return err
	}

	b := db.NewBatch()
	defer b.Close()
	for _, k := range msgKeys {
		mid := strings.TrimPrefix(k, "usermsg:"+id+":")
		m, gerr := GetMessage(mid)
		if errors.Is(gerr, ErrNotFound) {
			_ = b.Delete([]byte(k), nil)
			continue
		}
		if gerr != nil {
			return gerr
		}
		if err := stageMessageDelete(b, m); err != nil {
			return err
		}
	}

	// Notifications addressed to the user, plus their reverse index rows.
	countRead()
	notifKeys, err := scanPrefixKeys("notif:" + id + ":")
	if err != nil {
		return err
	}
	for _, k := range notifKeys {
		nid := strings.TrimPrefix(k, "notif:"+id+":")
		v, gerr := getRaw(k)
		if gerr == nil {
			var n models.Notification
			if json.Unmarshal(v, &n) == nil {
				_ = b.Delete([]byte("notifmsg:"+n.Message+":"+id+":"+nid), nil)
			}
		}
		_ = b.Delete([]byte(k), nil)
	}

	_ = b.Delete([]byte("user:"+id), nil)
	_ = b.Delete([]byte("username:"+u.Username), nil)
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("delete_user_failed", "user", id, "error", err)
		return err
	}
	usersDeleted.Inc()
	logger.Info("user_deleted", "user", id, "messages", len(msgKeys), "notifications", len(notifKeys))
	return nil
}
