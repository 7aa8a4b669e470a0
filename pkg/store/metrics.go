package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeReads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_store_reads_total",
		Help: "Storage round-trips (batched scans count once).",
	})
	messagesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_messages_created_total",
		Help: "Messages durably created.",
	})
	messageEdits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_message_edits_total",
		Help: "Content-changing message updates (one history row each).",
	})
	notificationsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_notifications_emitted_total",
		Help: "Notifications emitted on message creation.",
	})
	notificationsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_notifications_swept_total",
		Help: "Read notifications removed by the retention sweeper.",
	})
	usersDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_users_deleted_total",
		Help: "Accounts removed with cascading cleanup.",
	})
)
