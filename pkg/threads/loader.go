package threads

import (
	"fmt"

	"parley/pkg/logger"
	"parley/pkg/models"
	"parley/pkg/store"
)

// DefaultDepth is how many reply levels are eagerly batch-loaded before
// the loader falls back to per-node fetches.
const DefaultDepth = 2

// Node is a message with its related records resolved: sender and
// receiver identities, edit history, and direct replies.
type Node struct {
	models.Message
	SenderUser   models.User             `json:"sender_user"`
	ReceiverUser models.User             `json:"receiver_user"`
	History      []models.MessageHistory `json:"history,omitempty"`
	Replies      []*Node                 `json:"replies"`
}

// Loader retrieves whole threads with a bounded number of storage
// round-trips: one per eagerly loaded level, plus one batched user
// lookup and one batched history scan, regardless of branching factor.
type Loader struct {
	// Depth is the number of reply levels to pre-load; zero means
	// DefaultDepth. Levels beyond Depth are fetched on demand per node.
	Depth int
}

// Load returns the thread rooted at rootID. A thread is addressed only
// by its root: an unknown id, or the id of a reply, returns
// store.ErrNotFound.
func (l Loader) Load(rootID string) (*Node, error) {
	depth := l.Depth
	if depth <= 0 {
		depth = DefaultDepth
	}
	m, err := store.GetMessage(rootID)
	if err != nil {
		return nil, err
	}
	if m.Parent != "" {
		return nil, fmt.Errorf("message %s is not a thread root: %w", rootID, store.ErrNotFound)
	}

	root := newNode(m)
	byID := map[string]*Node{m.ID: root}
	frontier := []*Node{root}

	// Breadth-first batch loading: one adjacency scan per level.
	for level := 0; level < depth && len(frontier) > 0; level++ {
		parents := make([]string, len(frontier))
		for i, n := range frontier {
			parents[i] = n.ID
		}
		grouped, err := store.ListRepliesBatch(parents)
		if err != nil {
			return nil, err
		}
		var next []*Node
		for _, p := range frontier {
			for _, child := range grouped[p.ID] {
				cn := newNode(child)
				p.Replies = append(p.Replies, cn)
				byID[child.ID] = cn
				next = append(next, cn)
			}
		}
		frontier = next
	}

	// Deeper levels, if any, fall back to on-demand per-node fetches.
	for _, n := range frontier {
		if err := l.loadOnDemand(n, byID); err != nil {
			return nil, err
		}
	}

	if err := resolveRelated(byID); err != nil {
		return nil, err
	}
	logger.Debug("thread_loaded", "root", rootID, "nodes", len(byID))
	return root, nil
}

func (l Loader) loadOnDemand(n *Node, byID map[string]*Node) error {
	grouped, err := store.ListRepliesBatch([]string{n.ID})
	if err != nil {
		return err
	}
	for _, child := range grouped[n.ID] {
		cn := newNode(child)
		n.Replies = append(n.Replies, cn)
		byID[child.ID] = cn
		if err := l.loadOnDemand(cn, byID); err != nil {
			return err
		}
	}
	return nil
}

// resolveRelated fills in user identities and edit histories for every
// node in two batched round-trips.
func resolveRelated(byID map[string]*Node) error {
	userIDs := make([]string, 0, 2*len(byID))
	msgIDs := make([]string, 0, len(byID))
	for _, n := range byID {
		userIDs = append(userIDs, n.Sender, n.Receiver)
		msgIDs = append(msgIDs, n.ID)
	}
	users, err := store.GetUsers(userIDs)
	if err != nil {
		return err
	}
	hist, err := store.ListHistoryBatch(msgIDs)
	if err != nil {
		return err
	}
	for _, n := range byID {
		n.SenderUser = users[n.Sender].Public()
		n.ReceiverUser = users[n.Receiver].Public()
		n.History = hist[n.ID]
	}
	return nil
}

func newNode(m models.Message) *Node {
	return &Node{Message: m, Replies: make([]*Node, 0)}
}
