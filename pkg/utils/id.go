package utils

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// seq reduces key collisions when multiple records share the same
// nanosecond timestamp.
var seq uint64

// GenID returns a new opaque entity id.
func GenID() string {
	return uuid.NewString()
}

// GenSortKey returns a lexically sortable key suffix ordered by wall
// clock time. Format: <unix_nano_padded>-<seq>.
func GenSortKey() string {
	ts := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&seq, 1)
	return fmt.Sprintf("%020d-%06d", ts, s%1000000)
}
