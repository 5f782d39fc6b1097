package session

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID returns an id for one run of a client process. The timestamp
// prefix keeps ids sortable in server logs.
func NewID() string {
	return NewIDAt(time.Now())
}

func NewIDAt(t time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return t.UTC().Format("20060102-150405") + "-" + suffix
}
