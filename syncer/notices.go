package syncer

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-rollcall/internal/clock"
)

// Level is the severity of a Notice.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notice is a transient, non-blocking message for the operator.
type Notice struct {
	ID      string    `json:"id"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Path    string    `json:"path,omitempty"`
	Time    time.Time `json:"time"`
}

// Notifier receives save outcomes that the operator should see.
type Notifier interface {
	Notify(n Notice)
}

// Board keeps the most recent notices in memory until they are dismissed.
type Board struct {
	mu      sync.RWMutex
	notices []Notice
	limit   int
	clock   clock.Clock
}

var _ Notifier = (*Board)(nil)

// NewBoard creates a board holding at most limit notices.
func NewBoard(limit int, clk clock.Clock) *Board {
	if limit <= 0 {
		limit = 20
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Board{limit: limit, clock: clk}
}

// Notify stores n, assigning an ID and time when missing. The oldest notice
// is dropped once the board is full.
func (b *Board) Notify(n Notice) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Time.IsZero() {
		n.Time = b.clock.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, n)
	if len(b.notices) > b.limit {
		b.notices = b.notices[len(b.notices)-b.limit:]
	}
}

// List returns the current notices, oldest first.
func (b *Board) List() []Notice {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Notice{}, b.notices...)
}

// Dismiss removes a notice. It returns false if id is unknown.
func (b *Board) Dismiss(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, n := range b.notices {
		if n.ID == id {
			b.notices = append(b.notices[:i], b.notices[i+1:]...)
			return true
		}
	}
	return false
}
