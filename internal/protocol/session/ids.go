package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/cpnet/internal/protocol"
)

var ErrIDsExhausted = errors.New("session: no free command id")

// PendingCommand tracks one command id awaiting its response.
type PendingCommand struct {
	ID            int
	Command       string
	Attempts      int
	SentAt        time.Time
	LastAttemptAt time.Time
	LastError     string
}

// IDRegistry allocates correlation ids and tracks the ones still in use.
// Ids cycle through the wire id range and skip ids in use.
type IDRegistry struct {
	mu    sync.Mutex
	last  int
	inUse map[int]PendingCommand
}

func NewIDRegistry() *IDRegistry {
	return &IDRegistry{
		inUse: make(map[int]PendingCommand),
	}
}

// Allocate reserves a fresh id for command.
func (r *IDRegistry) Allocate(command string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.inUse) >= protocol.MaxCommandID-protocol.MinCommandID+1 {
		return 0, ErrIDsExhausted
	}
	id := r.last
	for {
		id++
		if id > protocol.MaxCommandID {
			id = protocol.MinCommandID
		}
		if _, taken := r.inUse[id]; !taken {
			break
		}
	}
	r.last = id
	r.inUse[id] = PendingCommand{
		ID:            id,
		Command:       command,
		SentAt:        at,
		LastAttemptAt: at,
	}
	return id, nil
}

// MarkAttempt records one consumed receive attempt for id.
func (r *IDRegistry) MarkAttempt(id int, at time.Time, lastErr string) (PendingCommand, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.inUse[id]
	if !ok {
		return PendingCommand{}, false
	}
	item.Attempts++
	item.LastAttemptAt = at
	item.LastError = lastErr
	r.inUse[id] = item
	return item, true
}

// Release returns id to the free pool.
func (r *IDRegistry) Release(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inUse, id)
}

func (r *IDRegistry) InUse(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inUse[id]
	return ok
}

func (r *IDRegistry) Get(id int) (PendingCommand, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.inUse[id]
	return item, ok
}

func (r *IDRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inUse)
}

func (r *IDRegistry) List() []PendingCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PendingCommand, 0, len(r.inUse))
	for _, item := range r.inUse {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}
