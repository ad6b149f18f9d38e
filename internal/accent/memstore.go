package accent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wicaksana/slidesense/internal/phonetic"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is an in-memory [Store]. Profiles are partitioned per user, each
// partition with its own lock, so sessions for different users never block
// each other. Suitable for single-process deployments and tests.
type MemStore struct {
	prm   Params
	clock func() time.Time

	mu    sync.RWMutex // guards the users map, not the partitions
	users map[string]*userPartition
}

type userPartition struct {
	mu      sync.Mutex
	log     []Event
	profile profile
}

// NewMemStore returns an initialised [MemStore] with the given tuning.
func NewMemStore(prm Params) *MemStore {
	return &MemStore{
		prm:   prm,
		clock: time.Now,
		users: make(map[string]*userPartition),
	}
}

// ReplayMemStore builds a [MemStore] from an existing event log, in order.
// This is the crash-recovery path: the compacted state is derived entirely
// from the events.
func ReplayMemStore(prm Params, events []Event) *MemStore {
	s := NewMemStore(prm)
	for _, ev := range events {
		part := s.partition(ev.UserID)
		part.mu.Lock()
		part.log = append(part.log, ev)
		part.profile.apply(ev, prm)
		part.mu.Unlock()
	}
	return s
}

func (s *MemStore) partition(userID string) *userPartition {
	s.mu.RLock()
	part, ok := s.users[userID]
	s.mu.RUnlock()
	if ok {
		return part
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if part, ok = s.users[userID]; ok {
		return part
	}
	part = &userPartition{profile: make(profile)}
	s.users[userID] = part
	return part
}

// Rewrite implements [Store.Rewrite].
func (s *MemStore) Rewrite(_ context.Context, userID, rawPhrase string) (Correction, error) {
	if userID == "" {
		return Correction{}, fmt.Errorf("accent: rewrite: user id is required")
	}
	raw := phonetic.Normalize(rawPhrase)

	part := s.partition(userID)
	part.mu.Lock()
	defer part.mu.Unlock()

	cmd, w, ok := part.profile.best(raw)
	if !ok || w < s.prm.ActivationFloor {
		return Correction{}, ErrNoCorrection
	}
	return Correction{CommandID: cmd, Weight: w}, nil
}

// Reinforce implements [Store.Reinforce].
func (s *MemStore) Reinforce(_ context.Context, userID, rawPhrase, commandID string) error {
	if userID == "" {
		return fmt.Errorf("accent: reinforce: user id is required")
	}
	if commandID == "" {
		return fmt.Errorf("accent: reinforce: command id is required")
	}
	raw := phonetic.Normalize(rawPhrase)
	if raw == "" {
		return fmt.Errorf("accent: reinforce: phrase %q normalizes to nothing", rawPhrase)
	}

	ev := Event{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      EventReinforce,
		RawPhrase: raw,
		CommandID: commandID,
		At:        s.clock().UTC(),
	}

	part := s.partition(userID)
	part.mu.Lock()
	defer part.mu.Unlock()

	part.log = append(part.log, ev)
	part.profile.apply(ev, s.prm)
	return nil
}

// Decay implements [Store.Decay].
func (s *MemStore) Decay(_ context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("accent: decay: user id is required")
	}

	ev := Event{
		ID:     uuid.NewString(),
		UserID: userID,
		Kind:   EventDecay,
		Factor: s.prm.DecayFactor,
		At:     s.clock().UTC(),
	}

	part := s.partition(userID)
	part.mu.Lock()
	defer part.mu.Unlock()

	part.log = append(part.log, ev)
	part.profile.apply(ev, s.prm)
	return nil
}

// Entries implements [Store.Entries]. Entries are returned sorted by raw
// phrase then command id for stable comparison in tests.
func (s *MemStore) Entries(_ context.Context, userID string) ([]Entry, error) {
	part := s.partition(userID)
	part.mu.Lock()
	defer part.mu.Unlock()

	var entries []Entry
	for raw, mappings := range part.profile {
		for cmd, w := range mappings {
			entries = append(entries, Entry{RawPhrase: raw, CommandID: cmd, Weight: w})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].RawPhrase != entries[j].RawPhrase {
			return entries[i].RawPhrase < entries[j].RawPhrase
		}
		return entries[i].CommandID < entries[j].CommandID
	})
	return entries, nil
}

// Log returns a copy of the user's event log, oldest first.
func (s *MemStore) Log(userID string) []Event {
	part := s.partition(userID)
	part.mu.Lock()
	defer part.mu.Unlock()

	out := make([]Event, len(part.log))
	copy(out, part.log)
	return out
}
