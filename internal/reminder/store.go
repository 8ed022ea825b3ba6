// Package reminder persists per-event reminders and arranges for their
// notifications to be delivered.
package reminder

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	appLog "festplan/internal/log"
	"festplan/internal/model"
	"festplan/internal/storage"
)

const (
	StorageKey     = "festplan-reminders"
	persistTimeout = 5 * time.Second
)

// Store is the write-through reminder map, one reminder per event id.
type Store struct {
	kv storage.KV

	mu        sync.Mutex
	reminders map[string]model.Reminder
	subs      storage.Subscribers[map[string]model.Reminder]
}

func NewStore(ctx context.Context, kv storage.KV) *Store {
	s := &Store{kv: kv, reminders: make(map[string]model.Reminder)}
	var saved map[string]model.Reminder
	err := storage.LoadJSON(ctx, kv, StorageKey, &saved)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		appLog.Warn("reminders: load failed, starting empty", err)
	default:
		for id, r := range saved {
			r.EventID = id
			s.reminders[id] = r
		}
	}
	return s
}

func (s *Store) Get(eventID string) (model.Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[eventID]
	return r, ok
}

func (s *Store) Has(eventID string) bool {
	_, ok := s.Get(eventID)
	return ok
}

// All returns a copy of every reminder keyed by event id.
func (s *Store) All() map[string]model.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.reminders)
}

// Put stores r, replacing any reminder for the same event.
func (s *Store) Put(r model.Reminder) {
	s.mu.Lock()
	s.reminders[r.EventID] = r
	snap := s.persistLocked()
	s.mu.Unlock()
	s.subs.Notify(snap)
}

func (s *Store) Delete(eventID string) bool {
	s.mu.Lock()
	if _, ok := s.reminders[eventID]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.reminders, eventID)
	snap := s.persistLocked()
	s.mu.Unlock()
	s.subs.Notify(snap)
	return true
}

// Subscribe registers fn to receive a snapshot after every mutation.
func (s *Store) Subscribe(fn func(map[string]model.Reminder)) (cancel func()) {
	return s.subs.Add(fn)
}

func (s *Store) persistLocked() map[string]model.Reminder {
	snap := maps.Clone(s.reminders)
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := storage.SaveJSON(ctx, s.kv, StorageKey, snap); err != nil {
		appLog.Warn("reminders: persist failed; keeping in-memory state", err, "entries", len(snap))
	}
	return snap
}
