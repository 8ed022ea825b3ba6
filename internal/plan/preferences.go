// Package plan holds the user's own plan (event preferences) and the
// imported plans of friends, both persisted through a storage.KV.
package plan

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
	PreferencesKey = "festplan-schedule"
	FriendsKey     = "festplan-friends-lists"

	persistTimeout = 5 * time.Second
)

// PreferenceStore maps event ids to the user's status. Reads are served
// from the in-memory mirror; every mutation writes the whole map through
// to storage. A failed write is logged and the mirror stays authoritative.
type PreferenceStore struct {
	kv storage.KV

	mu    sync.Mutex
	prefs map[string]model.Status
	subs  storage.Subscribers[map[string]model.Status]
}

// NewPreferenceStore loads the persisted map. Unreadable or corrupt data
// starts the session with an empty plan.
func NewPreferenceStore(ctx context.Context, kv storage.KV) *PreferenceStore {
	s := &PreferenceStore{kv: kv, prefs: make(map[string]model.Status)}

	var saved map[string]model.Status
	err := storage.LoadJSON(ctx, kv, PreferencesKey, &saved)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		appLog.Warn("preferences: load failed, starting empty", err)
	default:
		var dropped int
		s.prefs, dropped = validStatuses(saved)
		if dropped > 0 {
			appLog.Warn("preferences: dropped unreadable entries", errInvalidStored, "dropped", dropped)
		}
	}
	return s
}

var errInvalidStored = errors.New("stored status is not a known value")

// validStatuses keeps the entries of m that hold a known, non-none status
// and reports how many unknown values were dropped.
func validStatuses(m map[string]model.Status) (map[string]model.Status, int) {
	out := make(map[string]model.Status, len(m))
	dropped := 0
	for id, raw := range m {
		st, err := model.ParseStatus(string(raw))
		if err != nil {
			dropped++
			continue
		}
		if st != model.StatusNone {
			out[id] = st
		}
	}
	return out, dropped
}

// Status returns the status of eventID, StatusNone when unset.
func (s *PreferenceStore) Status(eventID string) model.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.prefs[eventID]; ok {
		return st
	}
	return model.StatusNone
}

// Toggle sets eventID to target, or clears it when it already has target.
// Passing StatusNone clears. The resulting status is returned.
func (s *PreferenceStore) Toggle(eventID string, target model.Status) model.Status {
	s.mu.Lock()
	current, ok := s.prefs[eventID]
	next := target
	if target == model.StatusNone || (ok && current == target) {
		delete(s.prefs, eventID)
		next = model.StatusNone
	} else {
		s.prefs[eventID] = target
	}
	snap := maps.Clone(s.prefs)
	s.persistLocked(snap)
	s.mu.Unlock()

	appLog.Debug("preferences: toggled", "event_id", eventID, "status", next)
	s.subs.Notify(snap)
	return next
}

// Snapshot returns a copy of all non-none entries.
func (s *PreferenceStore) Snapshot() map[string]model.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.prefs)
}

// Clear removes every preference.
func (s *PreferenceStore) Clear() {
	s.mu.Lock()
	s.prefs = make(map[string]model.Status)
	snap := map[string]model.Status{}
	s.persistLocked(snap)
	s.mu.Unlock()
	s.subs.Notify(snap)
}

// Subscribe registers fn to receive a snapshot after every mutation.
func (s *PreferenceStore) Subscribe(fn func(map[string]model.Status)) (cancel func()) {
	return s.subs.Add(fn)
}

func (s *PreferenceStore) persistLocked(snap map[string]model.Status) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := storage.SaveJSON(ctx, s.kv, PreferencesKey, snap); err != nil {
		appLog.Warn("preferences: persist failed; keeping in-memory state", err, "entries", len(snap))
	}
}
