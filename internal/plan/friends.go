package plan

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	appLog "festplan/internal/log"
	"festplan/internal/model"
	"festplan/internal/storage"
)

// FriendsStore is the ordered list of imported friend schedules. Insertion
// order is import order and entries with the same name are kept apart.
type FriendsStore struct {
	kv storage.KV

	mu      sync.Mutex
	friends []model.FriendSchedule
	subs    storage.Subscribers[[]model.FriendSchedule]
}

func NewFriendsStore(ctx context.Context, kv storage.KV) *FriendsStore {
	s := &FriendsStore{kv: kv}

	var saved []model.FriendSchedule
	err := storage.LoadJSON(ctx, kv, FriendsKey, &saved)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		appLog.Warn("friends: load failed, starting empty", err)
	default:
		dropped := 0
		for i := range saved {
			var n int
			saved[i].Schedule, n = validStatuses(saved[i].Schedule)
			dropped += n
		}
		if dropped > 0 {
			appLog.Warn("friends: dropped unreadable entries", errInvalidStored, "dropped", dropped)
		}
		s.friends = saved
	}
	return s
}

// List returns a copy of the stored friend schedules in import order.
func (s *FriendsStore) List() []model.FriendSchedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneFriends(s.friends)
}

// Add appends friend. Re-importing the same name adds another entry.
func (s *FriendsStore) Add(friend model.FriendSchedule) {
	friend.Schedule = maps.Clone(friend.Schedule)
	_ = s.mutate(func(l []model.FriendSchedule) ([]model.FriendSchedule, error) {
		return append(l, friend), nil
	})
	appLog.Info("friends: list added", "name", friend.Name, "entries", len(friend.Schedule))
}

// Remove deletes the entry at index.
func (s *FriendsStore) Remove(index int) error {
	return s.mutate(func(l []model.FriendSchedule) ([]model.FriendSchedule, error) {
		if index < 0 || index >= len(l) {
			return nil, fmt.Errorf("friends: index %d out of range [0,%d)", index, len(l))
		}
		return slices.Delete(l, index, index+1), nil
	})
}

// Clear empties the list.
func (s *FriendsStore) Clear() {
	_ = s.mutate(func([]model.FriendSchedule) ([]model.FriendSchedule, error) { return nil, nil })
}

func (s *FriendsStore) Subscribe(fn func([]model.FriendSchedule)) (cancel func()) {
	return s.subs.Add(fn)
}

func (s *FriendsStore) mutate(fn func([]model.FriendSchedule) ([]model.FriendSchedule, error)) error {
	s.mu.Lock()
	next, err := fn(s.friends)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.friends = next
	snap := cloneFriends(s.friends)

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	if err := storage.SaveJSON(ctx, s.kv, FriendsKey, snap); err != nil {
		appLog.Warn("friends: persist failed; keeping in-memory state", err, "entries", len(snap))
	}
	cancel()
	s.mu.Unlock()

	s.subs.Notify(snap)
	return nil
}

func cloneFriends(in []model.FriendSchedule) []model.FriendSchedule {
	out := make([]model.FriendSchedule, len(in))
	for i, f := range in {
		f.Schedule = maps.Clone(f.Schedule)
		out[i] = f
	}
	return out
}
