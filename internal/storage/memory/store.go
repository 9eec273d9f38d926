// Package memory is an in-process implementation of the dispatch stores.
// It backs local runs with STORE=memory and the pipeline tests.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tinywideclouds/go-dispatch-service/pkg/dispatch"
	"github.com/tinywideclouds/go-dispatch-service/pkg/notification"
)

// Store holds users, token owners and per-user notification lists.
type Store struct {
	mu            sync.RWMutex
	users         map[string]notification.UserRecord
	owners        map[string]string
	notifications map[string][]notification.StoredNotification
	now           func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:         make(map[string]notification.UserRecord),
		owners:        make(map[string]string),
		notifications: make(map[string][]notification.StoredNotification),
		now:           time.Now,
	}
}

// PutUser creates or replaces users/{uid}.
func (s *Store) PutUser(uid, fcmToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[uid] = notification.UserRecord{UID: uid, FCMToken: fcmToken}
}

// PutTokenOwner creates or replaces tokens/{token}.
func (s *Store) PutTokenOwner(token, uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[token] = uid
}

func (s *Store) GetUser(_ context.Context, uid string) (*notification.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[uid]
	if !ok {
		return nil, dispatch.ErrRecordNotFound
	}
	return &user, nil
}

func (s *Store) GetOwner(_ context.Context, token string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uid, ok := s.owners[token]
	if !ok {
		return "", dispatch.ErrRecordNotFound
	}
	return uid, nil
}

func (s *Store) AddNotification(_ context.Context, uid string, record notification.NotificationRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := make(map[string]string, len(record.Data))
	maps.Copy(data, record.Data)

	stored := notification.StoredNotification{
		ID:        uuid.NewString(),
		Title:     record.Title,
		Body:      record.Body,
		Type:      record.Type,
		Data:      data,
		CreatedAt: s.now().UTC(),
		Read:      false,
	}
	s.notifications[uid] = append(s.notifications[uid], stored)
	return stored.ID, nil
}

// ListNotifications returns up to limit records, newest first.
func (s *Store) ListNotifications(_ context.Context, uid string, limit int) ([]notification.StoredNotification, error) {
	s.mu.RLock()
	src := s.notifications[uid]
	list := make([]notification.StoredNotification, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		list = append(list, src[i])
	}
	s.mu.RUnlock()

	// Equal timestamps keep the last-written record first.
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *Store) CountUnread(_ context.Context, uid string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rec := range s.notifications[uid] {
		if !rec.Read {
			n++
		}
	}
	return n, nil
}

// Notifications returns a copy of every record stored for uid in insertion order.
func (s *Store) Notifications(uid string) []notification.StoredNotification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]notification.StoredNotification, len(s.notifications[uid]))
	copy(out, s.notifications[uid])
	return out
}

// NotificationCount returns the total number of records across all users.
func (s *Store) NotificationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, list := range s.notifications {
		n += len(list)
	}
	return n
}
