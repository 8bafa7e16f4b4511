package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/convoflow/pkg/domain"
)

// Store implements ports.SessionStore in memory.
// Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	data   map[string][]byte
	live   map[string]string // live key -> session id
	latest map[string]string // live key -> newest session id
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data:   make(map[string][]byte),
		live:   make(map[string]string),
		latest: make(map[string]string),
	}
}

// Sessions are kept serialised so callers never share pointers with the store.
func encode(s *domain.Session) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	return b, nil
}

func decode(b []byte) (*domain.Session, error) {
	var s domain.Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &s, nil
}

// Create inserts a new session, claiming its live slot.
func (s *Store) Create(ctx context.Context, sess *domain.Session) error {
	b, err := encode(sess)
	if err != nil {
		return err
	}
	key := domain.LiveKey(sess.BotID, sess.Address)

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.Status.Live() {
		if holder, ok := s.live[key]; ok && holder != sess.ID {
			return domain.ErrLiveSessionExists
		}
		s.live[key] = sess.ID
	}
	s.data[sess.ID] = b
	s.latest[key] = sess.ID
	return nil
}

// Get retrieves a session by id.
func (s *Store) Get(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(id)
}

func (s *Store) get(id string) (*domain.Session, error) {
	b, ok := s.data[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return decode(b)
}

// FindLive returns the live session of an address.
func (s *Store) FindLive(ctx context.Context, botID, address string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.live[domain.LiveKey(botID, address)]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s.get(id)
}

// FindLatest returns the newest session of an address.
func (s *Store) FindLatest(ctx context.Context, botID, address string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.latest[domain.LiveKey(botID, address)]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s.get(id)
}

// Save overwrites an existing session and keeps the live slot in sync.
func (s *Store) Save(ctx context.Context, sess *domain.Session) error {
	b, err := encode(sess)
	if err != nil {
		return err
	}
	key := domain.LiveKey(sess.BotID, sess.Address)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[sess.ID]; !ok {
		return domain.ErrSessionNotFound
	}
	holder, held := s.live[key]
	switch {
	case sess.Status.Live() && held && holder != sess.ID:
		return domain.ErrLiveSessionExists
	case sess.Status.Live():
		s.live[key] = sess.ID
	case held && holder == sess.ID:
		delete(s.live, key)
	}
	s.data[sess.ID] = b
	return nil
}

// ClaimResume performs the PAUSED to ACTIVE transition under the store lock.
// A stalled claim is taken over once domain.ClaimLease has passed.
func (s *Store) ClaimResume(ctx context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.get(id)
	if err != nil {
		return false, err
	}
	if !sess.Claimable(now) {
		return false, nil
	}
	sess.Status = domain.StatusActive
	sess.ResumeAt = nil
	sess.UpdatedAt = now
	b, err := encode(sess)
	if err != nil {
		return false, err
	}
	s.data[id] = b
	return true, nil
}

// ListDue returns the due paused sessions and stalled claims, earliest first.
func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type due struct {
		id string
		at time.Time
	}
	var found []due
	for id, b := range s.data {
		sess, err := decode(b)
		if err != nil {
			return nil, err
		}
		switch {
		case sess.Due(now):
			found = append(found, due{id: id, at: *sess.ResumeAt})
		case sess.Stalled(now):
			found = append(found, due{id: id, at: sess.UpdatedAt.Add(domain.ClaimLease)})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].at.Before(found[j].at) })
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	ids := make([]string, len(found))
	for i, d := range found {
		ids[i] = d.id
	}
	return ids, nil
}

// List returns all session ids.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]string, 0, len(s.data))
	for id := range s.data {
		sessions = append(sessions, id)
	}
	sort.Strings(sessions)
	return sessions, nil
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.get(id)
	if err != nil {
		return nil
	}
	key := domain.LiveKey(sess.BotID, sess.Address)
	if s.live[key] == id {
		delete(s.live, key)
	}
	if s.latest[key] == id {
		delete(s.latest, key)
	}
	delete(s.data, id)
	return nil
}
