// Package memory provides an in-memory member store mirroring the postgres
// store's contract. It backs unit tests and store-less development runs;
// it intentionally favors clarity over performance.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"enroll/internal/onboarding/models"
	"enroll/pkg/platform/sentinel"
)

// Store keeps members in a mutex-guarded map keyed by entry code.
type Store struct {
	mu      sync.RWMutex
	members map[string]*models.Member
}

// New returns an empty Store.
func New() *Store {
	return &Store{members: make(map[string]*models.Member)}
}

// Create inserts a member. Returns sentinel.ErrConflict when the entry
// code is already taken.
func (s *Store) Create(_ context.Context, member *models.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToUpper(member.EntryCode)
	if _, ok := s.members[key]; ok {
		return sentinel.ErrConflict
	}
	copied := *member
	s.members[key] = &copied
	return nil
}

// FindByEntryCode returns the member carrying code.
func (s *Store) FindByEntryCode(_ context.Context, code string) (*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if member, ok := s.members[normalize(code)]; ok {
		copied := *member
		return &copied, nil
	}
	return nil, sentinel.ErrNotFound
}

// EntryCodeExists reports whether code is taken.
func (s *Store) EntryCodeExists(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[normalize(code)]
	return ok, nil
}

// UpdateStatus mutates the member's status. Returns sentinel.ErrNotFound
// for unknown codes and sentinel.ErrUnchanged when already in status.
func (s *Store) UpdateStatus(_ context.Context, code string, status models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	member, ok := s.members[normalize(code)]
	if !ok {
		return sentinel.ErrNotFound
	}
	if member.Status == status {
		return sentinel.ErrUnchanged
	}
	member.Status = status
	return nil
}

// List returns all members, most recently registered first.
func (s *Store) List(_ context.Context) ([]*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Member, 0, len(s.members))
	for _, member := range s.members {
		copied := *member
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RegisteredAt.After(out[j].RegisteredAt)
	})
	return out, nil
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
