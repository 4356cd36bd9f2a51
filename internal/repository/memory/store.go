package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/guyyagil/CineVerse/internal/core/domain"
	"github.com/guyyagil/CineVerse/internal/core/port"
	"github.com/guyyagil/CineVerse/internal/repository"
)

// familyEntry holds one family's chain behind its own mutex. Advances on
// different families never contend with each other; the store-level RWMutex
// only guards the map itself.
type familyEntry struct {
	mu      sync.Mutex
	family  domain.TokenFamily
	records []domain.RefreshTokenRecord
}

// Store is an in-memory SessionStore. It backs tests and single-process
// deployments; the postgres repository is the durable implementation.
type Store struct {
	mu          sync.RWMutex
	families    map[string]*familyEntry
	byPrincipal map[string]map[string]struct{}
	now         func() time.Time
}

// NewStore constructs an empty in-memory session store.
func NewStore() *Store {
	store := &Store{
		families:    make(map[string]*familyEntry),
		byPrincipal: make(map[string]map[string]struct{}),
	}
	store.now = func() time.Time { return time.Now().UTC() }
	return store
}

// WithClock overrides the store clock for deterministic tests.
func (s *Store) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// CreateFamily opens a new lineage and persists its generation-zero record.
func (s *Store) CreateFamily(_ context.Context, principalID string, record domain.RefreshTokenRecord) (*domain.TokenFamily, error) {
	now := s.now()
	family := domain.TokenFamily{
		ID:                uuid.NewString(),
		PrincipalID:       principalID,
		Status:            domain.FamilyStatusActive,
		CurrentGeneration: 0,
		CreatedAt:         now,
		LastSeen:          now,
	}

	record.FamilyID = family.ID
	record.Generation = 0

	entry := &familyEntry{
		family:  family,
		records: []domain.RefreshTokenRecord{record},
	}

	s.mu.Lock()
	s.families[family.ID] = entry
	owned, ok := s.byPrincipal[principalID]
	if !ok {
		owned = make(map[string]struct{})
		s.byPrincipal[principalID] = owned
	}
	owned[family.ID] = struct{}{}
	s.mu.Unlock()

	familyCopy := family
	return &familyCopy, nil
}

// GetFamily returns the family by id.
func (s *Store) GetFamily(_ context.Context, familyID string) (*domain.TokenFamily, error) {
	entry, err := s.entry(familyID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	familyCopy := entry.family
	entry.mu.Unlock()

	return &familyCopy, nil
}

// GetLiveRecord returns the family's current unconsumed, unexpired record.
func (s *Store) GetLiveRecord(_ context.Context, familyID string) (*domain.RefreshTokenRecord, error) {
	entry, err := s.entry(familyID)
	if err != nil {
		return nil, err
	}

	now := s.now()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	for i := range entry.records {
		if entry.records[i].IsLive(now) {
			recordCopy := entry.records[i]
			return &recordCopy, nil
		}
	}

	return nil, repository.ErrNotFound
}

// Advance atomically consumes the live record matching presentedHash and
// appends the generation+1 record. The per-family mutex makes the
// check-live-and-replace a single step: of several callers racing with the
// same hash, exactly one finds the record unconsumed.
func (s *Store) Advance(_ context.Context, familyID, presentedHash string, next domain.RefreshTokenRecord) (*port.AdvanceResult, error) {
	entry, err := s.entry(familyID)
	if err != nil {
		return nil, err
	}

	now := s.now()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if !entry.family.IsActive() {
		return nil, repository.ErrExpired
	}

	idx := -1
	for i := range entry.records {
		if entry.records[i].TokenHash == presentedHash {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, repository.ErrNotFound
	}

	presented := &entry.records[idx]
	if presented.ConsumedAt != nil {
		return nil, repository.ErrStaleToken
	}
	if presented.IsExpired(now) {
		return nil, repository.ErrExpired
	}

	next.FamilyID = entry.family.ID
	next.Generation = presented.Generation + 1

	presented.Consume(now, next.ID)
	entry.records = append(entry.records, next)
	entry.family.CurrentGeneration = next.Generation
	entry.family.Touch(now)

	result := &port.AdvanceResult{
		Family:    entry.family,
		NewRecord: next,
	}
	return result, nil
}

// RevokeFamily terminates the family and consumes every pending record.
// Idempotent: a second call reports zero tokens revoked.
func (s *Store) RevokeFamily(_ context.Context, familyID, reason string) (int, error) {
	entry, err := s.entry(familyID)
	if err != nil {
		return 0, err
	}

	now := s.now()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	return s.revokeLocked(entry, now, reason), nil
}

// RevokeAllForPrincipal terminates every family owned by the principal and
// reports the ids that changed state.
func (s *Store) RevokeAllForPrincipal(_ context.Context, principalID, reason string) ([]string, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.byPrincipal[principalID]))
	for id := range s.byPrincipal[principalID] {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	now := s.now()
	var revoked []string
	for _, id := range ids {
		entry, err := s.entry(id)
		if err != nil {
			continue
		}
		entry.mu.Lock()
		wasActive := entry.family.IsActive()
		s.revokeLocked(entry, now, reason)
		entry.mu.Unlock()
		if wasActive {
			revoked = append(revoked, id)
		}
	}

	return revoked, nil
}

// ListFamiliesByPrincipal returns the principal's families, most recently seen first.
func (s *Store) ListFamiliesByPrincipal(_ context.Context, principalID string) ([]domain.TokenFamily, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.byPrincipal[principalID]))
	for id := range s.byPrincipal[principalID] {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	families := make([]domain.TokenFamily, 0, len(ids))
	for _, id := range ids {
		entry, err := s.entry(id)
		if err != nil {
			continue
		}
		entry.mu.Lock()
		families = append(families, entry.family)
		entry.mu.Unlock()
	}

	for i := 1; i < len(families); i++ {
		for j := i; j > 0 && families[j].LastSeen.After(families[j-1].LastSeen); j-- {
			families[j], families[j-1] = families[j-1], families[j]
		}
	}

	return families, nil
}

// PurgeExpired drops records whose expiry predates the cutoff and removes
// families left with no records. Returns the number of records deleted.
func (s *Store) PurgeExpired(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for id, entry := range s.families {
		entry.mu.Lock()
		kept := entry.records[:0]
		for _, record := range entry.records {
			if record.ExpiresAt.Before(before) {
				purged++
				continue
			}
			kept = append(kept, record)
		}
		entry.records = kept
		empty := len(entry.records) == 0
		principalID := entry.family.PrincipalID
		entry.mu.Unlock()

		if empty {
			delete(s.families, id)
			if owned, ok := s.byPrincipal[principalID]; ok {
				delete(owned, id)
				if len(owned) == 0 {
					delete(s.byPrincipal, principalID)
				}
			}
		}
	}

	return purged, nil
}

func (s *Store) entry(familyID string) (*familyEntry, error) {
	s.mu.RLock()
	entry, ok := s.families[familyID]
	s.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return entry, nil
}

func (s *Store) revokeLocked(entry *familyEntry, at time.Time, reason string) int {
	consumed := 0
	for i := range entry.records {
		if entry.records[i].ConsumedAt == nil {
			entry.records[i].Consume(at, "")
			consumed++
		}
	}
	entry.family.Revoke(at, reason)
	return consumed
}

var _ port.SessionStore = (*Store)(nil)
