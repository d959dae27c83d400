package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"identity-reconciliation/internal/database"
	"identity-reconciliation/internal/models"
)

// MemoryStore is an in-process Transactor. Units of work run one at a time
// against a private copy of the contacts which replaces the shared state only
// when the unit succeeds.
type MemoryStore struct {
	mu       sync.Mutex
	contacts map[int64]models.Contact
	nextID   int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{contacts: make(map[int64]models.Contact)}
}

// WithinTx implements Transactor.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ContactRepository) error) error {
	if err := ctx.Err(); err != nil {
		return &database.DBError{Sentinel: database.ErrTimeout, Cause: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := &memoryRepo{contacts: make(map[int64]models.Contact, len(s.contacts)), nextID: s.nextID}
	for id, c := range s.contacts {
		work.contacts[id] = c
	}

	if err := fn(work); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &database.DBError{Sentinel: database.ErrTimeout, Cause: err}
	}

	s.contacts = work.contacts
	s.nextID = work.nextID
	return nil
}

// Contacts returns a copy of every stored contact ordered by id.
func (s *MemoryStore) Contacts() []models.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		out = append(out, c)
	}
	sortByID(out)
	return out
}

// Put stores c as-is, bypassing any invariant. It lets tests build states the
// service would never produce on its own.
func (s *MemoryStore) Put(c models.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[c.ID] = c
	if c.ID > s.nextID {
		s.nextID = c.ID
	}
}

type memoryRepo struct {
	contacts map[int64]models.Contact
	nextID   int64
}

func (r *memoryRepo) FindByEmailOrPhone(_ context.Context, email, phoneNumber *string) ([]models.Contact, error) {
	return r.filter(func(c models.Contact) bool {
		return (email != nil && c.Email != nil && *c.Email == *email) ||
			(phoneNumber != nil && c.PhoneNumber != nil && *c.PhoneNumber == *phoneNumber)
	}), nil
}

func (r *memoryRepo) FindByLinkedIDIn(_ context.Context, ids []int64) ([]models.Contact, error) {
	return r.filter(func(c models.Contact) bool {
		return c.LinkedID != nil && slices.Contains(ids, *c.LinkedID)
	}), nil
}

func (r *memoryRepo) FindByIDIn(_ context.Context, ids []int64) ([]models.Contact, error) {
	return r.filter(func(c models.Contact) bool {
		return slices.Contains(ids, c.ID)
	}), nil
}

func (r *memoryRepo) Insert(_ context.Context, c models.Contact) (models.Contact, error) {
	r.nextID++
	c.ID = r.nextID
	r.contacts[c.ID] = c
	return c, nil
}

func (r *memoryRepo) UpdateMany(_ context.Context, contacts []models.Contact) error {
	for _, c := range contacts {
		stored, ok := r.contacts[c.ID]
		if !ok {
			return fmt.Errorf("repository: update contact %d: %w", c.ID, database.ErrNotFound)
		}
		stored.LinkPrecedence = c.LinkPrecedence
		stored.LinkedID = c.LinkedID
		stored.UpdatedAt = c.UpdatedAt
		r.contacts[c.ID] = stored
	}
	return nil
}

func (r *memoryRepo) Count(context.Context) (int64, error) {
	return int64(len(r.contacts)), nil
}

func (r *memoryRepo) filter(keep func(models.Contact) bool) []models.Contact {
	var out []models.Contact
	for _, c := range r.contacts {
		if keep(c) {
			out = append(out, c)
		}
	}
	sortByID(out)
	return out
}

func sortByID(contacts []models.Contact) {
	slices.SortFunc(contacts, func(a, b models.Contact) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

var (
	_ Transactor        = (*MemoryStore)(nil)
	_ ContactRepository = (*memoryRepo)(nil)
)
