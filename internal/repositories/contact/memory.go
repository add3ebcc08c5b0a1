package contact

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Ramsey-B/iris/pkg/models"
)

type memoryTxKey struct{}

type memoryTx struct {
	undo []func()
}

type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now for created_at and updated_at.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// MemoryStore keeps contacts in process memory. RunInTx rolls back its own
// writes on failure but does not isolate them from concurrent readers.
type MemoryStore struct {
	mu       sync.Mutex
	contacts map[int64]*models.Contact
	nextID   int64
	now      func() time.Time
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		contacts: make(map[int64]*models.Contact),
		nextID:   1,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) FindByID(ctx context.Context, id int64) (*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[id]
	if !ok || c.DeletedAt != nil {
		return nil, nil
	}
	out := cloneContact(c)
	return &out, nil
}

func (s *MemoryStore) FindByIDs(ctx context.Context, ids []int64) ([]models.Contact, error) {
	return s.filter(func(c *models.Contact) bool {
		return slices.Contains(ids, c.ID)
	}), nil
}

func (s *MemoryStore) FindByEmailOrPhone(ctx context.Context, email, phone *string) ([]models.Contact, error) {
	if email == nil && phone == nil {
		return []models.Contact{}, nil
	}
	return s.filter(func(c *models.Contact) bool {
		return (email != nil && c.HasEmail(*email)) || (phone != nil && c.HasPhoneNumber(*phone))
	}), nil
}

func (s *MemoryStore) FindByLinkedIDs(ctx context.Context, ids []int64) ([]models.Contact, error) {
	return s.filter(func(c *models.Contact) bool {
		return c.LinkedID != nil && slices.Contains(ids, *c.LinkedID)
	}), nil
}

func (s *MemoryStore) Create(ctx context.Context, req models.CreateContactRequest) (*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c := &models.Contact{
		ID:             s.nextID,
		Email:          cloneString(req.Email),
		PhoneNumber:    cloneString(req.PhoneNumber),
		LinkedID:       cloneInt(req.LinkedID),
		LinkPrecedence: req.LinkPrecedence,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if c.LinkPrecedence == "" {
		c.LinkPrecedence = models.LinkPrecedencePrimary
	}
	s.nextID++
	s.contacts[c.ID] = c

	s.record(ctx, func() { delete(s.contacts, c.ID) })

	out := cloneContact(c)
	return &out, nil
}

func (s *MemoryStore) SetSecondary(ctx context.Context, id, linkedID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[id]
	if !ok || c.DeletedAt != nil {
		return nil
	}
	s.snapshot(ctx, c)
	c.LinkPrecedence = models.LinkPrecedenceSecondary
	c.LinkedID = &linkedID
	c.UpdatedAt = s.now()
	return nil
}

// RelinkChildren matches soft-deleted rows too, like the SQL store.
func (s *MemoryStore) RelinkChildren(ctx context.Context, oldPrimaryID, newPrimaryID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, c := range s.contacts {
		if c.LinkedID == nil || *c.LinkedID != oldPrimaryID {
			continue
		}
		s.snapshot(ctx, c)
		id := newPrimaryID
		c.LinkedID = &id
		c.UpdatedAt = now
	}
	return nil
}

// SoftDelete marks a contact deleted. It reports whether a live contact was found.
func (s *MemoryStore) SoftDelete(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[id]
	if !ok || c.DeletedAt != nil {
		return false, nil
	}
	s.snapshot(ctx, c)
	now := s.now()
	c.DeletedAt = &now
	c.UpdatedAt = now
	return true, nil
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(memoryTxKey{}).(*memoryTx); ok {
		return fn(ctx)
	}

	tx := &memoryTx{}
	if err := fn(context.WithValue(ctx, memoryTxKey{}, tx)); err != nil {
		s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// All returns every contact, deleted ones included, ordered by id.
func (s *MemoryStore) All() []models.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		out = append(out, cloneContact(c))
	}
	slices.SortFunc(out, func(a, b models.Contact) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (s *MemoryStore) filter(match func(c *models.Contact) bool) []models.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Contact{}
	for _, c := range s.contacts {
		if c.DeletedAt == nil && match(c) {
			out = append(out, cloneContact(c))
		}
	}
	slices.SortFunc(out, func(a, b models.Contact) int {
		switch {
		case a.Before(&b):
			return -1
		case b.Before(&a):
			return 1
		}
		return 0
	})
	return out
}

// record and snapshot must be called with mu held.
func (s *MemoryStore) record(ctx context.Context, undo func()) {
	if tx, ok := ctx.Value(memoryTxKey{}).(*memoryTx); ok {
		tx.undo = append(tx.undo, undo)
	}
}

func (s *MemoryStore) snapshot(ctx context.Context, c *models.Contact) {
	prev := cloneContact(c)
	s.record(ctx, func() { *c = prev })
}

func cloneContact(c *models.Contact) models.Contact {
	out := *c
	out.Email = cloneString(c.Email)
	out.PhoneNumber = cloneString(c.PhoneNumber)
	out.LinkedID = cloneInt(c.LinkedID)
	if c.DeletedAt != nil {
		t := *c.DeletedAt
		out.DeletedAt = &t
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt(i *int64) *int64 {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
