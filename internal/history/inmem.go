package history

import (
	"context"
	"sync"

	"github.com/tinoosan/fota/internal/data"
)

// DefaultLimit is the number of attempts kept by an InMemoryRepo built with
// a non-positive limit.
const DefaultLimit = 100

// InMemoryRepo keeps the most recent attempts, evicting the oldest once
// limit is reached.
type InMemoryRepo struct {
	mu       sync.RWMutex
	attempts data.Attempts // oldest first
	limit    int
}

func NewInMemoryRepo(limit int) *InMemoryRepo {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &InMemoryRepo{attempts: make(data.Attempts, 0, limit), limit: limit}
}

func (r *InMemoryRepo) List(ctx context.Context) (data.Attempts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(data.Attempts, 0, len(r.attempts))
	for i := len(r.attempts) - 1; i >= 0; i-- {
		out = append(out, r.attempts[i].Clone())
	}
	return out, nil
}

func (r *InMemoryRepo) Get(ctx context.Context, id string) (*data.Attempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, err := r.findByID(id)
	if err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

func (r *InMemoryRepo) Add(ctx context.Context, a *data.Attempt) (*data.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.attempts) >= r.limit {
		n := len(r.attempts) - r.limit + 1
		r.attempts = append(r.attempts[:0], r.attempts[n:]...)
	}
	c := a.Clone()
	r.attempts = append(r.attempts, c)
	return c.Clone(), nil
}

func (r *InMemoryRepo) Update(ctx context.Context, id string, mutate func(*data.Attempt) error) (*data.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, err := r.findByID(id)
	if err != nil {
		return nil, err
	}
	next := cur.Clone()
	if mutate != nil {
		if err := mutate(next); err != nil {
			return nil, err
		}
	}
	next.ID = cur.ID
	*cur = *next
	return cur.Clone(), nil
}

func (r *InMemoryRepo) findByID(id string) (*data.Attempt, error) {
	for _, a := range r.attempts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, data.ErrNotFound
}
