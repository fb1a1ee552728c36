package repositories

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"kahaf/internal/models"
)

// MemoryUserRepository keeps users in process memory. Records go in and
// come out as deep copies, so readers never observe a half-written user.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*models.User
	byEmail map[string]string
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    map[string]*models.User{},
		byEmail: map[string]string{},
	}
}

func (r *MemoryUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	return r.byID[id].Clone(), nil
}

func (r *MemoryUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return u.Clone(), nil
}

func (r *MemoryUserRepository) Save(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(user.Email)
	if owner, ok := r.byEmail[key]; ok && owner != user.ID {
		return ErrDuplicateEmail
	}

	now := time.Now().UTC()
	if prev, ok := r.byID[user.ID]; ok {
		user.CreatedAt = prev.CreatedAt
		if prevKey := strings.ToLower(prev.Email); prevKey != key {
			delete(r.byEmail, prevKey)
		}
	} else if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	r.byID[user.ID] = user.Clone()
	r.byEmail[key] = user.ID
	return nil
}

func (r *MemoryUserRepository) List(ctx context.Context) ([]*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]*models.User, 0, len(r.byID))
	for _, u := range r.byID {
		users = append(users, u.Clone())
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func (r *MemoryUserRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
