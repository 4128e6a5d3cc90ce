// Package memory is an in-process implementation of repository.Store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/KAsare1/social-api/cmd/models"
	"github.com/KAsare1/social-api/repository"
)

type edgeKey struct {
	follower, followee uint
}

// Store keeps every table in maps guarded by a single RWMutex, so each
// mutation is atomic with respect to all others.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	nextUser, nextPost, nextComment, nextEdge uint

	users    map[uint]*models.User
	posts    map[uint]*models.Post
	comments map[uint]*models.Comment
	edges    map[edgeKey]*models.Follow
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		now:      time.Now,
		users:    make(map[uint]*models.User),
		posts:    make(map[uint]*models.Post),
		comments: make(map[uint]*models.Comment),
		edges:    make(map[edgeKey]*models.Follow),
	}
}

// WithClock replaces the timestamp source, for tests that need fixed times.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Users

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if err := repository.NormalizeUser(user); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == user.Username || u.Email == user.Email {
			return repository.ErrDuplicateUser
		}
	}

	s.nextUser++
	now := s.now()
	user.ID = s.nextUser
	user.CreatedAt = now
	user.UpdatedAt = now
	stored := *user
	s.users[user.ID] = &stored
	return nil
}

func (s *Store) GetUser(ctx context.Context, id uint) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUsers(ctx context.Context, ids []uint) (map[uint]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make(map[uint]models.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			users[id] = *u
		}
	}
	return users, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) ListUsers(ctx context.Context, filter repository.UserFilter, page repository.PageRequest) (repository.Page[models.User], error) {
	page = page.Normalize()
	filter = filter.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var users []models.User
	for _, u := range s.users {
		if u.ID <= page.Cursor {
			continue
		}
		if filter.Username != "" && u.Username != filter.Username {
			continue
		}
		if filter.Email != "" && u.Email != filter.Email {
			continue
		}
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return repository.NewPage(users, page.Size, func(u models.User) uint { return u.ID }), nil
}

func (s *Store) CountActivity(ctx context.Context, userIDs []uint) (map[uint]repository.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[uint]struct{}, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = struct{}{}
	}
	activity := make(map[uint]repository.Activity)
	bump := func(id uint, f func(*repository.Activity)) {
		if _, ok := wanted[id]; !ok {
			return
		}
		a := activity[id]
		f(&a)
		activity[id] = a
	}

	for _, p := range s.posts {
		bump(p.AuthorID, func(a *repository.Activity) { a.Posts++ })
	}
	for _, c := range s.comments {
		bump(c.AuthorID, func(a *repository.Activity) { a.Comments++ })
	}
	for k := range s.edges {
		bump(k.followee, func(a *repository.Activity) { a.Followers++ })
		bump(k.follower, func(a *repository.Activity) { a.Following++ })
	}
	return activity, nil
}
