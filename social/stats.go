// Package social composes the repositories into the read views served by
// the API: per-user statistics, profiles and post views.
package social

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/KAsare1/social-api/cmd/models"
	"github.com/KAsare1/social-api/repository"
)

// StatsComputer is satisfied by Stats and by caches layered in front of it.
type StatsComputer interface {
	ComputeStats(ctx context.Context, userID uint) (models.UserStats, error)
}

type Stats struct {
	store repository.Store
}

var _ StatsComputer = (*Stats)(nil)

func NewStats(store repository.Store) *Stats {
	return &Stats{store: store}
}

// ComputeStats counts followers, followees, posts and comments of a user.
// The four counts run concurrently as separate statements, so a write that
// lands between them may be reflected in some counts and not others.
func (s *Stats) ComputeStats(ctx context.Context, userID uint) (models.UserStats, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return models.UserStats{}, err
	}
	if user == nil {
		return models.UserStats{}, repository.ErrUnknownUser
	}

	stats := models.UserStats{UserID: user.ID, Username: user.Username}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.FollowerCount, err = s.store.CountFollowers(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		stats.FollowingCount, err = s.store.CountFollowing(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		stats.PostCount, err = s.store.CountPostsByAuthor(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		stats.CommentCount, err = s.store.CountCommentsByAuthor(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.UserStats{}, fmt.Errorf("stats of user %d: %w", userID, err)
	}
	return stats, nil
}

// StatsInvalidator is told whose counts a write has changed.
type StatsInvalidator interface {
	Invalidate(ctx context.Context, userIDs ...uint)
}

// NopInvalidator is used when no stats cache is configured.
type NopInvalidator struct{}

func (NopInvalidator) Invalidate(context.Context, ...uint) {}
