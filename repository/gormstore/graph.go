package gormstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/KAsare1/social-api/cmd/models"
	"github.com/KAsare1/social-api/db"
	"github.com/KAsare1/social-api/repository"
)

// Follow inserts the edge unless it already exists. Concurrent follows of
// the same pair collapse on the unique index.
func (s *Store) Follow(ctx context.Context, followerID, followeeID uint) error {
	if followerID == followeeID {
		return repository.ErrSelfFollow
	}

	err := db.RetryTransient(ctx, s.log, "follow", func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := requireUsers(tx, followerID, followeeID); err != nil {
				return err
			}
			edge := models.Follow{FollowerID: followerID, FolloweeID: followeeID}
			return tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "follower_id"}, {Name: "followee_id"}},
				DoNothing: true,
			}).Create(&edge).Error
		})
	})
	if err != nil {
		return fmt.Errorf("follow %d->%d: %w", followerID, followeeID, err)
	}
	s.log.Debug("follow", zap.Uint("follower", followerID), zap.Uint("followee", followeeID))
	return nil
}

func (s *Store) Unfollow(ctx context.Context, followerID, followeeID uint) error {
	err := db.RetryTransient(ctx, s.log, "unfollow", func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := requireUsers(tx, followerID, followeeID); err != nil {
				return err
			}
			return tx.Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
				Delete(&models.Follow{}).Error
		})
	})
	if err != nil {
		return fmt.Errorf("unfollow %d->%d: %w", followerID, followeeID, err)
	}
	s.log.Debug("unfollow", zap.Uint("follower", followerID), zap.Uint("followee", followeeID))
	return nil
}

func (s *Store) IsFollowing(ctx context.Context, followerID, followeeID uint) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("is following: %w", err)
	}
	return n > 0, nil
}

func (s *Store) ListFollowers(ctx context.Context, userID uint, page repository.PageRequest) (repository.Page[models.UserSummary], error) {
	return s.listEdges(ctx, userID, page, "followee_id", "follower_id")
}

func (s *Store) ListFollowing(ctx context.Context, userID uint, page repository.PageRequest) (repository.Page[models.UserSummary], error) {
	return s.listEdges(ctx, userID, page, "follower_id", "followee_id")
}

type edgeRow struct {
	EdgeID   uint
	ID       uint
	Username string
}

// listEdges pages through edges whose anchor column equals userID, joined to
// the user at the other end, ordered by edge id.
func (s *Store) listEdges(ctx context.Context, userID uint, page repository.PageRequest, anchor, other string) (repository.Page[models.UserSummary], error) {
	page = page.Normalize()
	tx := s.db.WithContext(ctx)

	if err := requireUsers(tx, userID); err != nil {
		return repository.Page[models.UserSummary]{}, err
	}

	var rows []edgeRow
	err := tx.Table("follows").
		Select("follows.id AS edge_id, users.id AS id, users.username AS username").
		Joins("JOIN users ON users.id = follows."+other).
		Where("follows."+anchor+" = ? AND follows.id > ?", userID, page.Cursor).
		Order("follows.id ASC").
		Limit(page.Size + 1).
		Scan(&rows).Error
	if err != nil {
		return repository.Page[models.UserSummary]{}, fmt.Errorf("list %s of %d: %w", other, userID, err)
	}

	rowPage := repository.NewPage(rows, page.Size, func(r edgeRow) uint { return r.EdgeID })
	out := repository.Page[models.UserSummary]{
		Items:      make([]models.UserSummary, 0, len(rowPage.Items)),
		NextCursor: rowPage.NextCursor,
	}
	for _, r := range rowPage.Items {
		out.Items = append(out.Items, models.UserSummary{ID: r.ID, Username: r.Username})
	}
	return out, nil
}

func (s *Store) CountFollowers(ctx context.Context, userID uint) (int64, error) {
	return s.countEdges(ctx, "followee_id", userID)
}

func (s *Store) CountFollowing(ctx context.Context, userID uint) (int64, error) {
	return s.countEdges(ctx, "follower_id", userID)
}

func (s *Store) countEdges(ctx context.Context, column string, userID uint) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Follow{}).Where(column+" = ?", userID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", column, err)
	}
	return n, nil
}
