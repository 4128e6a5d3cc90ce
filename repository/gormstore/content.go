package gormstore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/KAsare1/social-api/cmd/models"
	"github.com/KAsare1/social-api/db"
	"github.com/KAsare1/social-api/repository"
)

func (s *Store) CreatePost(ctx context.Context, authorID uint, content string) (*models.Post, error) {
	content, err := repository.NormalizeContent(content, repository.MaxPostLength)
	if err != nil {
		return nil, err
	}

	var post models.Post
	err = db.RetryTransient(ctx, s.log, "create post", func() error {
		post = models.Post{AuthorID: authorID, Content: content}
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := requireUsers(tx, authorID); err != nil {
				return err
			}
			return tx.Create(&post).Error
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	s.log.Debug("post created", zap.Uint("post", post.ID), zap.Uint("author", authorID))
	return &post, nil
}

func (s *Store) CreateComment(ctx context.Context, postID, authorID uint, content string) (*models.Comment, error) {
	content, err := repository.NormalizeContent(content, repository.MaxCommentLength)
	if err != nil {
		return nil, err
	}

	var comment models.Comment
	err = db.RetryTransient(ctx, s.log, "create comment", func() error {
		comment = models.Comment{PostID: postID, AuthorID: authorID, Content: content}
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := requirePost(tx, postID); err != nil {
				return err
			}
			if err := requireUsers(tx, authorID); err != nil {
				return err
			}
			return tx.Create(&comment).Error
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	s.log.Debug("comment created", zap.Uint("comment", comment.ID), zap.Uint("post", postID))
	return &comment, nil
}

func (s *Store) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := s.db.WithContext(ctx).First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get post %d: %w", id, err)
	}
	return &post, nil
}

func (s *Store) GetComment(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := s.db.WithContext(ctx).First(&comment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get comment %d: %w", id, err)
	}
	return &comment, nil
}

// ListPosts pages newest first. The cursor is the smallest id already
// returned, so posts inserted after the first page never shift later pages.
func (s *Store) ListPosts(ctx context.Context, filter repository.PostFilter, page repository.PageRequest) (repository.Page[models.Post], error) {
	page = page.Normalize()

	query := s.db.WithContext(ctx).Model(&models.Post{})
	if page.Cursor != 0 {
		query = query.Where("id < ?", page.Cursor)
	}
	if filter.AuthorID != 0 {
		query = query.Where("author_id = ?", filter.AuthorID)
	}
	if !filter.CreatedAfter.IsZero() {
		query = query.Where("created_at >= ?", filter.CreatedAfter)
	}
	if !filter.CreatedBefore.IsZero() {
		query = query.Where("created_at <= ?", filter.CreatedBefore)
	}

	var posts []models.Post
	if err := query.Order("id DESC").Limit(page.Size + 1).Find(&posts).Error; err != nil {
		return repository.Page[models.Post]{}, fmt.Errorf("list posts: %w", err)
	}
	return repository.NewPage(posts, page.Size, func(p models.Post) uint { return p.ID }), nil
}

func (s *Store) ListComments(ctx context.Context, postID uint, page repository.PageRequest) (repository.Page[models.Comment], error) {
	page = page.Normalize()
	tx := s.db.WithContext(ctx)

	if err := requirePost(tx, postID); err != nil {
		return repository.Page[models.Comment]{}, err
	}

	var comments []models.Comment
	err := tx.Where("post_id = ? AND id > ?", postID, page.Cursor).
		Order("id ASC").
		Limit(page.Size + 1).
		Find(&comments).Error
	if err != nil {
		return repository.Page[models.Comment]{}, fmt.Errorf("list comments of %d: %w", postID, err)
	}
	return repository.NewPage(comments, page.Size, func(c models.Comment) uint { return c.ID }), nil
}

func (s *Store) LatestComments(ctx context.Context, postID uint, n int) ([]models.Comment, error) {
	comments := []models.Comment{}
	err := s.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("id DESC").
		Limit(n).
		Find(&comments).Error
	if err != nil {
		return nil, fmt.Errorf("latest comments of %d: %w", postID, err)
	}
	return comments, nil
}

func (s *Store) CountPostsByAuthor(ctx context.Context, authorID uint) (int64, error) {
	return s.count(ctx, &models.Post{}, "author_id", authorID)
}

func (s *Store) CountCommentsByAuthor(ctx context.Context, authorID uint) (int64, error) {
	return s.count(ctx, &models.Comment{}, "author_id", authorID)
}

func (s *Store) CountComments(ctx context.Context, postID uint) (int64, error) {
	return s.count(ctx, &models.Comment{}, "post_id", postID)
}

func (s *Store) CountCommentsByPosts(ctx context.Context, postIDs []uint) (map[uint]int64, error) {
	return s.countBy(ctx, &models.Comment{}, "post_id", postIDs)
}

func (s *Store) count(ctx context.Context, model interface{}, column string, id uint) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(model).Where(column+" = ?", id).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %T by %s: %w", model, column, err)
	}
	return n, nil
}

func requirePost(tx *gorm.DB, postID uint) error {
	var n int64
	if err := tx.Model(&models.Post{}).Where("id = ?", postID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrUnknownPost
	}
	return nil
}
