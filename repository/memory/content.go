package memory

import (
	"context"
	"sort"

	"github.com/KAsare1/social-api/cmd/models"
	"github.com/KAsare1/social-api/repository"
)

func (s *Store) CreatePost(ctx context.Context, authorID uint, content string) (*models.Post, error) {
	content, err := repository.NormalizeContent(content, repository.MaxPostLength)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUsers(authorID); err != nil {
		return nil, err
	}

	s.nextPost++
	now := s.now()
	post := &models.Post{AuthorID: authorID, Content: content}
	post.ID = s.nextPost
	post.CreatedAt = now
	post.UpdatedAt = now
	s.posts[post.ID] = post

	cp := *post
	return &cp, nil
}

func (s *Store) CreateComment(ctx context.Context, postID, authorID uint, content string) (*models.Comment, error) {
	content, err := repository.NormalizeContent(content, repository.MaxCommentLength)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[postID]; !ok {
		return nil, repository.ErrUnknownPost
	}
	if err := s.requireUsers(authorID); err != nil {
		return nil, err
	}

	s.nextComment++
	now := s.now()
	comment := &models.Comment{PostID: postID, AuthorID: authorID, Content: content}
	comment.ID = s.nextComment
	comment.CreatedAt = now
	comment.UpdatedAt = now
	s.comments[comment.ID] = comment

	cp := *comment
	return &cp, nil
}

func (s *Store) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *Store) GetComment(ctx context.Context, id uint) (*models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.comments[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListPosts(ctx context.Context, filter repository.PostFilter, page repository.PageRequest) (repository.Page[models.Post], error) {
	page = page.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var posts []models.Post
	for _, p := range s.posts {
		if page.Cursor != 0 && p.ID >= page.Cursor {
			continue
		}
		if filter.AuthorID != 0 && p.AuthorID != filter.AuthorID {
			continue
		}
		if !filter.CreatedAfter.IsZero() && p.CreatedAt.Before(filter.CreatedAfter) {
			continue
		}
		if !filter.CreatedBefore.IsZero() && p.CreatedAt.After(filter.CreatedBefore) {
			continue
		}
		posts = append(posts, *p)
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].ID > posts[j].ID })
	return repository.NewPage(posts, page.Size, func(p models.Post) uint { return p.ID }), nil
}

func (s *Store) ListComments(ctx context.Context, postID uint, page repository.PageRequest) (repository.Page[models.Comment], error) {
	page = page.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.posts[postID]; !ok {
		return repository.Page[models.Comment]{}, repository.ErrUnknownPost
	}

	var comments []models.Comment
	for _, c := range s.comments {
		if c.PostID == postID && c.ID > page.Cursor {
			comments = append(comments, *c)
		}
	}
	sort.Slice(comments, func(i, j int) bool { return comments[i].ID < comments[j].ID })
	return repository.NewPage(comments, page.Size, func(c models.Comment) uint { return c.ID }), nil
}

func (s *Store) LatestComments(ctx context.Context, postID uint, n int) ([]models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	comments := []models.Comment{}
	for _, c := range s.comments {
		if c.PostID == postID {
			comments = append(comments, *c)
		}
	}
	sort.Slice(comments, func(i, j int) bool { return comments[i].ID > comments[j].ID })
	if len(comments) > n {
		comments = comments[:n]
	}
	return comments, nil
}

func (s *Store) CountPostsByAuthor(ctx context.Context, authorID uint) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, p := range s.posts {
		if p.AuthorID == authorID {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountCommentsByAuthor(ctx context.Context, authorID uint) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, c := range s.comments {
		if c.AuthorID == authorID {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountComments(ctx context.Context, postID uint) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, c := range s.comments {
		if c.PostID == postID {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountCommentsByPosts(ctx context.Context, postIDs []uint) (map[uint]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[uint]struct{}, len(postIDs))
	for _, id := range postIDs {
		wanted[id] = struct{}{}
	}
	counts := make(map[uint]int64)
	for _, c := range s.comments {
		if _, ok := wanted[c.PostID]; ok {
			counts[c.PostID]++
		}
	}
	return counts, nil
}
