package social

import (
	"context"
	"fmt"

	"github.com/KAsare1/social-api/cmd/models"
	"github.com/KAsare1/social-api/repository"
)

// DetailComments is how many recent comments a post detail carries.
const DetailComments = 3

type Feed struct {
	store repository.Store
	stats StatsComputer
}

func NewFeed(store repository.Store, stats StatsComputer) *Feed {
	return &Feed{store: store, stats: stats}
}

// GetExtendedPost returns a post with its author's statistics and its whole
// comment thread, oldest comment first.
func (f *Feed) GetExtendedPost(ctx context.Context, postID uint) (models.ExtendedPost, error) {
	post, err := f.requirePost(ctx, postID)
	if err != nil {
		return models.ExtendedPost{}, err
	}

	authors := newAuthorCache(f.store)
	summary, err := f.summarize(ctx, authors, post)
	if err != nil {
		return models.ExtendedPost{}, err
	}

	stats, err := f.stats.ComputeStats(ctx, post.AuthorID)
	if err != nil {
		return models.ExtendedPost{}, err
	}

	comments := []models.CommentView{}
	var cursor uint
	for {
		page, err := f.store.ListComments(ctx, postID, repository.PageRequest{Size: repository.MaxPageSize, Cursor: cursor})
		if err != nil {
			return models.ExtendedPost{}, err
		}
		views, err := commentViews(ctx, authors, page.Items)
		if err != nil {
			return models.ExtendedPost{}, err
		}
		comments = append(comments, views...)
		if page.NextCursor == 0 {
			break
		}
		cursor = page.NextCursor
	}

	return models.ExtendedPost{
		PostSummary:  summary,
		AuthorDetail: stats,
		Comments:     comments,
	}, nil
}

// GetPostDetail returns a post with its most recent comments, newest first.
func (f *Feed) GetPostDetail(ctx context.Context, postID uint) (models.PostDetail, error) {
	post, err := f.requirePost(ctx, postID)
	if err != nil {
		return models.PostDetail{}, err
	}

	authors := newAuthorCache(f.store)
	summary, err := f.summarize(ctx, authors, post)
	if err != nil {
		return models.PostDetail{}, err
	}

	latest, err := f.store.LatestComments(ctx, postID, DetailComments)
	if err != nil {
		return models.PostDetail{}, err
	}
	views, err := commentViews(ctx, authors, latest)
	if err != nil {
		return models.PostDetail{}, err
	}
	return models.PostDetail{PostSummary: summary, LastComments: views}, nil
}

func (f *Feed) GetProfile(ctx context.Context, userID uint) (models.Profile, error) {
	stats, err := f.stats.ComputeStats(ctx, userID)
	if err != nil {
		return models.Profile{}, err
	}
	return models.Profile{
		UserSummary: models.UserSummary{ID: stats.UserID, Username: stats.Username},
		Stats:       stats,
	}, nil
}

// ListPosts pages through posts newest first, each with its author and
// comment count. Authors and counts are fetched for the whole page at once.
func (f *Feed) ListPosts(ctx context.Context, filter repository.PostFilter, page repository.PageRequest) (repository.Page[models.PostSummary], error) {
	posts, err := f.store.ListPosts(ctx, filter, page)
	if err != nil {
		return repository.Page[models.PostSummary]{}, err
	}

	postIDs := make([]uint, 0, len(posts.Items))
	authorIDs := make([]uint, 0, len(posts.Items))
	for _, p := range posts.Items {
		postIDs = append(postIDs, p.ID)
		authorIDs = append(authorIDs, p.AuthorID)
	}

	authors := newAuthorCache(f.store)
	if err := authors.load(ctx, authorIDs); err != nil {
		return repository.Page[models.PostSummary]{}, err
	}
	counts, err := f.store.CountCommentsByPosts(ctx, postIDs)
	if err != nil {
		return repository.Page[models.PostSummary]{}, err
	}

	out := repository.Page[models.PostSummary]{
		Items:      make([]models.PostSummary, 0, len(posts.Items)),
		NextCursor: posts.NextCursor,
	}
	for i := range posts.Items {
		post := &posts.Items[i]
		author, err := authors.get(ctx, post.AuthorID)
		if err != nil {
			return repository.Page[models.PostSummary]{}, err
		}
		out.Items = append(out.Items, newPostSummary(post, author, counts[post.ID]))
	}
	return out, nil
}

// Comment returns a single comment view.
func (f *Feed) Comment(ctx context.Context, commentID uint) (models.CommentView, error) {
	comment, err := f.store.GetComment(ctx, commentID)
	if err != nil {
		return models.CommentView{}, err
	}
	if comment == nil {
		return models.CommentView{}, repository.ErrUnknownComment
	}
	views, err := commentViews(ctx, newAuthorCache(f.store), []models.Comment{*comment})
	if err != nil {
		return models.CommentView{}, err
	}
	return views[0], nil
}

// Comments pages through a post's thread, oldest first.
func (f *Feed) Comments(ctx context.Context, postID uint, page repository.PageRequest) (repository.Page[models.CommentView], error) {
	comments, err := f.store.ListComments(ctx, postID, page)
	if err != nil {
		return repository.Page[models.CommentView]{}, err
	}
	views, err := commentViews(ctx, newAuthorCache(f.store), comments.Items)
	if err != nil {
		return repository.Page[models.CommentView]{}, err
	}
	return repository.Page[models.CommentView]{Items: views, NextCursor: comments.NextCursor}, nil
}

func (f *Feed) requirePost(ctx context.Context, postID uint) (*models.Post, error) {
	post, err := f.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, repository.ErrUnknownPost
	}
	return post, nil
}

func (f *Feed) summarize(ctx context.Context, authors *authorCache, post *models.Post) (models.PostSummary, error) {
	author, err := authors.get(ctx, post.AuthorID)
	if err != nil {
		return models.PostSummary{}, err
	}
	count, err := f.store.CountComments(ctx, post.ID)
	if err != nil {
		return models.PostSummary{}, err
	}
	return newPostSummary(post, author, count), nil
}

func newPostSummary(post *models.Post, author models.UserSummary, comments int64) models.PostSummary {
	return models.PostSummary{
		ID:            post.ID,
		Author:        author,
		Content:       post.Content,
		CreatedAt:     post.CreatedAt,
		CommentsCount: comments,
	}
}

func commentViews(ctx context.Context, authors *authorCache, comments []models.Comment) ([]models.CommentView, error) {
	ids := make([]uint, 0, len(comments))
	for _, c := range comments {
		ids = append(ids, c.AuthorID)
	}
	if err := authors.load(ctx, ids); err != nil {
		return nil, err
	}

	views := make([]models.CommentView, 0, len(comments))
	for _, c := range comments {
		author, err := authors.get(ctx, c.AuthorID)
		if err != nil {
			return nil, err
		}
		views = append(views, models.CommentView{
			ID:        c.ID,
			PostID:    c.PostID,
			Author:    author,
			Content:   c.Content,
			CreatedAt: c.CreatedAt,
		})
	}
	return views, nil
}

// authorCache memoizes user lookups for the duration of one view.
type authorCache struct {
	users repository.UserRepository
	seen  map[uint]models.UserSummary
}

func newAuthorCache(users repository.UserRepository) *authorCache {
	return &authorCache{users: users, seen: make(map[uint]models.UserSummary)}
}

// load fetches every id not yet seen in one batch. Ids that do not exist are
// left for get to report.
func (c *authorCache) load(ctx context.Context, ids []uint) error {
	var missing []uint
	for _, id := range ids {
		if _, ok := c.seen[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	users, err := c.users.GetUsers(ctx, missing)
	if err != nil {
		return err
	}
	for id, u := range users {
		c.seen[id] = u.Summary()
	}
	return nil
}

func (c *authorCache) get(ctx context.Context, id uint) (models.UserSummary, error) {
	if s, ok := c.seen[id]; ok {
		return s, nil
	}
	u, err := c.users.GetUser(ctx, id)
	if err != nil {
		return models.UserSummary{}, err
	}
	if u == nil {
		return models.UserSummary{}, fmt.Errorf("author %d: %w", id, repository.ErrUnknownUser)
	}
	s := u.Summary()
	c.seen[id] = s
	return s, nil
}
