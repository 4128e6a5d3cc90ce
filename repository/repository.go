// Package repository defines the storage contracts of the social graph:
// users, the directed follow graph, and posts with their comments.
//
// Two implementations exist: gormstore for PostgreSQL (and SQLite in tests)
// and memory for tests and local runs. Both must satisfy the contract suite
// in repository/repotest.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/KAsare1/social-api/cmd/models"
)

var (
	ErrUnknownUser    = errors.New("user not found")
	ErrUnknownPost    = errors.New("post not found")
	ErrUnknownComment = errors.New("comment not found")
	ErrSelfFollow     = errors.New("users cannot follow themselves")
	ErrEmptyContent   = errors.New("content cannot be empty")
	ErrContentTooLong = errors.New("content is too long")
	ErrDuplicateUser  = errors.New("username or email already in use")
	ErrInvalidUser    = errors.New("invalid user data")

	// ErrUnavailable wraps store failures that survived a retry.
	ErrUnavailable = errors.New("store unavailable")
)

const (
	MaxPostLength    = 5000
	MaxCommentLength = 1000

	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest selects one page of a keyset-paginated listing. Cursor is the
// NextCursor of the previous page, or zero for the first page.
type PageRequest struct {
	Size   int
	Cursor uint
}

// Normalize clamps Size into [1, MaxPageSize], defaulting to DefaultPageSize.
func (p PageRequest) Normalize() PageRequest {
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

type Page[T any] struct {
	Items []T `json:"items"`
	// NextCursor is zero on the last page.
	NextCursor uint `json:"next_cursor,omitempty"`
}

// PostFilter restricts ListPosts. Zero fields impose no restriction and the
// time bounds are inclusive.
type PostFilter struct {
	AuthorID      uint
	CreatedAfter  time.Time
	CreatedBefore time.Time
}

// UserFilter restricts ListUsers to exact matches. Empty fields match all.
type UserFilter struct {
	Username string
	Email    string
}

// Normalize applies the same trimming and casing CreateUser stores with.
func (f UserFilter) Normalize() UserFilter {
	f.Username = strings.TrimSpace(f.Username)
	f.Email = strings.ToLower(strings.TrimSpace(f.Email))
	return f
}

// Activity holds the counts shown next to a user in listings.
type Activity struct {
	Posts     int64
	Comments  int64
	Followers int64
	Following int64
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	// GetUser returns nil without error when the user does not exist.
	GetUser(ctx context.Context, id uint) (*models.User, error)
	// GetUsers returns the existing users among ids, keyed by id.
	GetUsers(ctx context.Context, ids []uint) (map[uint]models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context, filter UserFilter, page PageRequest) (Page[models.User], error)
}

type GraphRepository interface {
	Follow(ctx context.Context, followerID, followeeID uint) error
	Unfollow(ctx context.Context, followerID, followeeID uint) error
	IsFollowing(ctx context.Context, followerID, followeeID uint) (bool, error)
	// ListFollowers and ListFollowing return users in edge creation order.
	ListFollowers(ctx context.Context, userID uint, page PageRequest) (Page[models.UserSummary], error)
	ListFollowing(ctx context.Context, userID uint, page PageRequest) (Page[models.UserSummary], error)
	CountFollowers(ctx context.Context, userID uint) (int64, error)
	CountFollowing(ctx context.Context, userID uint) (int64, error)
}

type ContentRepository interface {
	CreatePost(ctx context.Context, authorID uint, content string) (*models.Post, error)
	CreateComment(ctx context.Context, postID, authorID uint, content string) (*models.Comment, error)
	// GetPost and GetComment return nil without error when absent.
	GetPost(ctx context.Context, id uint) (*models.Post, error)
	GetComment(ctx context.Context, id uint) (*models.Comment, error)
	// ListPosts returns posts newest first.
	ListPosts(ctx context.Context, filter PostFilter, page PageRequest) (Page[models.Post], error)
	// ListComments returns a post's comments oldest first.
	ListComments(ctx context.Context, postID uint, page PageRequest) (Page[models.Comment], error)
	// LatestComments returns up to n comments of a post, newest first.
	LatestComments(ctx context.Context, postID uint, n int) ([]models.Comment, error)
	CountPostsByAuthor(ctx context.Context, authorID uint) (int64, error)
	CountCommentsByAuthor(ctx context.Context, authorID uint) (int64, error)
	CountComments(ctx context.Context, postID uint) (int64, error)
	// CountCommentsByPosts counts the comments of several posts at once.
	// Posts without comments are absent from the result.
	CountCommentsByPosts(ctx context.Context, postIDs []uint) (map[uint]int64, error)
}

// Store is everything the services need from persistence.
type Store interface {
	UserRepository
	GraphRepository
	ContentRepository
	// CountActivity returns the activity of several users at once. Users
	// with no activity are absent from the result.
	CountActivity(ctx context.Context, userIDs []uint) (map[uint]Activity, error)
	Ping(ctx context.Context) error
}

// NormalizeContent trims content and enforces the non-empty and maximum
// length rules shared by posts and comments.
func NormalizeContent(content string, max int) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > max {
		return "", ErrContentTooLong
	}
	return content, nil
}

// NormalizeUser applies the registration rules to a user in place.
func NormalizeUser(user *models.User) error {
	user.Username = strings.TrimSpace(user.Username)
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	n := utf8.RuneCountInString(user.Username)
	if n < 3 || n > 30 {
		return ErrInvalidUser
	}
	if user.Email == "" || !strings.Contains(user.Email, "@") {
		return ErrInvalidUser
	}
	if user.PasswordHash == "" {
		return ErrInvalidUser
	}
	return nil
}

// NewPage cuts items, already ordered and fetched with one extra row beyond
// size, down to a page and derives the next cursor from the last item kept.
func NewPage[T any](items []T, size int, key func(T) uint) Page[T] {
	page := Page[T]{Items: items}
	if len(items) > size {
		page.Items = items[:size]
		page.NextCursor = key(page.Items[size-1])
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	return page
}
