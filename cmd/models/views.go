package models

import "time"

// The types below are derived read views. None of them is persisted.

type UserStats struct {
	UserID         uint   `json:"user_id"`
	Username       string `json:"username"`
	FollowerCount  int64  `json:"followers_count"`
	FollowingCount int64  `json:"following_count"`
	PostCount      int64  `json:"total_posts"`
	CommentCount   int64  `json:"total_comments"`
}

type CommentView struct {
	ID        uint        `json:"id"`
	PostID    uint        `json:"post"`
	Author    UserSummary `json:"author"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// PostSummary is a post as it appears in listings.
type PostSummary struct {
	ID            uint        `json:"id"`
	Author        UserSummary `json:"creator_info"`
	Content       string      `json:"content"`
	CreatedAt     time.Time   `json:"created_at"`
	CommentsCount int64       `json:"comments_count"`
}

// PostDetail adds the three most recent comments, newest first.
type PostDetail struct {
	PostSummary
	LastComments []CommentView `json:"last_three_comments"`
}

// ExtendedPost carries the whole comment thread in creation order.
type ExtendedPost struct {
	PostSummary
	AuthorDetail UserStats     `json:"author_detail"`
	Comments     []CommentView `json:"comments"`
}

type Profile struct {
	UserSummary
	Stats UserStats `json:"stats"`
}
