// Package repotest is the behavioural contract every repository.Store
// implementation runs in its own tests.
package repotest

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KAsare1/social-api/cmd/models"
	"github.com/KAsare1/social-api/repository"
)

// Factory builds an empty store whose timestamps come from now.
type Factory func(t *testing.T, now func() time.Time) repository.Store

// Clock hands out strictly increasing UTC times one minute apart.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock() *Clock {
	return &Clock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Minute)
	return c.t
}

// CreateUser registers a user with a throwaway password hash.
func CreateUser(t *testing.T, s repository.Store, username string) *models.User {
	t.Helper()
	u := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
	}
	require.NoError(t, s.CreateUser(context.Background(), u))
	require.NotZero(t, u.ID)
	return u
}

func Run(t *testing.T, newStore Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore) })
	t.Run("Follow", func(t *testing.T) { testFollow(t, newStore) })
	t.Run("FollowLists", func(t *testing.T) { testFollowLists(t, newStore) })
	t.Run("ConcurrentFollow", func(t *testing.T) { testConcurrentFollow(t, newStore) })
	t.Run("Posts", func(t *testing.T) { testPosts(t, newStore) })
	t.Run("PostPagination", func(t *testing.T) { testPostPagination(t, newStore) })
	t.Run("PostFilter", func(t *testing.T) { testPostFilter(t, newStore) })
	t.Run("Comments", func(t *testing.T) { testComments(t, newStore) })
	t.Run("Counts", func(t *testing.T) { testCounts(t, newStore) })
	t.Run("BatchCounts", func(t *testing.T) { testBatchCounts(t, newStore) })
}

func testUsers(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("creates and fetches", func(t *testing.T) {
		s := newStore(t, NewClock().Now)
		u := &models.User{Username: "  alice ", Email: " Alice@Example.com", PasswordHash: "h"}
		require.NoError(t, s.CreateUser(ctx, u))

		got, err := s.GetUser(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "alice", got.Username)
		assert.Equal(t, "alice@example.com", got.Email)

		byName, err := s.GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, byName)
		assert.Equal(t, u.ID, byName.ID)
	})

	t.Run("missing user is nil", func(t *testing.T) {
		s := newStore(t, NewClock().Now)
		got, err := s.GetUser(ctx, 999)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		s := newStore(t, NewClock().Now)
		CreateUser(t, s, "alice")
		err := s.CreateUser(ctx, &models.User{Username: "alice", Email: "other@example.com", PasswordHash: "h"})
		assert.ErrorIs(t, err, repository.ErrDuplicateUser)
		err = s.CreateUser(ctx, &models.User{Username: "bob", Email: "alice@example.com", PasswordHash: "h"})
		assert.ErrorIs(t, err, repository.ErrDuplicateUser)
	})

	t.Run("rejects invalid usernames", func(t *testing.T) {
		s := newStore(t, NewClock().Now)
		for _, name := range []string{"", "ab", strings.Repeat("x", 31)} {
			err := s.CreateUser(ctx, &models.User{Username: name, Email: "x@example.com", PasswordHash: "h"})
			assert.ErrorIs(t, err, repository.ErrInvalidUser, "username %q", name)
		}
	})

	t.Run("lists in id order", func(t *testing.T) {
		s := newStore(t, NewClock().Now)
		a := CreateUser(t, s, "alice")
		b := CreateUser(t, s, "bob")
		c := CreateUser(t, s, "carol")

		first, err := s.ListUsers(ctx, repository.UserFilter{}, repository.PageRequest{Size: 2})
		require.NoError(t, err)
		require.Len(t, first.Items, 2)
		assert.Equal(t, a.ID, first.Items[0].ID)
		assert.Equal(t, b.ID, first.Items[1].ID)
		assert.Equal(t, b.ID, first.NextCursor)

		second, err := s.ListUsers(ctx, repository.UserFilter{}, repository.PageRequest{Size: 2, Cursor: first.NextCursor})
		require.NoError(t, err)
		require.Len(t, second.Items, 1)
		assert.Equal(t, c.ID, second.Items[0].ID)
		assert.Zero(t, second.NextCursor)
	})

	t.Run("filters by username and email", func(t *testing.T) {
		s := newStore(t, NewClock().Now)
		CreateUser(t, s, "alice")
		b := CreateUser(t, s, "bob")

		byName, err := s.ListUsers(ctx, repository.UserFilter{Username: "bob"}, repository.PageRequest{})
		require.NoError(t, err)
		require.Len(t, byName.Items, 1)
		assert.Equal(t, b.ID, byName.Items[0].ID)

		byEmail, err := s.ListUsers(ctx, repository.UserFilter{Email: " Bob@Example.com"}, repository.PageRequest{})
		require.NoError(t, err)
		require.Len(t, byEmail.Items, 1)
		assert.Equal(t, b.ID, byEmail.Items[0].ID)

		none, err := s.ListUsers(ctx, repository.UserFilter{Username: "bob", Email: "alice@example.com"}, repository.PageRequest{})
		require.NoError(t, err)
		assert.Empty(t, none.Items)
	})

	t.Run("batch lookup skips missing ids", func(t *testing.T) {
		s := newStore(t, NewClock().Now)
		a := CreateUser(t, s, "alice")
		b := CreateUser(t, s, "bob")

		users, err := s.GetUsers(ctx, []uint{a.ID, b.ID, 999, a.ID})
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "alice", users[a.ID].Username)
		assert.Equal(t, "bob", users[b.ID].Username)

		empty, err := s.GetUsers(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}

func testFollow(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("follow is idempotent", func(t *testing.T) {
		s := newStore(t, NewClock().Now)
		a := CreateUser(t, s, "alice")
		b := CreateUser(t, s, "bob")

		require.NoError(t, s.Follow(ctx, a.ID, b.ID))
		require.NoError(t, s.Follow(ctx, a.ID, b.ID))

		ok, err := s.IsFollowing(ctx, a.ID, b.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		n, err := s.CountFollowers(ctx, b.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})

	t.Run("follow is directed", func(t *testing.T) {
		s := newStore(t, NewClock().Now)
		a := CreateUser(t, s, "alice")
		b := CreateUser(t, s, "bob")

		require.NoError(t, s.Follow(ctx, a.ID, b.ID))
		back, err := s.IsFollowing(ctx, b.ID, a.ID)
		require.NoError(t, err)
		assert.False(t, back)
	})

	t.Run("self follow is rejected", func(t *testing.T) {
		s := newStore(t, NewClock().Now)
		a := CreateUser(t, s, "alice")

		assert.ErrorIs(t, s.Follow(ctx, a.ID, a.ID), repository.ErrSelfFollow)
		ok, err := s.IsFollowing(ctx, a.ID, a.ID)
		require.NoError(t, err)
		assert.False(t, ok)
		n, err := s.CountFollowing(ctx, a.ID)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("unknown users are rejected", func(t *testing.T) {
		s := newStore(t, NewClock().Now)
		a := CreateUser(t, s, "alice")

		assert.ErrorIs(t, s.Follow(ctx, a.ID, 999), repository.ErrUnknownUser)
		assert.ErrorIs(t, s.Follow(ctx, 999, a.ID), repository.ErrUnknownUser)
		assert.ErrorIs(t, s.Unfollow(ctx, a.ID, 999), repository.ErrUnknownUser)
	})

	t.Run("unfollow is idempotent", func(t *testing.T) {
		s := newStore(t, NewClock().Now)
		a := CreateUser(t, s, "alice")
		b := CreateUser(t, s, "bob")

		require.NoError(t, s.Unfollow(ctx, a.ID, b.ID))

		require.NoError(t, s.Follow(ctx, a.ID, b.ID))
		require.NoError(t, s.Unfollow(ctx, a.ID, b.ID))
		require.NoError(t, s.Unfollow(ctx, a.ID, b.ID))

		ok, err := s.IsFollowing(ctx, a.ID, b.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("refollow after unfollow", func(t *testing.T) {
		s := newStore(t, NewClock().Now)
		a := CreateUser(t, s, "alice")
		b := CreateUser(t, s, "bob")

		require.NoError(t, s.Follow(ctx, a.ID, b.ID))
		require.NoError(t, s.Unfollow(ctx, a.ID, b.ID))
		require.NoError(t, s.Follow(ctx, a.ID, b.ID))

		ok, err := s.IsFollowing(ctx, a.ID, b.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func testFollowLists(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, NewClock().Now)

	target := CreateUser(t, s, "target")
	var followers []*models.User
	for _, name := range []string{"carol", "alice", "bob"} {
		u := CreateUser(t, s, name)
		followers = append(followers, u)
	}
	// Follow in reverse creation order to show that edge order wins.
	for i := len(followers) - 1; i >= 0; i-- {
		require.NoError(t, s.Follow(ctx, followers[i].ID, target.ID))
	}
	require.NoError(t, s.Follow(ctx, target.ID, followers[1].ID))

	first, err := s.ListFollowers(ctx, target.ID, repository.PageRequest{Size: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.Equal(t, "bob", first.Items[0].Username)
	assert.Equal(t, "alice", first.Items[1].Username)
	require.NotZero(t, first.NextCursor)

	second, err := s.ListFollowers(ctx, target.ID, repository.PageRequest{Size: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Equal(t, "carol", second.Items[0].Username)
	assert.Zero(t, second.NextCursor)

	following, err := s.ListFollowing(ctx, target.ID, repository.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, []models.UserSummary{followers[1].Summary()}, following.Items)

	carol, err := s.ListFollowing(ctx, followers[0].ID, repository.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, []models.UserSummary{target.Summary()}, carol.Items)

	_, err = s.ListFollowers(ctx, 999, repository.PageRequest{})
	assert.ErrorIs(t, err, repository.ErrUnknownUser)
}

func testConcurrentFollow(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, NewClock().Now)
	a := CreateUser(t, s, "alice")
	b := CreateUser(t, s, "bob")

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Follow(ctx, a.ID, b.ID)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	n, err := s.CountFollowers(ctx, b.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func testPosts(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("create trims content", func(t *testing.T) {
		s := newStore(t, NewClock().Now)
		a := CreateUser(t, s, "alice")

		p, err := s.CreatePost(ctx, a.ID, "  hello  ")
		require.NoError(t, err)
		assert.Equal(t, "hello", p.Content)
		assert.Equal(t, a.ID, p.AuthorID)
		assert.False(t, p.CreatedAt.IsZero())

		got, err := s.GetPost(ctx, p.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "hello", got.Content)
	})

	t.Run("validation", func(t *testing.T) {
		s := newStore(t, NewClock().Now)
		a := CreateUser(t, s, "alice")

		_, err := s.CreatePost(ctx, a.ID, " \n\t ")
		assert.ErrorIs(t, err, repository.ErrEmptyContent)
		_, err = s.CreatePost(ctx, a.ID, strings.Repeat("x", repository.MaxPostLength+1))
		assert.ErrorIs(t, err, repository.ErrContentTooLong)
		_, err = s.CreatePost(ctx, 999, "hello")
		assert.ErrorIs(t, err, repository.ErrUnknownUser)
	})

	t.Run("missing post is nil", func(t *testing.T) {
		s := newStore(t, NewClock().Now)
		got, err := s.GetPost(ctx, 42)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func testPostPagination(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, NewClock().Now)
	a := CreateUser(t, s, "alice")

	const n = 4
	created := make(map[uint]bool)
	for i := 0; i < n+1; i++ {
		p, err := s.CreatePost(ctx, a.ID, "post")
		require.NoError(t, err)
		created[p.ID] = true
	}

	first, err := s.ListPosts(ctx, repository.PostFilter{}, repository.PageRequest{Size: n})
	require.NoError(t, err)
	require.Len(t, first.Items, n)
	for i := 1; i < len(first.Items); i++ {
		assert.Greater(t, first.Items[i-1].ID, first.Items[i].ID, "newest first")
	}

	// A post inserted between page fetches must not disturb the next page.
	_, err = s.CreatePost(ctx, a.ID, "late")
	require.NoError(t, err)

	second, err := s.ListPosts(ctx, repository.PostFilter{}, repository.PageRequest{Size: n, Cursor: first.NextCursor})
	require.NoError(t, err)

	seen := make(map[uint]bool)
	for _, p := range append(first.Items, second.Items...) {
		assert.False(t, seen[p.ID], "post %d returned twice", p.ID)
		seen[p.ID] = true
	}
	for id := range created {
		assert.True(t, seen[id], "post %d skipped", id)
	}
	assert.Len(t, seen, n+1)
	assert.Zero(t, second.NextCursor)
}

func testPostFilter(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, NewClock().Now)
	a := CreateUser(t, s, "alice")
	b := CreateUser(t, s, "bob")

	var posts []*models.Post
	for _, author := range []*models.User{a, b, a, b} {
		p, err := s.CreatePost(ctx, author.ID, "post by "+author.Username)
		require.NoError(t, err)
		posts = append(posts, p)
	}

	ids := func(page repository.Page[models.Post]) []uint {
		out := []uint{}
		for _, p := range page.Items {
			out = append(out, p.ID)
		}
		return out
	}

	tests := []struct {
		name   string
		filter repository.PostFilter
		want   []uint
	}{
		{"no filter", repository.PostFilter{}, []uint{posts[3].ID, posts[2].ID, posts[1].ID, posts[0].ID}},
		{"author", repository.PostFilter{AuthorID: a.ID}, []uint{posts[2].ID, posts[0].ID}},
		{"created after is inclusive", repository.PostFilter{CreatedAfter: posts[2].CreatedAt}, []uint{posts[3].ID, posts[2].ID}},
		{"created before is inclusive", repository.PostFilter{CreatedBefore: posts[1].CreatedAt}, []uint{posts[1].ID, posts[0].ID}},
		{"range and author", repository.PostFilter{AuthorID: b.ID, CreatedAfter: posts[1].CreatedAt, CreatedBefore: posts[2].CreatedAt}, []uint{posts[1].ID}},
		{"unknown author", repository.PostFilter{AuthorID: 999}, []uint{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := s.ListPosts(ctx, tt.filter, repository.PageRequest{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(page))
		})
	}
}

func testComments(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, NewClock().Now)
	a := CreateUser(t, s, "alice")
	b := CreateUser(t, s, "bob")
	post, err := s.CreatePost(ctx, a.ID, "hello")
	require.NoError(t, err)

	var ids []uint
	for i, author := range []*models.User{b, a, b, b} {
		c, err := s.CreateComment(ctx, post.ID, author.ID, strings.Repeat("!", i+1))
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}

	t.Run("thread order with pagination", func(t *testing.T) {
		first, err := s.ListComments(ctx, post.ID, repository.PageRequest{Size: 3})
		require.NoError(t, err)
		require.Len(t, first.Items, 3)
		assert.Equal(t, ids[0], first.Items[0].ID)
		assert.Equal(t, ids[2], first.Items[2].ID)

		rest, err := s.ListComments(ctx, post.ID, repository.PageRequest{Size: 3, Cursor: first.NextCursor})
		require.NoError(t, err)
		require.Len(t, rest.Items, 1)
		assert.Equal(t, ids[3], rest.Items[0].ID)
	})

	t.Run("latest comments newest first", func(t *testing.T) {
		latest, err := s.LatestComments(ctx, post.ID, 3)
		require.NoError(t, err)
		require.Len(t, latest, 3)
		assert.Equal(t, []uint{ids[3], ids[2], ids[1]}, []uint{latest[0].ID, latest[1].ID, latest[2].ID})
	})

	t.Run("get comment", func(t *testing.T) {
		c, err := s.GetComment(ctx, ids[1])
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.Equal(t, "!!", c.Content)
		assert.Equal(t, post.ID, c.PostID)

		missing, err := s.GetComment(ctx, 999)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := s.CreateComment(ctx, 999, a.ID, "hi")
		assert.ErrorIs(t, err, repository.ErrUnknownPost)
		_, err = s.CreateComment(ctx, post.ID, 999, "hi")
		assert.ErrorIs(t, err, repository.ErrUnknownUser)
		_, err = s.CreateComment(ctx, post.ID, a.ID, "   ")
		assert.ErrorIs(t, err, repository.ErrEmptyContent)
		_, err = s.CreateComment(ctx, post.ID, a.ID, strings.Repeat("x", repository.MaxCommentLength+1))
		assert.ErrorIs(t, err, repository.ErrContentTooLong)
		_, err = s.ListComments(ctx, 999, repository.PageRequest{})
		assert.ErrorIs(t, err, repository.ErrUnknownPost)
	})

	t.Run("post without comments", func(t *testing.T) {
		empty, err := s.CreatePost(ctx, b.ID, "quiet")
		require.NoError(t, err)
		page, err := s.ListComments(ctx, empty.ID, repository.PageRequest{})
		require.NoError(t, err)
		assert.NotNil(t, page.Items)
		assert.Empty(t, page.Items)
	})
}

func testCounts(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, NewClock().Now)
	a := CreateUser(t, s, "alice")
	b := CreateUser(t, s, "bob")
	c := CreateUser(t, s, "carol")

	require.NoError(t, s.Follow(ctx, b.ID, a.ID))
	require.NoError(t, s.Follow(ctx, c.ID, a.ID))
	require.NoError(t, s.Follow(ctx, a.ID, c.ID))

	p1, err := s.CreatePost(ctx, a.ID, "one")
	require.NoError(t, err)
	_, err = s.CreatePost(ctx, a.ID, "two")
	require.NoError(t, err)
	_, err = s.CreateComment(ctx, p1.ID, a.ID, "self reply")
	require.NoError(t, err)
	_, err = s.CreateComment(ctx, p1.ID, b.ID, "reply")
	require.NoError(t, err)

	tests := []struct {
		name  string
		count func() (int64, error)
		want  int64
	}{
		{"followers", func() (int64, error) { return s.CountFollowers(ctx, a.ID) }, 2},
		{"following", func() (int64, error) { return s.CountFollowing(ctx, a.ID) }, 1},
		{"posts", func() (int64, error) { return s.CountPostsByAuthor(ctx, a.ID) }, 2},
		{"comments by author", func() (int64, error) { return s.CountCommentsByAuthor(ctx, a.ID) }, 1},
		{"comments on post", func() (int64, error) { return s.CountComments(ctx, p1.ID) }, 2},
		{"nobody follows bob", func() (int64, error) { return s.CountFollowers(ctx, b.ID) }, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.count()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func testBatchCounts(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, NewClock().Now)
	a := CreateUser(t, s, "alice")
	b := CreateUser(t, s, "bob")
	c := CreateUser(t, s, "carol")
	idle := CreateUser(t, s, "dave")

	require.NoError(t, s.Follow(ctx, b.ID, a.ID))
	require.NoError(t, s.Follow(ctx, c.ID, a.ID))
	require.NoError(t, s.Follow(ctx, a.ID, c.ID))

	p1, err := s.CreatePost(ctx, a.ID, "one")
	require.NoError(t, err)
	p2, err := s.CreatePost(ctx, a.ID, "two")
	require.NoError(t, err)
	p3, err := s.CreatePost(ctx, b.ID, "three")
	require.NoError(t, err)
	for _, author := range []uint{a.ID, b.ID, b.ID} {
		_, err = s.CreateComment(ctx, p1.ID, author, "reply")
		require.NoError(t, err)
	}
	_, err = s.CreateComment(ctx, p3.ID, c.ID, "reply")
	require.NoError(t, err)

	t.Run("comments by post", func(t *testing.T) {
		counts, err := s.CountCommentsByPosts(ctx, []uint{p1.ID, p2.ID, p3.ID})
		require.NoError(t, err)
		assert.EqualValues(t, 3, counts[p1.ID])
		assert.Zero(t, counts[p2.ID])
		assert.EqualValues(t, 1, counts[p3.ID])
	})

	t.Run("activity", func(t *testing.T) {
		activity, err := s.CountActivity(ctx, []uint{a.ID, b.ID, c.ID, idle.ID})
		require.NoError(t, err)
		assert.Equal(t, repository.Activity{Posts: 2, Comments: 1, Followers: 2, Following: 1}, activity[a.ID])
		assert.Equal(t, repository.Activity{Posts: 1, Comments: 2, Following: 1}, activity[b.ID])
		assert.Equal(t, repository.Activity{Comments: 1, Followers: 1, Following: 1}, activity[c.ID])
		assert.Equal(t, repository.Activity{}, activity[idle.ID])
	})

	t.Run("activity is limited to the requested users", func(t *testing.T) {
		activity, err := s.CountActivity(ctx, []uint{b.ID})
		require.NoError(t, err)
		assert.Len(t, activity, 1)
	})

	t.Run("empty input", func(t *testing.T) {
		counts, err := s.CountCommentsByPosts(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, counts)
		activity, err := s.CountActivity(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, activity)
	})
}
