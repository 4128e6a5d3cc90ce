package forum

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KAsare1/social-api/cmd/models"
	"github.com/KAsare1/social-api/repository"
	"github.com/KAsare1/social-api/service"
	"github.com/KAsare1/social-api/service/servicetest"
)

func newEnv(t *testing.T) *servicetest.Env {
	return servicetest.New(t, func(d service.Deps) []servicetest.Registrar {
		return servicetest.Routes(NewPostHandler(d))
	})
}

func TestCreatePost(t *testing.T) {
	env := newEnv(t)
	alice, token := env.User("alice")

	rr := env.Do(http.MethodPost, "/api/v1/posts", token, map[string]string{"content": "  hello world  "})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var detail models.PostDetail
	servicetest.Decode(t, rr, &detail)
	assert.Equal(t, "hello world", detail.Content)
	assert.Equal(t, alice.Summary(), detail.Author)
	assert.NotNil(t, detail.LastComments)

	tests := []struct {
		name    string
		token   string
		content string
		status  int
	}{
		{"empty", token, "   ", http.StatusBadRequest},
		{"too long", token, strings.Repeat("x", repository.MaxPostLength+1), http.StatusBadRequest},
		{"at limit", token, strings.Repeat("x", repository.MaxPostLength), http.StatusCreated},
		{"anonymous", "", "hi", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.Do(http.MethodPost, "/api/v1/posts", tt.token, map[string]string{"content": tt.content})
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
		})
	}

	rr = env.Do(http.MethodPost, "/api/v1/posts", token, map[string]string{"body": "wrong field"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPostViews(t *testing.T) {
	env := newEnv(t)
	alice, aliceToken := env.User("alice")
	bob, bobToken := env.User("bob")

	rr := env.Do(http.MethodPost, "/api/v1/posts", aliceToken, map[string]string{"content": "hello"})
	require.Equal(t, http.StatusCreated, rr.Code)
	var post models.PostDetail
	servicetest.Decode(t, rr, &post)
	postPath := fmt.Sprintf("/api/v1/posts/%d", post.ID)

	var commentIDs []uint
	for i := 1; i <= 4; i++ {
		rr := env.Do(http.MethodPost, postPath+"/comments", bobToken, map[string]string{"content": fmt.Sprintf("c%d", i)})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		var c models.CommentView
		servicetest.Decode(t, rr, &c)
		assert.Equal(t, bob.Summary(), c.Author)
		assert.Equal(t, post.ID, c.PostID)
		commentIDs = append(commentIDs, c.ID)
	}

	t.Run("detail has three latest comments", func(t *testing.T) {
		rr := env.Do(http.MethodGet, postPath, aliceToken, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var detail models.PostDetail
		servicetest.Decode(t, rr, &detail)
		assert.EqualValues(t, 4, detail.CommentsCount)
		require.Len(t, detail.LastComments, 3)
		assert.Equal(t, "c4", detail.LastComments[0].Content)
	})

	t.Run("extended view has whole thread in order", func(t *testing.T) {
		rr := env.Do(http.MethodGet, postPath+"/extended", aliceToken, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var ext models.ExtendedPost
		servicetest.Decode(t, rr, &ext)
		require.Len(t, ext.Comments, 4)
		for i, c := range ext.Comments {
			assert.Equal(t, commentIDs[i], c.ID)
		}
		assert.Equal(t, alice.ID, ext.AuthorDetail.UserID)
		assert.EqualValues(t, 1, ext.AuthorDetail.PostCount)
	})

	t.Run("extended view of a post without comments", func(t *testing.T) {
		rr := env.Do(http.MethodPost, "/api/v1/posts", bobToken, map[string]string{"content": "quiet"})
		require.Equal(t, http.StatusCreated, rr.Code)
		var quiet models.PostDetail
		servicetest.Decode(t, rr, &quiet)

		rr = env.Do(http.MethodGet, fmt.Sprintf("/api/v1/posts/%d/extended", quiet.ID), bobToken, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"comments":[]`)
	})

	t.Run("comment thread pages", func(t *testing.T) {
		rr := env.Do(http.MethodGet, postPath+"/comments?page_size=3", aliceToken, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var page repository.Page[models.CommentView]
		servicetest.Decode(t, rr, &page)
		require.Len(t, page.Items, 3)
		assert.Equal(t, "c1", page.Items[0].Content)

		rr = env.Do(http.MethodGet, fmt.Sprintf("%s/comments?page_size=3&cursor=%d", postPath, page.NextCursor), aliceToken, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var rest repository.Page[models.CommentView]
		servicetest.Decode(t, rr, &rest)
		require.Len(t, rest.Items, 1)
		assert.Equal(t, "c4", rest.Items[0].Content)
		assert.Zero(t, rest.NextCursor)
	})

	t.Run("single comment", func(t *testing.T) {
		rr := env.Do(http.MethodGet, fmt.Sprintf("/api/v1/comments/%d", commentIDs[1]), aliceToken, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var c models.CommentView
		servicetest.Decode(t, rr, &c)
		assert.Equal(t, "c2", c.Content)
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name   string
			method string
			path   string
			body   interface{}
			status int
		}{
			{"unknown post", http.MethodGet, "/api/v1/posts/999", nil, http.StatusNotFound},
			{"unknown extended post", http.MethodGet, "/api/v1/posts/999/extended", nil, http.StatusNotFound},
			{"unknown post comments", http.MethodGet, "/api/v1/posts/999/comments", nil, http.StatusNotFound},
			{"comment on unknown post", http.MethodPost, "/api/v1/posts/999/comments", map[string]string{"content": "hi"}, http.StatusNotFound},
			{"empty comment", http.MethodPost, postPath + "/comments", map[string]string{"content": ""}, http.StatusBadRequest},
			{"long comment", http.MethodPost, postPath + "/comments", map[string]string{"content": strings.Repeat("x", repository.MaxCommentLength+1)}, http.StatusBadRequest},
			{"unknown comment", http.MethodGet, "/api/v1/comments/999", nil, http.StatusNotFound},
			{"bad post id", http.MethodGet, "/api/v1/posts/zero", nil, http.StatusBadRequest},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rr := env.Do(tt.method, tt.path, aliceToken, tt.body)
				assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			})
		}
	})
}

func TestListPosts(t *testing.T) {
	env := newEnv(t)
	alice, aliceToken := env.User("alice")
	_, bobToken := env.User("bob")

	for i, token := range []string{aliceToken, bobToken, aliceToken} {
		rr := env.Do(http.MethodPost, "/api/v1/posts", token, map[string]string{"content": fmt.Sprintf("post %d", i)})
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	list := func(t *testing.T, query string) repository.Page[models.PostSummary] {
		t.Helper()
		rr := env.Do(http.MethodGet, "/api/v1/posts"+query, aliceToken, nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var page repository.Page[models.PostSummary]
		servicetest.Decode(t, rr, &page)
		return page
	}

	all := list(t, "")
	require.Len(t, all.Items, 3)
	assert.Equal(t, "post 2", all.Items[0].Content)
	assert.Zero(t, all.NextCursor)

	byAlice := list(t, fmt.Sprintf("?author_id=%d", alice.ID))
	require.Len(t, byAlice.Items, 2)
	for _, p := range byAlice.Items {
		assert.Equal(t, alice.ID, p.Author.ID)
	}

	first := list(t, "?page_size=2")
	require.Len(t, first.Items, 2)
	second := list(t, fmt.Sprintf("?page_size=2&cursor=%d", first.NextCursor))
	require.Len(t, second.Items, 1)
	assert.Equal(t, "post 0", second.Items[0].Content)

	// The test clock starts on 2024-01-01.
	assert.Len(t, list(t, "?created_after=2024-01-01").Items, 3)
	assert.Len(t, list(t, "?created_before=2024-01-01").Items, 3)
	assert.Empty(t, list(t, "?created_after=2024-01-02").Items)
	assert.Empty(t, list(t, "?created_before=2023-12-31T23:59:59Z").Items)

	for _, query := range []string{"?author_id=x", "?created_after=yesterday", "?created_before=2024-13-01", "?cursor=-3"} {
		rr := env.Do(http.MethodGet, "/api/v1/posts"+query, aliceToken, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, query)
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in       string
		endOfDay bool
		want     time.Time
	}{
		{"2024-03-05", false, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"2024-03-05", true, time.Date(2024, 3, 5, 23, 59, 59, 999999999, time.UTC)},
		{"2024-03-05T10:00:00+02:00", true, time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTime(tt.in, tt.endOfDay)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}
