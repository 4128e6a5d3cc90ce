package user

import (
	"context"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KAsare1/social-api/cmd/models"
	"github.com/KAsare1/social-api/cmd/utils"
	"github.com/KAsare1/social-api/repository"
	"github.com/KAsare1/social-api/service"
	"github.com/KAsare1/social-api/service/servicetest"
)

func newEnv(t *testing.T) *servicetest.Env {
	return servicetest.New(t, func(d service.Deps) []servicetest.Registrar {
		return servicetest.Routes(NewHandler(d))
	})
}

func TestRegister(t *testing.T) {
	env := newEnv(t)

	tests := []struct {
		name   string
		body   map[string]string
		status int
	}{
		{"ok", map[string]string{"username": "alice", "email": "Alice@Example.com", "password": "password1"}, http.StatusCreated},
		{"duplicate username", map[string]string{"username": "alice", "email": "other@example.com", "password": "password1"}, http.StatusConflict},
		{"short username", map[string]string{"username": "al", "email": "al@example.com", "password": "password1"}, http.StatusBadRequest},
		{"bad email", map[string]string{"username": "bobby", "email": "bobby", "password": "password1"}, http.StatusBadRequest},
		{"short password", map[string]string{"username": "carol", "email": "carol@example.com", "password": "short"}, http.StatusBadRequest},
		{"missing fields", map[string]string{"username": "dave"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.Do(http.MethodPost, "/api/v1/users", "", tt.body)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
		})
	}

	rr := env.Do(http.MethodGet, "/api/v1/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	u, err := env.Store.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.NotEqual(t, "password1", u.PasswordHash)
}

func TestLoginAndRefresh(t *testing.T) {
	env := newEnv(t)
	u, _ := env.User("alice")

	rr := env.Do(http.MethodPost, "/api/v1/token", "", map[string]string{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.Do(http.MethodPost, "/api/v1/token", "", map[string]string{"username": "nobody", "password": servicetest.Password})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.Do(http.MethodPost, "/api/v1/token", "", map[string]string{"username": "alice", "password": servicetest.Password})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var pair utils.TokenPair
	servicetest.Decode(t, rr, &pair)
	assert.Equal(t, u.ID, pair.UserID)
	assert.NotEmpty(t, pair.AccessToken)

	rr = env.Do(http.MethodGet, "/api/v1/users/1", pair.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = env.Do(http.MethodPost, "/api/v1/token/refresh", "", map[string]string{"refresh_token": pair.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "access tokens cannot refresh")

	rr = env.Do(http.MethodPost, "/api/v1/token/refresh", "", map[string]string{"refresh_token": pair.RefreshToken})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var refreshed utils.TokenPair
	servicetest.Decode(t, rr, &refreshed)
	assert.NotEmpty(t, refreshed.AccessToken)
}

func TestFollowEndpoints(t *testing.T) {
	env := newEnv(t)
	alice, aliceToken := env.User("alice")
	bob, bobToken := env.User("bob")

	followPath := func(id uint) string { return "/api/v1/users/" + itoa(id) + "/follow" }

	rr := env.Do(http.MethodPost, followPath(bob.ID), aliceToken, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"following":true}`, rr.Body.String())

	rr = env.Do(http.MethodPost, followPath(bob.ID), aliceToken, nil)
	assert.Equal(t, http.StatusOK, rr.Code, "follow is idempotent")

	rr = env.Do(http.MethodGet, followPath(bob.ID), aliceToken, nil)
	assert.JSONEq(t, `{"following":true}`, rr.Body.String())
	rr = env.Do(http.MethodGet, followPath(alice.ID), bobToken, nil)
	assert.JSONEq(t, `{"following":false}`, rr.Body.String())

	rr = env.Do(http.MethodGet, "/api/v1/users/"+itoa(bob.ID)+"/stats", aliceToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var stats models.UserStats
	servicetest.Decode(t, rr, &stats)
	assert.EqualValues(t, 1, stats.FollowerCount)

	rr = env.Do(http.MethodGet, "/api/v1/users/"+itoa(bob.ID)+"/followers", aliceToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var followers repository.Page[models.UserSummary]
	servicetest.Decode(t, rr, &followers)
	assert.Equal(t, []models.UserSummary{alice.Summary()}, followers.Items)

	rr = env.Do(http.MethodGet, "/api/v1/users/"+itoa(alice.ID)+"/following", aliceToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var following repository.Page[models.UserSummary]
	servicetest.Decode(t, rr, &following)
	assert.Equal(t, []models.UserSummary{bob.Summary()}, following.Items)

	rr = env.Do(http.MethodDelete, followPath(bob.ID), aliceToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"following":false}`, rr.Body.String())
	rr = env.Do(http.MethodDelete, followPath(bob.ID), aliceToken, nil)
	assert.Equal(t, http.StatusOK, rr.Code, "unfollow is idempotent")

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name   string
			method string
			path   string
			status int
		}{
			{"self follow", http.MethodPost, followPath(alice.ID), http.StatusBadRequest},
			{"unknown followee", http.MethodPost, followPath(999), http.StatusNotFound},
			{"unknown unfollow", http.MethodDelete, followPath(999), http.StatusNotFound},
			{"unknown is following", http.MethodGet, followPath(999), http.StatusNotFound},
			{"bad id", http.MethodPost, "/api/v1/users/abc/follow", http.StatusBadRequest},
			{"unknown stats", http.MethodGet, "/api/v1/users/999/stats", http.StatusNotFound},
			{"unknown profile", http.MethodGet, "/api/v1/users/999", http.StatusNotFound},
			{"unknown followers", http.MethodGet, "/api/v1/users/999/followers", http.StatusNotFound},
			{"bad page size", http.MethodGet, "/api/v1/users/1/followers?page_size=x", http.StatusBadRequest},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rr := env.Do(tt.method, tt.path, aliceToken, nil)
				assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			})
		}
	})

	rr = env.Do(http.MethodPost, followPath(bob.ID), "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestProfileAndList(t *testing.T) {
	env := newEnv(t)
	alice, token := env.User("alice")
	env.User("bob")
	env.User("carol")

	rr := env.Do(http.MethodGet, "/api/v1/users/"+itoa(alice.ID), token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var profile models.Profile
	servicetest.Decode(t, rr, &profile)
	assert.Equal(t, "alice", profile.Username)
	assert.Equal(t, alice.ID, profile.Stats.UserID)

	rr = env.Do(http.MethodGet, "/api/v1/users?page_size=2", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var page repository.Page[userListItem]
	servicetest.Decode(t, rr, &page)
	require.Len(t, page.Items, 2)
	assert.Empty(t, page.Items[0].Email)
	require.NotZero(t, page.NextCursor)

	rr = env.Do(http.MethodGet, "/api/v1/users?page_size=2&cursor="+itoa(page.NextCursor), token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var rest repository.Page[userListItem]
	servicetest.Decode(t, rr, &rest)
	require.Len(t, rest.Items, 1)
	assert.Equal(t, "carol", rest.Items[0].Username)
}

func TestListUsersCountsAndFilters(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	alice, token := env.User("alice")
	bob, _ := env.User("bob")
	env.User("carol")

	require.NoError(t, env.Store.Follow(ctx, bob.ID, alice.ID))
	post, err := env.Store.CreatePost(ctx, alice.ID, "hello")
	require.NoError(t, err)
	_, err = env.Store.CreateComment(ctx, post.ID, bob.ID, "hi")
	require.NoError(t, err)

	rr := env.Do(http.MethodGet, "/api/v1/users", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var page repository.Page[userListItem]
	servicetest.Decode(t, rr, &page)
	require.Len(t, page.Items, 3)
	assert.EqualValues(t, 1, page.Items[0].PostCount)
	assert.EqualValues(t, 1, page.Items[0].FollowerCount)
	assert.EqualValues(t, 1, page.Items[1].CommentCount)
	assert.EqualValues(t, 1, page.Items[1].FollowingCount)
	assert.Equal(t, userListItem{userResponse: page.Items[2].userResponse}, page.Items[2])

	tests := []struct {
		query string
		want  []string
	}{
		{"username=bob", []string{"bob"}},
		{"email=CAROL@example.com", []string{"carol"}},
		{"username=alice&email=bob@example.com", nil},
		{"username=nobody", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := env.Do(http.MethodGet, "/api/v1/users?"+tt.query, token, nil)
			require.Equal(t, http.StatusOK, rr.Code)
			var page repository.Page[userListItem]
			servicetest.Decode(t, rr, &page)
			var names []string
			for _, u := range page.Items {
				names = append(names, u.Username)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
