package social

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/KAsare1/social-api/cmd/models"
	"github.com/KAsare1/social-api/db"
	"github.com/KAsare1/social-api/repository"
	"github.com/KAsare1/social-api/repository/gormstore"
	"github.com/KAsare1/social-api/repository/repotest"
)

func newSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", strings.ReplaceAll(t.Name(), "/", "_"))
	DB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: repotest.NewClock().Now,
		Logger:  db.NewGormLogger(zap.NewNop()),
	})
	require.NoError(t, err)

	sqlDB, err := DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(DB, zap.NewNop()))
	return DB
}

// countStatements counts every query gorm runs on DB from now on.
func countStatements(t *testing.T, DB *gorm.DB) *int {
	t.Helper()
	n := new(int)
	inc := func(*gorm.DB) { *n++ }
	require.NoError(t, DB.Callback().Query().After("gorm:query").Register("test:count_query", inc))
	require.NoError(t, DB.Callback().Row().After("gorm:row").Register("test:count_row", inc))
	return n
}

func TestListPostsBatchesLookups(t *testing.T) {
	ctx := context.Background()
	DB := newSQLite(t)
	store := gormstore.New(DB, zap.NewNop())
	feed := NewFeed(store, NewStats(store))

	var authors []*models.User
	for i := 0; i < 10; i++ {
		authors = append(authors, repotest.CreateUser(t, store, fmt.Sprintf("author%02d", i)))
	}
	want := make(map[uint]int64)
	for i := 0; i < 100; i++ {
		post, err := store.CreatePost(ctx, authors[i%10].ID, fmt.Sprintf("post %d", i))
		require.NoError(t, err)
		for j := 0; j < i%3; j++ {
			_, err := store.CreateComment(ctx, post.ID, authors[j].ID, "reply")
			require.NoError(t, err)
		}
		want[post.ID] = int64(i % 3)
	}

	statements := countStatements(t, DB)
	page, err := feed.ListPosts(ctx, repository.PostFilter{}, repository.PageRequest{Size: 100})
	require.NoError(t, err)
	require.Len(t, page.Items, 100)

	assert.Equal(t, 3, *statements, "posts, authors and comment counts are one query each")
	for _, p := range page.Items {
		assert.Equal(t, want[p.ID], p.CommentsCount, "post %d", p.ID)
		assert.NotEmpty(t, p.Author.Username)
	}
}

func TestCommentViewsBatchAuthors(t *testing.T) {
	ctx := context.Background()
	DB := newSQLite(t)
	store := gormstore.New(DB, zap.NewNop())
	feed := NewFeed(store, NewStats(store))

	owner := repotest.CreateUser(t, store, "owner")
	post, err := store.CreatePost(ctx, owner.ID, "thread")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		u := repotest.CreateUser(t, store, fmt.Sprintf("reader%d", i))
		_, err := store.CreateComment(ctx, post.ID, u.ID, "reply")
		require.NoError(t, err)
	}

	statements := countStatements(t, DB)
	page, err := feed.Comments(ctx, post.ID, repository.PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Items, 5)

	// existence check, comment page, authors
	assert.Equal(t, 3, *statements)
}
