// Package gormstore implements repository.Store on a relational database
// through gorm. Production runs on PostgreSQL; the tests run on SQLite.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/KAsare1/social-api/cmd/models"
	"github.com/KAsare1/social-api/db"
	"github.com/KAsare1/social-api/repository"
)

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

var _ repository.Store = (*Store)(nil)

func New(DB *gorm.DB, log *zap.Logger) *Store {
	return &Store{db: DB, log: log.Named("store")}
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if err := repository.NormalizeUser(user); err != nil {
		return err
	}

	err := db.RetryTransient(ctx, s.log, "create user", func() error {
		return s.db.WithContext(ctx).Create(user).Error
	})
	if isUniqueViolation(err) {
		s.log.Debug("duplicate registration", zap.String("username", user.Username))
		return repository.ErrDuplicateUser
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &user, nil
}

func (s *Store) GetUsers(ctx context.Context, ids []uint) (map[uint]models.User, error) {
	users := make(map[uint]models.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	var rows []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	for _, u := range rows {
		users[u.ID] = u
	}
	return users, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user %q: %w", username, err)
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context, filter repository.UserFilter, page repository.PageRequest) (repository.Page[models.User], error) {
	page = page.Normalize()
	filter = filter.Normalize()

	query := s.db.WithContext(ctx).Where("id > ?", page.Cursor)
	if filter.Username != "" {
		query = query.Where("username = ?", filter.Username)
	}
	if filter.Email != "" {
		query = query.Where("email = ?", filter.Email)
	}

	var users []models.User
	err := query.
		Order("id ASC").
		Limit(page.Size + 1).
		Find(&users).Error
	if err != nil {
		return repository.Page[models.User]{}, fmt.Errorf("list users: %w", err)
	}
	return repository.NewPage(users, page.Size, func(u models.User) uint { return u.ID }), nil
}

// requireUsers fails with ErrUnknownUser unless every id names a live user.
func requireUsers(tx *gorm.DB, ids ...uint) error {
	unique := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	distinct := make([]uint, 0, len(unique))
	for id := range unique {
		distinct = append(distinct, id)
	}

	var n int64
	if err := tx.Model(&models.User{}).Where("id IN ?", distinct).Count(&n).Error; err != nil {
		return err
	}
	if n != int64(len(distinct)) {
		return repository.ErrUnknownUser
	}
	return nil
}

// CountActivity runs one grouped count per kind of activity, whatever the
// number of users.
func (s *Store) CountActivity(ctx context.Context, userIDs []uint) (map[uint]repository.Activity, error) {
	activity := make(map[uint]repository.Activity)
	if len(userIDs) == 0 {
		return activity, nil
	}

	kinds := []struct {
		model  interface{}
		column string
		add    func(*repository.Activity, int64)
	}{
		{&models.Post{}, "author_id", func(a *repository.Activity, n int64) { a.Posts = n }},
		{&models.Comment{}, "author_id", func(a *repository.Activity, n int64) { a.Comments = n }},
		{&models.Follow{}, "followee_id", func(a *repository.Activity, n int64) { a.Followers = n }},
		{&models.Follow{}, "follower_id", func(a *repository.Activity, n int64) { a.Following = n }},
	}
	for _, k := range kinds {
		counts, err := s.countBy(ctx, k.model, k.column, userIDs)
		if err != nil {
			return nil, err
		}
		for id, n := range counts {
			a := activity[id]
			k.add(&a, n)
			activity[id] = a
		}
	}
	return activity, nil
}

type groupCount struct {
	GroupKey uint
	N        int64
}

// countBy counts rows of model grouped by column, for the given column values.
func (s *Store) countBy(ctx context.Context, model interface{}, column string, ids []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64)
	if len(ids) == 0 {
		return counts, nil
	}

	var rows []groupCount
	err := s.db.WithContext(ctx).Model(model).
		Select(column+" AS group_key, COUNT(*) AS n").
		Where(column+" IN ?", ids).
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count %T by %s: %w", model, column, err)
	}
	for _, r := range rows {
		counts[r.GroupKey] = r.N
	}
	return counts, nil
}

// pgUniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// SQLite, used by the tests, only reports the violation in its message.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
