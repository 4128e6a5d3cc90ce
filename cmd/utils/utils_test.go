package utils

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/KAsare1/social-api/repository"
)

func TestTokenIssuer(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute, time.Hour)

	pair, err := issuer.Issue(42)
	require.NoError(t, err)
	assert.EqualValues(t, 42, pair.UserID)

	id, err := issuer.ParseAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.EqualValues(t, 42, id)

	id, err = issuer.ParseRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.EqualValues(t, 42, id)

	t.Run("token kinds are not interchangeable", func(t *testing.T) {
		_, err := issuer.ParseAccess(pair.RefreshToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
		_, err = issuer.ParseRefresh(pair.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenIssuer("other", time.Minute, time.Hour)
		_, err := other.ParseAccess(pair.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		old := NewTokenIssuer("secret", time.Minute, time.Hour)
		old.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
		stale, err := old.Issue(1)
		require.NoError(t, err)
		_, err = issuer.ParseAccess(stale.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := issuer.ParseAccess("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestAuthMiddleware(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute, time.Hour)
	pair, err := issuer.Issue(7)
	require.NoError(t, err)

	handler := issuer.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := GetUserIDFromContext(r.Context())
		require.NoError(t, err)
		fmt.Fprint(w, id)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"refresh token", "Bearer " + pair.RefreshToken, http.StatusUnauthorized},
		{"valid", "Bearer " + pair.AccessToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.status, rr.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "7", rr.Body.String())
			}
		})
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{repository.ErrUnknownUser, http.StatusNotFound},
		{fmt.Errorf("get: %w", repository.ErrUnknownPost), http.StatusNotFound},
		{repository.ErrUnknownComment, http.StatusNotFound},
		{repository.ErrSelfFollow, http.StatusBadRequest},
		{repository.ErrEmptyContent, http.StatusBadRequest},
		{repository.ErrContentTooLong, http.StatusBadRequest},
		{repository.ErrInvalidUser, http.StatusBadRequest},
		{repository.ErrDuplicateUser, http.StatusConflict},
		{fmt.Errorf("op: %w: %w", repository.ErrUnavailable, errors.New("conn reset")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}

func TestWriteErrorHidesInternalDetails(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, errors.New("pq: password authentication failed"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	WriteError(rr, fmt.Errorf("follow 1->1: %w", repository.ErrSelfFollow))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"users cannot follow themselves"}`, rr.Body.String())
}

func TestPageFromQuery(t *testing.T) {
	tests := []struct {
		query string
		want  repository.PageRequest
		ok    bool
	}{
		{"", repository.PageRequest{Size: repository.DefaultPageSize}, true},
		{"page_size=5&cursor=10", repository.PageRequest{Size: 5, Cursor: 10}, true},
		{"page_size=1000", repository.PageRequest{Size: repository.MaxPageSize}, true},
		{"page_size=0", repository.PageRequest{}, false},
		{"cursor=-1", repository.PageRequest{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			got, ok := PageFromQuery(req)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestPathID(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := PathID(r, "id")
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, id)
	})

	for path, status := range map[string]int{
		"/users/12":  http.StatusOK,
		"/users/0":   http.StatusBadRequest,
		"/users/abc": http.StatusBadRequest,
	} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, status, rr.Code, path)
	}
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, RequestIDFromContext(r.Context()))
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "fixed-id")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, "fixed-id", rr.Header().Get(RequestIDHeader))

	require.Equal(t, 2, logs.Len())
	entry := logs.All()[1]
	assert.Equal(t, "fixed-id", entry.ContextMap()["request_id"])
	assert.EqualValues(t, http.StatusTeapot, entry.ContextMap()["status"])
}
