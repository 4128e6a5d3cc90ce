// Package servicetest builds handlers over the in-memory store and drives
// them with authenticated JSON requests.
package servicetest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/KAsare1/social-api/cmd/models"
	"github.com/KAsare1/social-api/cmd/utils"
	"github.com/KAsare1/social-api/repository/memory"
	"github.com/KAsare1/social-api/repository/repotest"
	"github.com/KAsare1/social-api/service"
)

const Password = "correct horse"

// Env is a router with one resource's routes under /api/v1.
type Env struct {
	T      *testing.T
	Store  *memory.Store
	Deps   service.Deps
	Router *mux.Router
}

// Registrar is implemented by every resource handler.
type Registrar interface {
	RegisterRoutes(router *mux.Router)
}

// New builds deps over a fresh store and registers the handlers build returns.
func New(t *testing.T, build func(service.Deps) []Registrar) *Env {
	t.Helper()
	store := memory.New().WithClock(repotest.NewClock().Now)
	tokens := utils.NewTokenIssuer("test-secret", time.Hour, 24*time.Hour)
	deps := service.NewDeps(store, tokens, nil, nil, zap.NewNop())

	router := mux.NewRouter()
	sub := router.PathPrefix("/api/v1").Subrouter()
	for _, r := range build(deps) {
		r.RegisterRoutes(sub)
	}
	return &Env{T: t, Store: store, Deps: deps, Router: router}
}

// Routes adapts handler constructors for New.
func Routes(rs ...Registrar) []Registrar { return rs }

// User creates a user with Password and returns it with an access token.
func (e *Env) User(username string) (*models.User, string) {
	e.T.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	require.NoError(e.T, err)
	u := &models.User{Username: username, Email: username + "@example.com", PasswordHash: string(hash)}
	require.NoError(e.T, e.Store.CreateUser(context.Background(), u))
	pair, err := e.Deps.Tokens.Issue(u.ID)
	require.NoError(e.T, err)
	return u, pair.AccessToken
}

// Do sends a request with an optional JSON body and bearer token.
func (e *Env) Do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	e.T.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.T, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.Router.ServeHTTP(rr, req)
	return rr
}

// Decode unmarshals a recorded response body into v.
func Decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}
