package user

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/KAsare1/social-api/cmd/models"
	"github.com/KAsare1/social-api/cmd/utils"
	"github.com/KAsare1/social-api/repository"
	"github.com/KAsare1/social-api/service"
)

const minPasswordLength = 8

type Handler struct {
	deps service.Deps
	log  *zap.Logger
}

func NewHandler(deps service.Deps) *Handler {
	return &Handler{deps: deps, log: deps.Log.Named("user")}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	auth := h.deps.Tokens.Auth

	router.HandleFunc("/token", h.handleLogin).Methods("POST")
	router.HandleFunc("/token/refresh", h.handleRefreshToken).Methods("POST")

	router.HandleFunc("/users", h.HandleRegister).Methods("POST")
	router.HandleFunc("/users", auth(h.GetUsers)).Methods("GET")
	router.HandleFunc("/users/{id}", auth(h.GetUser)).Methods("GET")
	router.HandleFunc("/users/{id}/stats", auth(h.GetStats)).Methods("GET")

	// Follow graph
	router.HandleFunc("/users/{id}/followers", auth(h.GetFollowers)).Methods("GET")
	router.HandleFunc("/users/{id}/following", auth(h.GetFollowing)).Methods("GET")
	router.HandleFunc("/users/{id}/follow", auth(h.Follow)).Methods("POST")
	router.HandleFunc("/users/{id}/follow", auth(h.Unfollow)).Methods("DELETE")
	router.HandleFunc("/users/{id}/follow", auth(h.IsFollowing)).Methods("GET")
}

type userResponse struct {
	ID         uint      `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email,omitempty"`
	DateJoined time.Time `json:"date_joined"`
}

func newUserResponse(u *models.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, DateJoined: u.CreatedAt}
}

// userListItem is a user in GET /users, with the counts the listing shows.
type userListItem struct {
	userResponse
	PostCount      int64 `json:"total_posts"`
	CommentCount   int64 `json:"total_comments"`
	FollowerCount  int64 `json:"followers_count"`
	FollowingCount int64 `json:"following_count"`
}

type followResponse struct {
	Following bool `json:"following"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var loginRequest struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := utils.DecodeJSON(r, &loginRequest); err != nil {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.deps.Store.GetUserByUsername(r.Context(), loginRequest.Username)
	if err != nil {
		h.log.Error("login lookup failed", zap.Error(err))
		utils.WriteError(w, err)
		return
	}
	if user == nil {
		utils.WriteErrorMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(loginRequest.Password)); err != nil {
		utils.WriteErrorMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	pair, err := h.deps.Tokens.Issue(user.ID)
	if err != nil {
		h.log.Error("issue tokens", zap.Uint("user", user.ID), zap.Error(err))
		utils.WriteErrorMessage(w, http.StatusInternalServerError, "Error generating tokens")
		return
	}
	utils.WriteJSON(w, http.StatusOK, pair)
}

func (h *Handler) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var refreshRequest struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := utils.DecodeJSON(r, &refreshRequest); err != nil {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Invalid request")
		return
	}

	userID, err := h.deps.Tokens.ParseRefresh(refreshRequest.RefreshToken)
	if err != nil {
		utils.WriteErrorMessage(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	user, err := h.deps.Store.GetUser(r.Context(), userID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	if user == nil {
		utils.WriteErrorMessage(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	pair, err := h.deps.Tokens.Issue(user.ID)
	if err != nil {
		h.log.Error("refresh tokens", zap.Uint("user", user.ID), zap.Error(err))
		utils.WriteErrorMessage(w, http.StatusInternalServerError, "Error generating new token")
		return
	}
	h.log.Debug("token refreshed", zap.Uint("user", user.ID))
	utils.WriteJSON(w, http.StatusOK, pair)
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var registerRequest struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := utils.DecodeJSON(r, &registerRequest); err != nil {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Invalid JSON input")
		return
	}
	if registerRequest.Username == "" || registerRequest.Email == "" || registerRequest.Password == "" {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if len(registerRequest.Password) < minPasswordLength {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(registerRequest.Password), bcrypt.DefaultCost)
	if err != nil {
		h.log.Error("hash password", zap.Error(err))
		utils.WriteErrorMessage(w, http.StatusInternalServerError, "Error hashing password")
		return
	}

	user := &models.User{
		Username:     registerRequest.Username,
		Email:        registerRequest.Email,
		PasswordHash: string(passwordHash),
	}
	if err := h.deps.Store.CreateUser(r.Context(), user); err != nil {
		if utils.StatusOf(err) >= http.StatusInternalServerError {
			h.log.Error("register user", zap.Error(err))
		}
		utils.WriteError(w, err)
		return
	}

	h.log.Info("user registered", zap.Uint("user", user.ID), zap.String("username", user.Username))
	resp := newUserResponse(user)
	resp.Email = user.Email
	utils.WriteJSON(w, http.StatusCreated, resp)
}

// GetUsers lists users in id order, optionally narrowed to an exact
// username or email. Counts for the whole page come from one batch.
func (h *Handler) GetUsers(w http.ResponseWriter, r *http.Request) {
	page, ok := utils.PageFromQuery(r)
	if !ok {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Invalid pagination parameters")
		return
	}
	query := r.URL.Query()
	filter := repository.UserFilter{Username: query.Get("username"), Email: query.Get("email")}

	users, err := h.deps.Store.ListUsers(r.Context(), filter, page)
	if err != nil {
		h.fail(w, r, "list users", err)
		return
	}

	ids := make([]uint, 0, len(users.Items))
	for _, u := range users.Items {
		ids = append(ids, u.ID)
	}
	activity, err := h.deps.Store.CountActivity(r.Context(), ids)
	if err != nil {
		h.fail(w, r, "count user activity", err)
		return
	}

	out := repository.Page[userListItem]{
		Items:      make([]userListItem, 0, len(users.Items)),
		NextCursor: users.NextCursor,
	}
	for i := range users.Items {
		u := &users.Items[i]
		a := activity[u.ID]
		out.Items = append(out.Items, userListItem{
			userResponse:   newUserResponse(u),
			PostCount:      a.Posts,
			CommentCount:   a.Comments,
			FollowerCount:  a.Followers,
			FollowingCount: a.Following,
		})
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

// GetUser returns the user's profile: identity plus current statistics.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathID(r, "id")
	if !ok {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	profile, err := h.deps.Feed.GetProfile(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get profile", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, profile)
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathID(r, "id")
	if !ok {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	stats, err := h.deps.Stats.ComputeStats(r.Context(), id)
	if err != nil {
		h.fail(w, r, "compute stats", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) GetFollowers(w http.ResponseWriter, r *http.Request) {
	h.listEdges(w, r, h.deps.Store.ListFollowers)
}

func (h *Handler) GetFollowing(w http.ResponseWriter, r *http.Request) {
	h.listEdges(w, r, h.deps.Store.ListFollowing)
}

type edgeLister func(ctx context.Context, userID uint, page repository.PageRequest) (repository.Page[models.UserSummary], error)

func (h *Handler) listEdges(w http.ResponseWriter, r *http.Request, list edgeLister) {
	id, ok := utils.PathID(r, "id")
	if !ok {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Invalid user ID")
		return
	}
	page, ok := utils.PageFromQuery(r)
	if !ok {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Invalid pagination parameters")
		return
	}

	users, err := list(r.Context(), id, page)
	if err != nil {
		h.fail(w, r, "list follow edges", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, users)
}

// Follow makes the caller follow the user in the path.
func (h *Handler) Follow(w http.ResponseWriter, r *http.Request) {
	followerID, followeeID, ok := h.edge(w, r)
	if !ok {
		return
	}

	if err := h.deps.Store.Follow(r.Context(), followerID, followeeID); err != nil {
		h.fail(w, r, "follow", err)
		return
	}
	h.deps.Invalidator.Invalidate(r.Context(), followerID, followeeID)
	utils.WriteJSON(w, http.StatusOK, followResponse{Following: true})
}

func (h *Handler) Unfollow(w http.ResponseWriter, r *http.Request) {
	followerID, followeeID, ok := h.edge(w, r)
	if !ok {
		return
	}

	if err := h.deps.Store.Unfollow(r.Context(), followerID, followeeID); err != nil {
		h.fail(w, r, "unfollow", err)
		return
	}
	h.deps.Invalidator.Invalidate(r.Context(), followerID, followeeID)
	utils.WriteJSON(w, http.StatusOK, followResponse{Following: false})
}

func (h *Handler) IsFollowing(w http.ResponseWriter, r *http.Request) {
	followerID, followeeID, ok := h.edge(w, r)
	if !ok {
		return
	}

	target, err := h.deps.Store.GetUser(r.Context(), followeeID)
	if err != nil {
		h.fail(w, r, "is following", err)
		return
	}
	if target == nil {
		utils.WriteError(w, repository.ErrUnknownUser)
		return
	}

	following, err := h.deps.Store.IsFollowing(r.Context(), followerID, followeeID)
	if err != nil {
		h.fail(w, r, "is following", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, followResponse{Following: following})
}

// edge reads the caller and the path user of a follow request.
func (h *Handler) edge(w http.ResponseWriter, r *http.Request) (uint, uint, bool) {
	followerID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteErrorMessage(w, http.StatusUnauthorized, "Unauthorized")
		return 0, 0, false
	}
	followeeID, ok := utils.PathID(r, "id")
	if !ok {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Invalid user ID")
		return 0, 0, false
	}
	return followerID, followeeID, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if utils.StatusOf(err) >= http.StatusInternalServerError {
		h.log.Error(op, zap.String("request_id", utils.RequestIDFromContext(r.Context())), zap.Error(err))
	}
	utils.WriteError(w, err)
}
