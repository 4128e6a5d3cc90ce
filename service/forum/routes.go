package forum

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/KAsare1/social-api/cmd/utils"
	"github.com/KAsare1/social-api/repository"
	"github.com/KAsare1/social-api/service"
)

const dateLayout = "2006-01-02"

type PostHandler struct {
	deps service.Deps
	log  *zap.Logger
}

func NewPostHandler(deps service.Deps) *PostHandler {
	return &PostHandler{deps: deps, log: deps.Log.Named("forum")}
}

func (h *PostHandler) RegisterRoutes(router *mux.Router) {
	auth := h.deps.Tokens.Auth

	// Post routes
	router.HandleFunc("/posts", auth(h.CreatePost)).Methods("POST")
	router.HandleFunc("/posts", auth(h.GetPosts)).Methods("GET")
	router.HandleFunc("/posts/{id}", auth(h.GetPost)).Methods("GET")
	router.HandleFunc("/posts/{id}/extended", auth(h.GetExtendedPost)).Methods("GET")

	// Comment routes
	router.HandleFunc("/posts/{id}/comments", auth(h.AddComment)).Methods("POST")
	router.HandleFunc("/posts/{id}/comments", auth(h.GetComments)).Methods("GET")
	router.HandleFunc("/comments/{id}", auth(h.GetComment)).Methods("GET")
}

type contentRequest struct {
	Content string `json:"content"`
}

// CreatePost creates a new post authored by the caller.
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteErrorMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req contentRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	post, err := h.deps.Store.CreatePost(r.Context(), userID, req.Content)
	if err != nil {
		h.fail(w, r, "create post", err)
		return
	}
	h.deps.Invalidator.Invalidate(r.Context(), userID)

	detail, err := h.deps.Feed.GetPostDetail(r.Context(), post.ID)
	if err != nil {
		h.fail(w, r, "load created post", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, detail)
}

// GetPosts lists posts newest first, optionally filtered by author and
// creation time.
func (h *PostHandler) GetPosts(w http.ResponseWriter, r *http.Request) {
	page, ok := utils.PageFromQuery(r)
	if !ok {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Invalid pagination parameters")
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		utils.WriteErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	posts, err := h.deps.Feed.ListPosts(r.Context(), filter, page)
	if err != nil {
		h.fail(w, r, "list posts", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, posts)
}

// GetPost returns a post with its three most recent comments.
func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	postID, ok := utils.PathID(r, "id")
	if !ok {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Invalid post ID")
		return
	}

	detail, err := h.deps.Feed.GetPostDetail(r.Context(), postID)
	if err != nil {
		h.fail(w, r, "get post", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, detail)
}

func (h *PostHandler) GetExtendedPost(w http.ResponseWriter, r *http.Request) {
	postID, ok := utils.PathID(r, "id")
	if !ok {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Invalid post ID")
		return
	}

	post, err := h.deps.Feed.GetExtendedPost(r.Context(), postID)
	if err != nil {
		h.fail(w, r, "get extended post", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, post)
}

// AddComment adds a comment by the caller to a post.
func (h *PostHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteErrorMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	postID, ok := utils.PathID(r, "id")
	if !ok {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Invalid post ID")
		return
	}

	var req contentRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	comment, err := h.deps.Store.CreateComment(r.Context(), postID, userID, req.Content)
	if err != nil {
		h.fail(w, r, "add comment", err)
		return
	}
	h.deps.Invalidator.Invalidate(r.Context(), userID)

	view, err := h.deps.Feed.Comment(r.Context(), comment.ID)
	if err != nil {
		h.fail(w, r, "load created comment", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, view)
}

// GetComments lists a post's comments oldest first.
func (h *PostHandler) GetComments(w http.ResponseWriter, r *http.Request) {
	postID, ok := utils.PathID(r, "id")
	if !ok {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Invalid post ID")
		return
	}
	page, ok := utils.PageFromQuery(r)
	if !ok {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Invalid pagination parameters")
		return
	}

	comments, err := h.deps.Feed.Comments(r.Context(), postID, page)
	if err != nil {
		h.fail(w, r, "list comments", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, comments)
}

func (h *PostHandler) GetComment(w http.ResponseWriter, r *http.Request) {
	commentID, ok := utils.PathID(r, "id")
	if !ok {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Invalid comment ID")
		return
	}

	view, err := h.deps.Feed.Comment(r.Context(), commentID)
	if err != nil {
		h.fail(w, r, "get comment", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, view)
}

func (h *PostHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if utils.StatusOf(err) >= http.StatusInternalServerError {
		h.log.Error(op, zap.String("request_id", utils.RequestIDFromContext(r.Context())), zap.Error(err))
	}
	utils.WriteError(w, err)
}

type filterError string

func (e filterError) Error() string { return string(e) }

func parseFilter(r *http.Request) (repository.PostFilter, error) {
	var filter repository.PostFilter
	q := r.URL.Query()

	if v := q.Get("author_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil || id == 0 {
			return filter, filterError("Invalid author_id")
		}
		filter.AuthorID = uint(id)
	}
	if v := q.Get("created_after"); v != "" {
		t, err := parseTime(v, false)
		if err != nil {
			return filter, filterError("Invalid created_after")
		}
		filter.CreatedAfter = t
	}
	if v := q.Get("created_before"); v != "" {
		t, err := parseTime(v, true)
		if err != nil {
			return filter, filterError("Invalid created_before")
		}
		filter.CreatedBefore = t
	}
	return filter, nil
}

// parseTime accepts RFC 3339 timestamps and bare dates. A bare date covers
// the whole UTC day, so as an upper bound it means the last instant of it.
func parseTime(v string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
