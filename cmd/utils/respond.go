package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/KAsare1/social-api/repository"
)

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// StatusOf maps a service error to its HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, repository.ErrUnknownUser),
		errors.Is(err, repository.ErrUnknownPost),
		errors.Is(err, repository.ErrUnknownComment):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrSelfFollow),
		errors.Is(err, repository.ErrEmptyContent),
		errors.Is(err, repository.ErrContentTooLong),
		errors.Is(err, repository.ErrInvalidUser):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrDuplicateUser):
		return http.StatusConflict
	case errors.Is(err, repository.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// WriteError writes err with the status StatusOf picks. Internal errors are
// not echoed to the client.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	message := http.StatusText(status)
	if status < http.StatusInternalServerError {
		message = rootMessage(err)
	}
	WriteErrorMessage(w, status, message)
}

// rootMessage returns the message of the sentinel at the bottom of err's
// wrap chain.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

// PathID parses a positive numeric mux route variable.
func PathID(r *http.Request, name string) (uint, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)[name], 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// PageFromQuery reads page_size and cursor. Missing values yield the
// defaults and malformed ones are reported.
func PageFromQuery(r *http.Request) (repository.PageRequest, bool) {
	var page repository.PageRequest
	q := r.URL.Query()
	if v := q.Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return page, false
		}
		page.Size = n
	}
	if v := q.Get("cursor"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return page, false
		}
		page.Cursor = uint(n)
	}
	return page.Normalize(), true
}

// DecodeJSON decodes a request body, rejecting unknown fields.
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
