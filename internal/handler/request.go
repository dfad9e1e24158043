package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/eventhub/internal/apperror"
	"github.com/sakif/eventhub/internal/auth"
	"github.com/sakif/eventhub/internal/media"
	"github.com/sakif/eventhub/internal/model"
	"github.com/sakif/eventhub/internal/repository"
)

// maxJSONBytes caps JSON request bodies. Uploads have their own limit.
const maxJSONBytes = 1 << 20

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return apperror.ValidationFailed("", "Request body too large")
		}
		return apperror.ValidationFailed("", "Invalid JSON body")
	}
	return nil
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// parseMultipart reads a multipart form no bigger than maxBytes.
func parseMultipart(w http.ResponseWriter, r *http.Request, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	// Small parts stay in memory; anything larger spills to a temp file.
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return apperror.ValidationFailed("thumbnail",
				fmt.Sprintf("Upload exceeds the %d byte limit", maxBytes))
		}
		return apperror.ValidationFailed("", "Invalid multipart form")
	}
	return nil
}

// formUpload pulls a file part out of a parsed multipart form. A missing part
// returns a nil Upload. The caller closes the returned file.
func formUpload(r *http.Request, field string) (*media.Upload, multipart.File, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil, nil
		}
		return nil, nil, apperror.ValidationFailed(field, "Could not read "+field)
	}
	return &media.Upload{
		Filename: header.Filename,
		Size:     header.Size,
		Body:     file,
	}, file, nil
}

// currentUser returns the user attached by auth.RequireUser.
func currentUser(r *http.Request) (*model.User, error) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		return nil, apperror.Unauthorized("Unauthorized request")
	}
	return u, nil
}

func eventIDParam(r *http.Request) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, "eventId"))
	if id == "" {
		return "", apperror.ValidationFailed("eventId", "Event-ID not received")
	}
	return id, nil
}

// listOptions reads ?limit= and ?offset=. Out-of-range values are clamped by
// the repository; non-numeric ones are rejected.
func listOptions(r *http.Request) (repository.ListOptions, error) {
	var opts repository.ListOptions
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, apperror.ValidationFailed("limit", "limit must be an integer")
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, apperror.ValidationFailed("offset", "offset must be an integer")
		}
		opts.Offset = n
	}
	return opts.Normalize(), nil
}
