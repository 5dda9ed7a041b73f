package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/yueliao11/Donate-On-Flow/internal/storage"
)

// multipartOverhead leaves room for boundaries and part headers.
const multipartOverhead = 64 << 10

// UploadImage stores a project image sent either as multipart field "image"
// or as the raw request body.
func (a *App) UploadImage(w http.ResponseWriter, r *http.Request) {
	if a.Images == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "image storage not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, a.Images.MaxBytes()+multipartOverhead)

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		file, _, err := r.FormFile("image")
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				a.fail(w, r, storage.ErrTooLarge)
				return
			}
			a.error(w, http.StatusBadRequest, "bad_request", "multipart field \"image\" is required")
			return
		}
		defer file.Close()
		src = file
	}

	obj, err := a.Images.Upload(r.Context(), src)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			err = storage.ErrTooLarge
		}
		a.fail(w, r, err)
		return
	}
	a.Logger.Info().Str("key", obj.Key).Int64("bytes", obj.Size).Msg("image uploaded")
	a.json(w, http.StatusCreated, obj)
}
