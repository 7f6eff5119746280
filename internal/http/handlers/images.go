package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mojiQAQ/petsphoto/internal/generation"
	"github.com/mojiQAQ/petsphoto/internal/storage"
)

// multipartOverhead leaves room for the form boundaries around the file.
const multipartOverhead = 1 << 20

func (a *App) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.fail(w, r, generation.ErrUploadTooLarge, msgNotFound)
			return
		}
		a.error(w, r, http.StatusBadRequest, "bad_request", msgMissingFile)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, a.MaxUploadBytes+1))
	if err != nil {
		a.error(w, r, http.StatusBadRequest, "bad_request", msgBadRequest)
		return
	}
	img, err := a.Service.UploadImage(r.Context(), a.currentUserID(r), header.Filename, data)
	if err != nil {
		a.fail(w, r, err, msgNotFound)
		return
	}
	a.json(w, http.StatusCreated, img)
}

func (a *App) GetImage(w http.ResponseWriter, r *http.Request) {
	img, err := a.Service.GetImage(r.Context(), a.currentUserID(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err, msgImageNotFound)
		return
	}
	a.json(w, http.StatusOK, img)
}

// ServeUpload streams a stored object from either bucket.
func (a *App) ServeUpload(w http.ResponseWriter, r *http.Request) {
	bucket, name := chi.URLParam(r, "bucket"), chi.URLParam(r, "name")
	obj, err := a.Objects.Open(r.Context(), bucket, name)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) || errors.Is(err, storage.ErrUnknownBucket) || errors.Is(err, storage.ErrInvalidName) {
			a.error(w, r, http.StatusNotFound, "not_found", msgNotFound)
			return
		}
		a.fail(w, r, err, msgNotFound)
		return
	}
	defer obj.Body.Close()

	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if rs, ok := obj.Body.(io.ReadSeeker); ok {
		http.ServeContent(w, r, name, obj.ModTime, rs)
		return
	}
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		a.Logger.Warn().Err(err).Str("object", name).Msg("handler: stream upload interrupted")
	}
}
