package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/crewboard/crewboard-backend/api/middleware"
	"github.com/crewboard/crewboard-backend/api/responses"
	"github.com/crewboard/crewboard-backend/api/validators"
	"github.com/crewboard/crewboard-backend/internal/media"
	pkgerrors "github.com/crewboard/crewboard-backend/pkg/errors"
	"github.com/crewboard/crewboard-backend/pkg/logger"
)

// UploadBegin creates a pending media record plus an upload session and hands
// back the signed PUT URL the client uploads the file to.
func UploadBegin(svc media.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "media service unavailable"))
			return
		}

		var uploader *uuid.UUID
		if raw := middleware.UserIDFromContext(r.Context()); raw != "" {
			uid, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id"))
				return
			}
			uploader = &uid
		}

		var payload media.BeginUploadInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out, err := svc.BeginUpload(r.Context(), uploader, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, out)
	}
}

// UploadComplete accepts the uploader's raw completion payload and drives the
// retry-based record resolution. An unresolved outcome is reported in the
// status body rather than as a request failure.
func UploadComplete(svc media.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uploadID, err := uploadIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		raw, err := validators.DecodeRawJSONBody(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := svc.CompleteUpload(r.Context(), uploadID, raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, status)
	}
}

// UploadResolve is the submit-boundary retry: one URL-only lookup for a
// session whose earlier resolution ran out of attempts.
func UploadResolve(svc media.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uploadID, err := uploadIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := svc.LastChanceResolve(r.Context(), uploadID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, status)
	}
}

// UploadFail marks a session failed when the client-side transfer broke.
func UploadFail(svc media.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uploadID, err := uploadIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := svc.FailUpload(r.Context(), uploadID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, status)
	}
}

// UploadRemove resets the session and deletes any resolved record and blob.
func UploadRemove(svc media.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uploadID, err := uploadIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.RemoveUpload(r.Context(), uploadID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "removed"})
	}
}

func uploadIDFromPath(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "uploadId")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid upload id")
	}
	return id, nil
}
