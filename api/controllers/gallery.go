package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/crewboard/crewboard-backend/api/responses"
	"github.com/crewboard/crewboard-backend/api/validators"
	"github.com/crewboard/crewboard-backend/internal/gallery"
	pkgerrors "github.com/crewboard/crewboard-backend/pkg/errors"
	"github.com/crewboard/crewboard-backend/pkg/logger"
)

type galleryReorderRequest struct {
	FromID string `json:"from_id" validate:"required,uuid4"`
	ToID   string `json:"to_id" validate:"required,uuid4"`
}

type gallerySortRequest struct {
	Confirm bool `json:"confirm"`
}

type gallerySelectAllRequest struct {
	Selected bool `json:"selected"`
}

type galleryToggleRequest struct {
	MediaID  string `json:"media_id" validate:"required,uuid4"`
	Selected bool   `json:"selected"`
}

type galleryPublishRequest struct {
	MediaIDs  []string `json:"media_ids" validate:"omitempty,dive,uuid4"`
	Published bool     `json:"published"`
}

type galleryDeleteRequest struct {
	MediaIDs []string `json:"media_ids" validate:"omitempty,dive,uuid4"`
}

// GalleryList returns the rendered sequence: authoritative order with any
// pending drag overlay applied.
func GalleryList(svc gallery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seq, err := svc.Rendered(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, seq)
	}
}

// GalleryReorder applies a single-item drag and persists the new order.
func GalleryReorder(svc gallery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload galleryReorderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		fromID, err := uuid.Parse(payload.FromID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid from_id"))
			return
		}
		toID, err := uuid.Parse(payload.ToID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid to_id"))
			return
		}

		seq, err := svc.Reorder(r.Context(), fromID, toID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, seq)
	}
}

// GallerySortByCaptured reorders the whole gallery by capture date. The bulk
// rewrite is destructive to manual ordering, so it requires confirm:true.
func GallerySortByCaptured(svc gallery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload gallerySortRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !payload.Confirm {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "confirmation required"))
			return
		}

		if err := svc.SortByCapturedDate(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		seq, err := svc.Rendered(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, seq)
	}
}

// GallerySelectAll selects or clears every rendered item.
func GallerySelectAll(svc gallery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload gallerySelectAllRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ids := svc.SelectAll(r.Context(), payload.Selected)
		responses.WriteSuccess(w, map[string]any{"selected_ids": ids})
	}
}

// GalleryToggleSelection flips one item in or out of the selection.
func GalleryToggleSelection(svc gallery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload galleryToggleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := uuid.Parse(payload.MediaID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid media_id"))
			return
		}

		ids := svc.ToggleSelection(r.Context(), id, payload.Selected)
		responses.WriteSuccess(w, map[string]any{"selected_ids": ids})
	}
}

// GalleryPublish toggles the publish flag across a batch; an empty id list
// means the current selection. Partial failures come back as a 207.
func GalleryPublish(svc gallery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload galleryPublishRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ids, err := parseUUIDs(payload.MediaIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Publish(r.Context(), ids, payload.Published); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"published": payload.Published})
	}
}

// GalleryDeleteRequest stages a batch delete for confirmation.
func GalleryDeleteRequest(svc gallery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload galleryDeleteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ids, err := parseUUIDs(payload.MediaIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		state, err := svc.RequestDelete(r.Context(), ids)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"state": state})
	}
}

// GalleryDeleteConfirm executes the staged batch.
func GalleryDeleteConfirm(svc gallery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := svc.ConfirmDelete(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"state": state})
	}
}

// GalleryDeleteCancel abandons a pending confirmation.
func GalleryDeleteCancel(svc gallery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := svc.CancelDelete(r.Context())
		responses.WriteSuccess(w, map[string]any{"state": state})
	}
}

// GalleryDeleteStatus reports the flow phase and the staged batch.
func GalleryDeleteStatus(svc gallery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, pending := svc.DeleteStatus()
		responses.WriteSuccess(w, map[string]any{"state": state, "pending_ids": pending})
	}
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, item := range raw {
		id, err := uuid.Parse(item)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid media id").WithDetails(map[string]any{"value": item})
		}
		ids = append(ids, id)
	}
	return ids, nil
}
