package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/crewboard/crewboard-backend/api/responses"
	"github.com/crewboard/crewboard-backend/api/validators"
	"github.com/crewboard/crewboard-backend/internal/media"
	"github.com/crewboard/crewboard-backend/pkg/enums"
	pkgerrors "github.com/crewboard/crewboard-backend/pkg/errors"
	"github.com/crewboard/crewboard-backend/pkg/logger"
)

type mediaAssociateRequest struct {
	RefType string `json:"ref_type" validate:"required"`
	RefID   string `json:"ref_id" validate:"required,uuid4"`
}

// MediaAssociate links a resolved media record to its owning entity.
func MediaAssociate(svc media.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mediaID, err := uuid.Parse(chi.URLParam(r, "mediaId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid media id"))
			return
		}

		var payload mediaAssociateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		refType := enums.RefType(strings.TrimSpace(payload.RefType))
		if !refType.IsValid() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid ref_type"))
			return
		}

		refID, err := uuid.Parse(payload.RefID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid ref_id"))
			return
		}

		if err := svc.Associate(r.Context(), mediaID, refType, refID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "associated"})
	}
}
