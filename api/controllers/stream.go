package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/crewboard/crewboard-backend/api/responses"
	"github.com/crewboard/crewboard-backend/internal/gallery"
	pkgerrors "github.com/crewboard/crewboard-backend/pkg/errors"
	"github.com/crewboard/crewboard-backend/pkg/logger"
)

// GalleryStream pushes rendered sequences to the client over server-sent
// events. Each event carries the full sequence, so a client can treat every
// message as a replacement snapshot and never needs to diff.
func GalleryStream(svc gallery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		updates, cancel, err := svc.Subscribe(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case seq, open := <-updates:
				if !open {
					return
				}
				if err := writeEvent(w, "gallery", seq); err != nil {
					if logg != nil {
						logg.Warn(ctx, "gallery stream write failed")
					}
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("event: " + event + "\n")); err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
		return err
	}
	return nil
}
