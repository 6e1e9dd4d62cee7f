package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crewboard/crewboard-backend/api/controllers"
	"github.com/crewboard/crewboard-backend/api/middleware"
	"github.com/crewboard/crewboard-backend/internal/gallery"
	"github.com/crewboard/crewboard-backend/internal/media"
	"github.com/crewboard/crewboard-backend/pkg/config"
	"github.com/crewboard/crewboard-backend/pkg/db"
	"github.com/crewboard/crewboard-backend/pkg/logger"
	redispkg "github.com/crewboard/crewboard-backend/pkg/redis"
	"github.com/crewboard/crewboard-backend/pkg/storage/gcs"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redispkg.Client,
	gcsClient gcs.Pinger,
	mediaService media.Service,
	galleryService gallery.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, controllers.ReadyDeps(dbP, redisClient, gcsClient)))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/v1/uploads", func(r chi.Router) {
			r.Post("/", controllers.UploadBegin(mediaService, logg))
			r.Route("/{uploadId}", func(r chi.Router) {
				r.Post("/complete", controllers.UploadComplete(mediaService, logg))
				r.Post("/resolve", controllers.UploadResolve(mediaService, logg))
				r.Post("/fail", controllers.UploadFail(mediaService, logg))
				r.Delete("/", controllers.UploadRemove(mediaService, logg))
			})
		})

		r.Route("/v1/media", func(r chi.Router) {
			r.Post("/{mediaId}/associate", controllers.MediaAssociate(mediaService, logg))
		})

		r.Route("/v1/gallery", func(r chi.Router) {
			r.Get("/", controllers.GalleryList(galleryService, logg))
			r.Get("/stream", controllers.GalleryStream(galleryService, logg))
			r.Post("/reorder", controllers.GalleryReorder(galleryService, logg))
			r.Post("/sort-by-captured", controllers.GallerySortByCaptured(galleryService, logg))
			r.Post("/publish", controllers.GalleryPublish(galleryService, logg))

			r.Route("/selection", func(r chi.Router) {
				r.Post("/all", controllers.GallerySelectAll(galleryService, logg))
				r.Post("/toggle", controllers.GalleryToggleSelection(galleryService, logg))
			})

			r.Route("/delete", func(r chi.Router) {
				r.Get("/", controllers.GalleryDeleteStatus(galleryService, logg))
				r.Post("/request", controllers.GalleryDeleteRequest(galleryService, logg))
				r.Post("/confirm", controllers.GalleryDeleteConfirm(galleryService, logg))
				r.Post("/cancel", controllers.GalleryDeleteCancel(galleryService, logg))
			})
		})
	})

	return r
}
