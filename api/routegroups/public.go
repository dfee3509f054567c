package routegroups

import (
	"github.com/go-chi/chi/v5"

	"incidentreg/api/handlers"
)

// RegisterPublic mounts the anonymous read paths.
func RegisterPublic(r chi.Router, attachments *handlers.AttachmentsHandler, incidents *handlers.IncidentsHandler) {
	r.Route("/a/{kind}", func(blobRouter chi.Router) {
		blobRouter.Get("/{key}", attachments.Serve)
		blobRouter.Get("/{id:[0-9]+}/{name}", attachments.ServeByID)
	})
	r.Get("/incidents/{id:[0-9]+}", incidents.PublicGet)
	r.Get("/regions/{slug}/incidents", incidents.PublicList)
}
