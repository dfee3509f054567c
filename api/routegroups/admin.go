package routegroups

import (
	"github.com/go-chi/chi/v5"

	"incidentreg/api/handlers"
)

func RegisterAdminAttachments(adminRouter chi.Router, g Guards, attachments *handlers.AttachmentsHandler) {
	adminRouter.Route("/attachments/{kind}", func(attRouter chi.Router) {
		attRouter.MethodFunc("POST", "/", g.Caller(attachments.Upload))
		attRouter.MethodFunc("PUT", "/{key}", g.Caller(attachments.Replace))
		attRouter.MethodFunc("DELETE", "/{key}", g.Caller(attachments.Delete))
	})
}

func RegisterAdminRegions(adminRouter chi.Router, g Guards, regions *handlers.RegionsHandler) {
	adminRouter.Route("/regions", func(regionsRouter chi.Router) {
		regionsRouter.MethodFunc("GET", "/", g.Caller(regions.List))
		regionsRouter.MethodFunc("POST", "/", g.Caller(regions.Create))
		regionsRouter.MethodFunc("GET", "/{slug}", g.Caller(regions.Get))
		regionsRouter.MethodFunc("PATCH", "/{id:[0-9]+}", g.Caller(regions.Rename))
		regionsRouter.MethodFunc("POST", "/{id:[0-9]+}/members", g.Caller(regions.AddMember))
	})
}

func RegisterAdminIncidents(adminRouter chi.Router, g Guards, incidents *handlers.IncidentsHandler) {
	adminRouter.Route("/incidents", func(incidentsRouter chi.Router) {
		incidentsRouter.MethodFunc("POST", "/", g.Caller(incidents.Create))
		incidentsRouter.MethodFunc("GET", "/{id:[0-9]+}", g.Caller(incidents.Get))
		incidentsRouter.MethodFunc("PUT", "/{id:[0-9]+}", g.Caller(incidents.Update))
		incidentsRouter.MethodFunc("POST", "/{id:[0-9]+}/publish", g.Caller(incidents.Publish))
	})
}

func RegisterAdminLogs(adminRouter chi.Router, g Guards, logs *handlers.LogsHandler) {
	adminRouter.Route("/audit", func(auditRouter chi.Router) {
		auditRouter.MethodFunc("GET", "/", g.Caller(logs.List))
		auditRouter.MethodFunc("GET", "/export", g.Caller(logs.Export))
	})
}
