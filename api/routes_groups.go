package api

import (
	"github.com/go-chi/chi/v5"

	"incidentreg/api/routegroups"
)

func (s *Server) guards() routegroups.Guards {
	return routegroups.Guards{WithCaller: s.withCaller}
}

func (s *Server) registerPublicRoutes(r chi.Router, h routeHandlers) {
	routegroups.RegisterPublic(r, h.attachments, h.incidents)
}

func (s *Server) registerAdminRoutes(adminRouter chi.Router, h routeHandlers) {
	g := s.guards()
	routegroups.RegisterAdminAttachments(adminRouter, g, h.attachments)
	routegroups.RegisterAdminRegions(adminRouter, g, h.regions)
	routegroups.RegisterAdminIncidents(adminRouter, g, h.incidents)
	routegroups.RegisterAdminLogs(adminRouter, g, h.logs)
}
