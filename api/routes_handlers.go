package api

import "incidentreg/api/handlers"

type routeHandlers struct {
	attachments *handlers.AttachmentsHandler
	regions     *handlers.RegionsHandler
	incidents   *handlers.IncidentsHandler
	logs        *handlers.LogsHandler
}

func (s *Server) newRouteHandlers() routeHandlers {
	return routeHandlers{
		attachments: handlers.NewAttachmentsHandler(s.cfg, s.registry, s.owners, s.authz, s.audits, s.logger),
		regions:     handlers.NewRegionsHandler(s.regionsSvc, s.authz, s.logger),
		incidents:   handlers.NewIncidentsHandler(s.incidentsSvc, s.regionsSvc, s.authz, s.logger),
		logs:        handlers.NewLogsHandler(s.audits, s.authz, s.logger),
	}
}
