package appbootstrap

import (
	"context"
	"fmt"

	"incidentreg/api"
	"incidentreg/config"
	"incidentreg/core/attachments"
	"incidentreg/core/incidents"
	"incidentreg/core/ownership"
	"incidentreg/core/rbac"
	"incidentreg/core/regions"
	"incidentreg/core/store"
	"incidentreg/core/utils"
)

type runtimeComposition struct {
	serverDeps api.ServerDeps
	workers    []api.BackgroundWorker
}

func composeRuntime(ctx context.Context, cfg *config.AppConfig, db *store.DB, logger *utils.Logger) (*runtimeComposition, error) {
	regionsStore := store.NewRegionsStore(db)
	incidentsStore := store.NewIncidentsStore(db)
	attachmentsStore := store.NewAttachmentsStore(db)
	audits := store.NewAuditStore(db)

	authz, err := rbac.New(regionsStore, cfg.Identity, logger.With("component", "rbac"))
	if err != nil {
		return nil, fmt.Errorf("authorizer: %w", err)
	}
	if err := authz.Reload(ctx); err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	registry := attachments.NewRegistry(attachmentsStore, logger.With("component", "attachments"))
	owners := ownership.NewResolver(attachmentsStore, incidentsStore, regionsStore, cfg.Attachments, logger.With("component", "ownership"))
	regionsSvc := regions.NewService(regionsStore, audits, authz, logger.With("component", "regions"))
	incidentsSvc := incidents.NewService(incidentsStore, regionsStore, audits, logger.With("component", "incidents"))
	sweeper := attachments.NewSweeper(cfg.Scheduler, registry, owners, audits, logger.With("component", "sweeper"))

	return &runtimeComposition{
		serverDeps: api.ServerDeps{
			DB:           db,
			Audits:       audits,
			Authorizer:   authz,
			Registry:     registry,
			Owners:       owners,
			RegionsSvc:   regionsSvc,
			IncidentsSvc: incidentsSvc,
		},
		workers: []api.BackgroundWorker{sweeper},
	}, nil
}
