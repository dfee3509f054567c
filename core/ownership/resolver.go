// Package ownership decides which region governs an attachment by walking
// the references from regions through incidents to attachment rows.
package ownership

import (
	"context"
	"fmt"
	"time"

	"incidentreg/config"
	"incidentreg/core/attachments"
	"incidentreg/core/metrics"
	"incidentreg/core/store"
	"incidentreg/core/utils"
)

type Resolver struct {
	attachments store.AttachmentsStore
	incidents   store.IncidentsStore
	regions     store.RegionsStore
	legacyScan  bool
	logger      *utils.Logger
}

func NewResolver(atts store.AttachmentsStore, incidents store.IncidentsStore, regions store.RegionsStore, cfg config.AttachmentsConfig, logger *utils.Logger) *Resolver {
	return &Resolver{
		attachments: atts,
		incidents:   incidents,
		regions:     regions,
		legacyScan:  !cfg.DisableLegacyScan,
		logger:      logger,
	}
}

func (r *Resolver) LegacyScanEnabled() bool {
	return r.legacyScan
}

// ControllingRegion returns the region that governs the attachment, or nil
// when nothing owns it. A missing attachment is a NotFoundError.
func (r *Resolver) ControllingRegion(ctx context.Context, kind attachments.Kind, attachmentID int64) (*store.Region, error) {
	d, ok := attachments.Lookup(kind)
	if !ok {
		return nil, &attachments.NotFoundError{What: "kind", Key: kind.String()}
	}
	att, err := r.attachments.GetAttachmentByID(ctx, d.Table, attachmentID)
	if err != nil {
		return nil, fmt.Errorf("load %s #%d: %w", d.Token, attachmentID, err)
	}
	if att == nil {
		return nil, &attachments.NotFoundError{What: d.Token, Key: fmt.Sprintf("%d", attachmentID)}
	}
	switch d.Parent {
	case attachments.ParentDistrict:
		// Districts are not region-scoped.
		return nil, nil
	case attachments.ParentIncident:
		if att.ParentID == nil {
			return nil, nil
		}
		return r.incidentRegion(ctx, *att.ParentID)
	default:
		return r.scanIncidents(ctx, attachmentID)
	}
}

// RegionForParent resolves the region an upload into parentID would belong
// to, before the row exists.
func (r *Resolver) RegionForParent(ctx context.Context, kind attachments.Kind, parentID *int64) (*store.Region, error) {
	d, ok := attachments.Lookup(kind)
	if !ok {
		return nil, &attachments.NotFoundError{What: "kind", Key: kind.String()}
	}
	if parentID == nil {
		return nil, nil
	}
	switch d.Parent {
	case attachments.ParentDistrict:
		district, err := r.incidents.GetDistrict(ctx, *parentID)
		if err != nil {
			return nil, err
		}
		if district == nil {
			return nil, fmt.Errorf("district %d: %w", *parentID, store.ErrNotFound)
		}
		return nil, nil
	case attachments.ParentIncident:
		incident, err := r.incidents.GetIncident(ctx, *parentID)
		if err != nil {
			return nil, err
		}
		if incident == nil {
			return nil, fmt.Errorf("incident %d: %w", *parentID, store.ErrNotFound)
		}
		return r.regionByID(ctx, incident.RegionID)
	default:
		return nil, fmt.Errorf("%s does not take a parent", d.Token)
	}
}

func (r *Resolver) incidentRegion(ctx context.Context, incidentID int64) (*store.Region, error) {
	incident, err := r.incidents.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("load incident %d: %w", incidentID, err)
	}
	if incident == nil {
		return nil, nil
	}
	return r.regionByID(ctx, incident.RegionID)
}

func (r *Resolver) regionByID(ctx context.Context, regionID int64) (*store.Region, error) {
	region, err := r.regions.GetRegion(ctx, regionID)
	if err != nil {
		return nil, fmt.Errorf("load region %d: %w", regionID, err)
	}
	return region, nil
}

// scanIncidents checks every incident's supporting, response and extra
// collections in id order; the first incident that uses the attachment wins.
// Cost grows with incidents times attachments per incident.
func (r *Resolver) scanIncidents(ctx context.Context, attachmentID int64) (*store.Region, error) {
	if !r.legacyScan {
		return nil, nil
	}
	defer metrics.ObserveLegacyScan(time.Now())
	ids, err := r.incidents.ListIncidentIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		refs, err := r.incidents.GetIncidentAttachmentRefs(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("incident %d attachments: %w", id, err)
		}
		if refs.Contains(attachmentID) {
			return r.incidentRegion(ctx, id)
		}
	}
	return nil, nil
}
