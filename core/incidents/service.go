// Package incidents records incident reports. Incidents start as drafts and
// become visible to the public once published.
package incidents

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"incidentreg/core/partialdate"
	"incidentreg/core/store"
	"incidentreg/core/utils"
)

// ValidationError reports input that parsed but cannot be stored.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

type Input struct {
	RegionID          int64   `json:"region_id"`
	SchoolID          int64   `json:"school_id"`
	Description       string  `json:"description"`
	Notes             string  `json:"notes"`
	OccurredAt        string  `json:"occurred_at"`
	ReportedToSchool  bool    `json:"reported_to_school"`
	ReportedAt        string  `json:"reported_at"`
	SchoolRespondedAt string  `json:"school_responded_at"`
	SchoolResponse    string  `json:"school_response"`
	IncidentTypeIDs   []int64 `json:"incident_type_ids"`
	SourceTypeIDs     []int64 `json:"source_type_ids"`
	Links             []Link  `json:"links"`
}

type Link struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type Service struct {
	incidents store.IncidentsStore
	regions   store.RegionsStore
	audit     store.AuditStore
	logger    *utils.Logger
	now       func() time.Time
}

func NewService(incidents store.IncidentsStore, regions store.RegionsStore, audit store.AuditStore, logger *utils.Logger) *Service {
	return &Service{incidents: incidents, regions: regions, audit: audit, logger: logger, now: utils.NowUTC}
}

// Create stores a draft. Partial dates surface their FormatError or
// ValidationError wrapped with the field name.
func (s *Service) Create(ctx context.Context, in Input, actor string) (*store.Incident, error) {
	inc := &store.Incident{}
	if err := s.apply(ctx, inc, in); err != nil {
		return nil, err
	}
	if _, err := s.incidents.CreateIncident(ctx, inc); err != nil {
		return nil, err
	}
	s.logAudit(ctx, actor, "incident.create", fmt.Sprintf("id=%d region=%d", inc.ID, inc.RegionID))
	return inc, nil
}

// Update rewrites the draft or published record and refreshes updated_at.
// Links are replaced when the input carries them, even as an empty list.
func (s *Service) Update(ctx context.Context, id int64, in Input, actor string) (*store.Incident, error) {
	inc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, inc, in); err != nil {
		return nil, err
	}
	if err := s.incidents.UpdateIncident(ctx, inc); err != nil {
		return nil, err
	}
	s.logAudit(ctx, actor, "incident.update", fmt.Sprintf("id=%d", inc.ID))
	return s.Get(ctx, id)
}

// Publish stamps published_at and published_by. Publishing twice keeps the
// first stamp.
func (s *Service) Publish(ctx context.Context, id int64, by string) (*store.Incident, error) {
	inc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc.IsPublished() {
		return inc, nil
	}
	published, err := s.incidents.PublishIncident(ctx, id, by, s.now())
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, by, "incident.publish", fmt.Sprintf("id=%d", id))
	return published, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*store.Incident, error) {
	inc, err := s.incidents.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc == nil {
		return nil, fmt.Errorf("incident %d: %w", id, store.ErrNotFound)
	}
	return inc, nil
}

// GetPublished hides drafts behind ErrNotFound.
func (s *Service) GetPublished(ctx context.Context, id int64) (*store.Incident, error) {
	inc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inc.IsPublished() {
		return nil, fmt.Errorf("incident %d: %w", id, store.ErrNotFound)
	}
	return inc, nil
}

func (s *Service) ListPublished(ctx context.Context, regionID int64, limit int) ([]store.Incident, error) {
	return s.incidents.ListIncidents(ctx, store.IncidentFilter{RegionID: regionID, PublishedOnly: true, Limit: limit})
}

func (s *Service) Extras(ctx context.Context, id int64) ([]store.IncidentExtra, error) {
	return s.incidents.ListIncidentExtras(ctx, id)
}

func (s *Service) AddExtra(ctx context.Context, id int64, name, value string, attachmentID *int64) (*store.IncidentExtra, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &ValidationError{Field: "name", Reason: "required"}
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	extra := &store.IncidentExtra{IncidentID: id, Name: name, Value: value, AttachmentID: attachmentID}
	if _, err := s.incidents.AddIncidentExtra(ctx, extra); err != nil {
		return nil, err
	}
	return extra, nil
}

// CreateSchool requires at least one grade level.
func (s *Service) CreateSchool(ctx context.Context, school *store.School) (*store.School, error) {
	if strings.TrimSpace(school.Name) == "" {
		return nil, &ValidationError{Field: "name", Reason: "required"}
	}
	if err := ValidateSchool(school); err != nil {
		return nil, err
	}
	if _, err := s.incidents.CreateSchool(ctx, school); err != nil {
		return nil, err
	}
	return school, nil
}

func ValidateSchool(school *store.School) error {
	if !school.IsElementary && !school.IsMiddle && !school.IsHigh {
		return &ValidationError{Field: "school", Reason: "at least one of elementary, middle or high must be set"}
	}
	return nil
}

func (s *Service) apply(ctx context.Context, inc *store.Incident, in Input) error {
	if strings.TrimSpace(in.Description) == "" {
		return &ValidationError{Field: "description", Reason: "required"}
	}
	occurred, err := partialdate.Parse(strings.TrimSpace(in.OccurredAt))
	if err != nil {
		return fmt.Errorf("occurred_at: %w", err)
	}
	reported, err := partialdate.ParseNull(in.ReportedAt)
	if err != nil {
		return fmt.Errorf("reported_at: %w", err)
	}
	responded, err := partialdate.ParseNull(in.SchoolRespondedAt)
	if err != nil {
		return fmt.Errorf("school_responded_at: %w", err)
	}
	region, err := s.regions.GetRegion(ctx, in.RegionID)
	if err != nil {
		return err
	}
	if region == nil {
		return &ValidationError{Field: "region_id", Reason: fmt.Sprintf("region %d does not exist", in.RegionID)}
	}
	school, err := s.incidents.GetSchool(ctx, in.SchoolID)
	if err != nil {
		return err
	}
	if school == nil {
		return &ValidationError{Field: "school_id", Reason: fmt.Sprintf("school %d does not exist", in.SchoolID)}
	}
	if err := s.checkTypes(ctx, in); err != nil {
		return err
	}
	links, err := toLinks(in.Links)
	if err != nil {
		return err
	}
	inc.RegionID = region.ID
	inc.SchoolID = school.ID
	inc.Description = in.Description
	inc.Notes = in.Notes
	inc.OccurredAt = occurred
	inc.ReportedToSchool = in.ReportedToSchool
	inc.ReportedAt = reported
	inc.SchoolRespondedAt = responded
	inc.SchoolResponse = strings.TrimSpace(in.SchoolResponse)
	inc.IncidentTypeIDs = in.IncidentTypeIDs
	inc.SourceTypeIDs = in.SourceTypeIDs
	inc.Links = links
	return nil
}

func (s *Service) checkTypes(ctx context.Context, in Input) error {
	unknown, err := s.incidents.UnknownIncidentTypeIDs(ctx, in.IncidentTypeIDs)
	if err != nil {
		return err
	}
	if len(unknown) > 0 {
		return &ValidationError{Field: "incident_type_ids", Reason: fmt.Sprintf("unknown ids %v", unknown)}
	}
	unknown, err = s.incidents.UnknownSourceTypeIDs(ctx, in.SourceTypeIDs)
	if err != nil {
		return err
	}
	if len(unknown) > 0 {
		return &ValidationError{Field: "source_type_ids", Reason: fmt.Sprintf("unknown ids %v", unknown)}
	}
	return nil
}

// toLinks keeps nil apart from empty so updates can tell "leave alone" from
// "clear".
func toLinks(in []Link) ([]store.RelatedLink, error) {
	if in == nil {
		return nil, nil
	}
	out := make([]store.RelatedLink, 0, len(in))
	for i, l := range in {
		name, raw := strings.TrimSpace(l.Name), strings.TrimSpace(l.URL)
		if name == "" {
			return nil, &ValidationError{Field: fmt.Sprintf("links[%d].name", i), Reason: "required"}
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, &ValidationError{Field: fmt.Sprintf("links[%d].url", i), Reason: "must be an absolute http or https URL"}
		}
		out = append(out, store.RelatedLink{Name: name, URL: raw})
	}
	return out, nil
}

func (s *Service) logAudit(ctx context.Context, actor, action, details string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, actor, action, details); err != nil {
		s.logger.Errorf("audit %s: %v", action, err)
	}
}
