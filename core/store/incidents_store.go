package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type IncidentFilter struct {
	RegionID      int64
	PublishedOnly bool
	Limit         int
}

type IncidentsStore interface {
	CreateDistrict(ctx context.Context, d *SchoolDistrict) (int64, error)
	GetDistrict(ctx context.Context, id int64) (*SchoolDistrict, error)
	CreateSchool(ctx context.Context, school *School) (int64, error)
	GetSchool(ctx context.Context, id int64) (*School, error)
	CreateIncidentType(ctx context.Context, t *IncidentType) (int64, error)
	CreateSourceType(ctx context.Context, t *SourceType) (int64, error)
	UnknownIncidentTypeIDs(ctx context.Context, ids []int64) ([]int64, error)
	UnknownSourceTypeIDs(ctx context.Context, ids []int64) ([]int64, error)

	CreateIncident(ctx context.Context, incident *Incident) (int64, error)
	UpdateIncident(ctx context.Context, incident *Incident) error
	PublishIncident(ctx context.Context, id int64, by string, at time.Time) (*Incident, error)
	GetIncident(ctx context.Context, id int64) (*Incident, error)
	ListIncidents(ctx context.Context, filter IncidentFilter) ([]Incident, error)
	ListIncidentIDs(ctx context.Context) ([]int64, error)

	ListRelatedLinks(ctx context.Context, incidentID int64) ([]RelatedLink, error)
	AddIncidentExtra(ctx context.Context, extra *IncidentExtra) (int64, error)
	ListIncidentExtras(ctx context.Context, incidentID int64) ([]IncidentExtra, error)

	LinkSupportingAttachment(ctx context.Context, incidentID, attachmentID int64) error
	LinkResponseAttachment(ctx context.Context, incidentID, attachmentID int64) error
	GetIncidentAttachmentRefs(ctx context.Context, incidentID int64) (*IncidentAttachmentRefs, error)
}

type incidentsStore struct {
	db *DB
}

func NewIncidentsStore(db *DB) IncidentsStore {
	return &incidentsStore{db: db}
}

const districtColumns = `id, name, url, twitter, facebook, phone, superintendent_name, superintendent_email,
	civil_rights_url, civil_rights_contact_name, civil_rights_contact_email,
	hib_url, hib_form_url, hib_contact_name, hib_contact_email, board_url`

func (s *incidentsStore) CreateDistrict(ctx context.Context, d *SchoolDistrict) (int64, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO school_districts(name, url, twitter, facebook, phone, superintendent_name, superintendent_email,
			civil_rights_url, civil_rights_contact_name, civil_rights_contact_email,
			hib_url, hib_form_url, hib_contact_name, hib_contact_email, board_url)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?) RETURNING id`,
		strings.TrimSpace(d.Name), d.URL, d.Twitter, d.Facebook, d.Phone, d.SuperintendentName, d.SuperintendentEmail,
		d.CivilRightsURL, d.CivilRightsContactName, d.CivilRightsContactEmail,
		d.HIBURL, d.HIBFormURL, d.HIBContactName, d.HIBContactEmail, d.BoardURL).Scan(&d.ID)
	if err != nil {
		return 0, wrapConflict("create district", err)
	}
	return d.ID, nil
}

func (s *incidentsStore) GetDistrict(ctx context.Context, id int64) (*SchoolDistrict, error) {
	var d SchoolDistrict
	err := s.db.QueryRowContext(ctx, `SELECT `+districtColumns+` FROM school_districts WHERE id=?`, id).Scan(
		&d.ID, &d.Name, &d.URL, &d.Twitter, &d.Facebook, &d.Phone, &d.SuperintendentName, &d.SuperintendentEmail,
		&d.CivilRightsURL, &d.CivilRightsContactName, &d.CivilRightsContactEmail,
		&d.HIBURL, &d.HIBFormURL, &d.HIBContactName, &d.HIBContactEmail, &d.BoardURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

func (s *incidentsStore) CreateSchool(ctx context.Context, school *School) (int64, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO schools(name, url, district_id, street, city, state, zip_code, latitude, longitude,
			is_public, is_elementary, is_middle, is_high)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?) RETURNING id`,
		strings.TrimSpace(school.Name), school.URL, nullableID(school.DistrictID), school.Street, school.City,
		school.State, school.ZipCode, nullableFloat(school.Latitude), nullableFloat(school.Longitude),
		school.IsPublic, school.IsElementary, school.IsMiddle, school.IsHigh).Scan(&school.ID)
	if err != nil {
		return 0, fmt.Errorf("create school: %w", err)
	}
	return school.ID, nil
}

func (s *incidentsStore) GetSchool(ctx context.Context, id int64) (*School, error) {
	var sc School
	var district sql.NullInt64
	var lat, lon sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, url, district_id, street, city, state, zip_code, latitude, longitude,
			is_public, is_elementary, is_middle, is_high
		FROM schools WHERE id=?`, id).Scan(
		&sc.ID, &sc.Name, &sc.URL, &district, &sc.Street, &sc.City, &sc.State, &sc.ZipCode, &lat, &lon,
		&sc.IsPublic, &sc.IsElementary, &sc.IsMiddle, &sc.IsHigh)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	sc.DistrictID = ptrInt64(district)
	sc.Latitude = ptrFloat64(lat)
	sc.Longitude = ptrFloat64(lon)
	return &sc, nil
}

func (s *incidentsStore) CreateIncidentType(ctx context.Context, t *IncidentType) (int64, error) {
	err := s.db.QueryRowContext(ctx, `INSERT INTO incident_types(name, description) VALUES(?, ?) RETURNING id`,
		strings.TrimSpace(t.Name), t.Description).Scan(&t.ID)
	if err != nil {
		return 0, wrapConflict("create incident type", err)
	}
	return t.ID, nil
}

func (s *incidentsStore) CreateSourceType(ctx context.Context, t *SourceType) (int64, error) {
	err := s.db.QueryRowContext(ctx, `INSERT INTO source_types(name, description) VALUES(?, ?) RETURNING id`,
		strings.TrimSpace(t.Name), t.Description).Scan(&t.ID)
	if err != nil {
		return 0, wrapConflict("create source type", err)
	}
	return t.ID, nil
}

func (s *incidentsStore) UnknownIncidentTypeIDs(ctx context.Context, ids []int64) ([]int64, error) {
	return s.unknownIDs(ctx, `SELECT COUNT(*) FROM incident_types WHERE id=?`, ids)
}

func (s *incidentsStore) UnknownSourceTypeIDs(ctx context.Context, ids []int64) ([]int64, error) {
	return s.unknownIDs(ctx, `SELECT COUNT(*) FROM source_types WHERE id=?`, ids)
}

// unknownIDs returns the ids, in input order and without duplicates, that the
// count query does not find. Non-positive ids are always unknown.
func (s *incidentsStore) unknownIDs(ctx context.Context, countQuery string, ids []int64) ([]int64, error) {
	var missing []int64
	seen := map[int64]struct{}{}
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if id <= 0 {
			missing = append(missing, id)
			continue
		}
		var n int
		if err := s.db.QueryRowContext(ctx, countQuery, id).Scan(&n); err != nil {
			return nil, err
		}
		if n == 0 {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (s *incidentsStore) CreateIncident(ctx context.Context, incident *Incident) (int64, error) {
	now := time.Now().UTC()
	if incident.SubmittedAt.IsZero() {
		incident.SubmittedAt = now
	}
	incident.UpdatedAt = now
	err := s.db.WithTx(ctx, func(tx *Tx) error {
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO incidents(region_id, school_id, description, notes, submitted_at, updated_at, published_at, published_by,
				occurred_at, reported_to_school, reported_at, school_responded_at, school_response)
			VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?) RETURNING id`,
			incident.RegionID, incident.SchoolID, incident.Description, incident.Notes, incident.SubmittedAt, incident.UpdatedAt,
			nullableTime(incident.PublishedAt), incident.PublishedBy, incident.OccurredAt, incident.ReportedToSchool,
			incident.ReportedAt, incident.SchoolRespondedAt, incident.SchoolResponse).Scan(&incident.ID); err != nil {
			return fmt.Errorf("insert incident: %w", err)
		}
		if err := setIncidentTypesTx(ctx, tx, incident); err != nil {
			return err
		}
		return insertLinksTx(ctx, tx, incident)
	})
	if err != nil {
		return 0, err
	}
	return incident.ID, nil
}

func (s *incidentsStore) UpdateIncident(ctx context.Context, incident *Incident) error {
	incident.UpdatedAt = time.Now().UTC()
	return s.db.WithTx(ctx, func(tx *Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE incidents SET region_id=?, school_id=?, description=?, notes=?, updated_at=?, occurred_at=?,
				reported_to_school=?, reported_at=?, school_responded_at=?, school_response=?
			WHERE id=?`,
			incident.RegionID, incident.SchoolID, incident.Description, incident.Notes, incident.UpdatedAt, incident.OccurredAt,
			incident.ReportedToSchool, incident.ReportedAt, incident.SchoolRespondedAt, incident.SchoolResponse, incident.ID)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM incident_incident_types WHERE incident_id=?`, incident.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM incident_source_types WHERE incident_id=?`, incident.ID); err != nil {
			return err
		}
		if err := setIncidentTypesTx(ctx, tx, incident); err != nil {
			return err
		}
		if incident.Links == nil {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM related_links WHERE incident_id=?`, incident.ID); err != nil {
			return err
		}
		return insertLinksTx(ctx, tx, incident)
	})
}

func (s *incidentsStore) PublishIncident(ctx context.Context, id int64, by string, at time.Time) (*Incident, error) {
	at = at.UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE incidents SET published_at=?, published_by=?, updated_at=? WHERE id=?`,
		at, strings.TrimSpace(by), at, id)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrNotFound
	}
	return s.GetIncident(ctx, id)
}

const incidentColumns = `id, region_id, school_id, description, notes, submitted_at, updated_at, published_at, published_by,
	occurred_at, reported_to_school, reported_at, school_responded_at, school_response`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *incidentsStore) GetIncident(ctx context.Context, id int64) (*Incident, error) {
	inc, err := scanIncident(s.db.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id=?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := s.loadIncidentTypes(ctx, inc); err != nil {
		return nil, err
	}
	if inc.Links, err = s.ListRelatedLinks(ctx, id); err != nil {
		return nil, err
	}
	return inc, nil
}

func (s *incidentsStore) ListIncidents(ctx context.Context, filter IncidentFilter) ([]Incident, error) {
	clauses := []string{"1=1"}
	var args []any
	if filter.RegionID > 0 {
		clauses = append(clauses, "region_id=?")
		args = append(args, filter.RegionID)
	}
	if filter.PublishedOnly {
		clauses = append(clauses, "published_at IS NOT NULL")
	}
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY submitted_at DESC, id DESC`
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *inc)
	}
	return res, rows.Err()
}

func (s *incidentsStore) ListIncidentIDs(ctx context.Context) ([]int64, error) {
	return queryIDs(ctx, s.db, `SELECT id FROM incidents ORDER BY id`)
}

func (s *incidentsStore) ListRelatedLinks(ctx context.Context, incidentID int64) ([]RelatedLink, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, incident_id, name, url FROM related_links WHERE incident_id=? ORDER BY id`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []RelatedLink
	for rows.Next() {
		var l RelatedLink
		if err := rows.Scan(&l.ID, &l.IncidentID, &l.Name, &l.URL); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (s *incidentsStore) AddIncidentExtra(ctx context.Context, extra *IncidentExtra) (int64, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO incident_extras(incident_id, name, value, attachment_id) VALUES(?,?,?,?) RETURNING id`,
		extra.IncidentID, strings.TrimSpace(extra.Name), extra.Value, nullableID(extra.AttachmentID)).Scan(&extra.ID)
	if err != nil {
		return 0, err
	}
	return extra.ID, nil
}

func (s *incidentsStore) ListIncidentExtras(ctx context.Context, incidentID int64) ([]IncidentExtra, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, incident_id, name, value, attachment_id FROM incident_extras WHERE incident_id=? ORDER BY id`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []IncidentExtra
	for rows.Next() {
		var e IncidentExtra
		var att sql.NullInt64
		if err := rows.Scan(&e.ID, &e.IncidentID, &e.Name, &e.Value, &att); err != nil {
			return nil, err
		}
		e.AttachmentID = ptrInt64(att)
		res = append(res, e)
	}
	return res, rows.Err()
}

func (s *incidentsStore) LinkSupportingAttachment(ctx context.Context, incidentID, attachmentID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incident_supporting_attachments(incident_id, attachment_id) VALUES(?, ?)`, incidentID, attachmentID)
	return wrapConflict("link supporting attachment", err)
}

func (s *incidentsStore) LinkResponseAttachment(ctx context.Context, incidentID, attachmentID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incident_response_attachments(incident_id, attachment_id) VALUES(?, ?)`, incidentID, attachmentID)
	return wrapConflict("link response attachment", err)
}

func (s *incidentsStore) GetIncidentAttachmentRefs(ctx context.Context, incidentID int64) (*IncidentAttachmentRefs, error) {
	var refs IncidentAttachmentRefs
	var err error
	if refs.Supporting, err = queryIDs(ctx, s.db, `
		SELECT attachment_id FROM incident_supporting_attachments WHERE incident_id=? ORDER BY attachment_id`, incidentID); err != nil {
		return nil, err
	}
	if refs.Response, err = queryIDs(ctx, s.db, `
		SELECT attachment_id FROM incident_response_attachments WHERE incident_id=? ORDER BY attachment_id`, incidentID); err != nil {
		return nil, err
	}
	if refs.Extras, err = queryIDs(ctx, s.db, `
		SELECT attachment_id FROM incident_extras WHERE incident_id=? AND attachment_id IS NOT NULL ORDER BY id`, incidentID); err != nil {
		return nil, err
	}
	return &refs, nil
}

func (s *incidentsStore) loadIncidentTypes(ctx context.Context, inc *Incident) error {
	var err error
	if inc.IncidentTypeIDs, err = queryIDs(ctx, s.db, `
		SELECT incident_type_id FROM incident_incident_types WHERE incident_id=? ORDER BY incident_type_id`, inc.ID); err != nil {
		return err
	}
	inc.SourceTypeIDs, err = queryIDs(ctx, s.db, `
		SELECT source_type_id FROM incident_source_types WHERE incident_id=? ORDER BY source_type_id`, inc.ID)
	return err
}

func setIncidentTypesTx(ctx context.Context, tx *Tx, incident *Incident) error {
	for _, id := range uniqueIDs(incident.IncidentTypeIDs) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO incident_incident_types(incident_id, incident_type_id) VALUES(?, ?)`, incident.ID, id); err != nil {
			return fmt.Errorf("incident type %d: %w", id, err)
		}
	}
	for _, id := range uniqueIDs(incident.SourceTypeIDs) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO incident_source_types(incident_id, source_type_id) VALUES(?, ?)`, incident.ID, id); err != nil {
			return fmt.Errorf("source type %d: %w", id, err)
		}
	}
	return nil
}

func insertLinksTx(ctx context.Context, tx *Tx, incident *Incident) error {
	for i := range incident.Links {
		link := &incident.Links[i]
		link.IncidentID = incident.ID
		link.Name = strings.TrimSpace(link.Name)
		link.URL = strings.TrimSpace(link.URL)
		if err := tx.QueryRowContext(ctx, `INSERT INTO related_links(incident_id, name, url) VALUES(?,?,?) RETURNING id`,
			link.IncidentID, link.Name, link.URL).Scan(&link.ID); err != nil {
			return fmt.Errorf("related link %q: %w", link.Name, err)
		}
	}
	return nil
}

func scanIncident(row rowScanner) (*Incident, error) {
	var inc Incident
	var published sql.NullTime
	if err := row.Scan(&inc.ID, &inc.RegionID, &inc.SchoolID, &inc.Description, &inc.Notes, &inc.SubmittedAt, &inc.UpdatedAt,
		&published, &inc.PublishedBy, &inc.OccurredAt, &inc.ReportedToSchool, &inc.ReportedAt, &inc.SchoolRespondedAt,
		&inc.SchoolResponse); err != nil {
		return nil, err
	}
	if published.Valid {
		t := published.Time.UTC()
		inc.PublishedAt = &t
	}
	inc.SubmittedAt = inc.SubmittedAt.UTC()
	inc.UpdatedAt = inc.UpdatedAt.UTC()
	return &inc, nil
}

func queryIDs(ctx context.Context, db *DB, query string, args ...any) ([]int64, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

func uniqueIDs(ids []int64) []int64 {
	seen := map[int64]struct{}{}
	var res []int64
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		res = append(res, id)
	}
	return res
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
