package store

import (
	"errors"
	"time"

	"incidentreg/core/partialdate"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

type Group struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members,omitempty"`
}

type Region struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	GroupID   int64  `json:"group_id"`
	GroupName string `json:"group_name"`
}

type SchoolDistrict struct {
	ID                      int64 `json:"id"`
	Name                    string `json:"name"`
	URL                     string `json:"url"`
	Twitter                 string `json:"twitter"`
	Facebook                string `json:"facebook"`
	Phone                   string `json:"phone"`
	SuperintendentName      string `json:"superintendent_name"`
	SuperintendentEmail     string `json:"superintendent_email"`
	CivilRightsURL          string `json:"civil_rights_url"`
	CivilRightsContactName  string `json:"civil_rights_contact_name"`
	CivilRightsContactEmail string `json:"civil_rights_contact_email"`
	HIBURL                  string `json:"hib_url"`
	HIBFormURL              string `json:"hib_form_url"`
	HIBContactName          string `json:"hib_contact_name"`
	HIBContactEmail         string `json:"hib_contact_email"`
	BoardURL                string `json:"board_url"`
}

type School struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	URL          string   `json:"url"`
	DistrictID   *int64   `json:"district_id,omitempty"`
	Street       string   `json:"street"`
	City         string   `json:"city"`
	State        string   `json:"state"`
	ZipCode      string   `json:"zip_code"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	IsPublic     bool     `json:"is_public"`
	IsElementary bool     `json:"is_elementary"`
	IsMiddle     bool     `json:"is_middle"`
	IsHigh       bool     `json:"is_high"`
}

type IncidentType struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type SourceType struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Incident struct {
	ID                int64                       `json:"id"`
	RegionID          int64                       `json:"region_id"`
	SchoolID          int64                       `json:"school_id"`
	Description       string                      `json:"description"`
	Notes             string                      `json:"notes,omitempty"`
	SubmittedAt       time.Time                   `json:"submitted_at"`
	UpdatedAt         time.Time                   `json:"updated_at"`
	PublishedAt       *time.Time                  `json:"published_at,omitempty"`
	PublishedBy       string                      `json:"published_by,omitempty"`
	OccurredAt        partialdate.PartialDate     `json:"occurred_at"`
	ReportedToSchool  bool                        `json:"reported_to_school"`
	ReportedAt        partialdate.NullPartialDate `json:"reported_at"`
	SchoolRespondedAt partialdate.NullPartialDate `json:"school_responded_at"`
	SchoolResponse    string                      `json:"school_response"`
	IncidentTypeIDs   []int64                     `json:"incident_type_ids,omitempty"`
	SourceTypeIDs     []int64                     `json:"source_type_ids,omitempty"`
	// Links are written with the incident. A nil slice on update keeps the
	// stored links; an empty one clears them.
	Links             []RelatedLink               `json:"links,omitempty"`
}

func (i *Incident) IsPublished() bool {
	return i != nil && i.PublishedAt != nil
}

func (i *Incident) SchoolResponded() bool {
	return i != nil && i.SchoolResponse != ""
}

type RelatedLink struct {
	ID         int64  `json:"id"`
	IncidentID int64  `json:"incident_id"`
	Name       string `json:"name"`
	URL        string `json:"url"`
}

type IncidentExtra struct {
	ID           int64  `json:"id"`
	IncidentID   int64  `json:"incident_id"`
	Name         string `json:"name"`
	Value        string `json:"value"`
	AttachmentID *int64 `json:"attachment_id,omitempty"`
}

// IncidentAttachmentRefs lists the generic attachments an incident uses in
// each of its three roles.
type IncidentAttachmentRefs struct {
	Supporting []int64
	Response   []int64
	Extras     []int64
}

func (r *IncidentAttachmentRefs) Contains(attachmentID int64) bool {
	if r == nil {
		return false
	}
	for _, ids := range [][]int64{r.Supporting, r.Response, r.Extras} {
		for _, id := range ids {
			if id == attachmentID {
				return true
			}
		}
	}
	return false
}

// Attachment is one row of any attachment table. ParentID is nil for kinds
// without a parent column and for uploads not yet attached to a parent.
type Attachment struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Data      []byte    `json:"-"`
	Size      int64     `json:"size"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditEntry struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}
