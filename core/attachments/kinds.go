// Package attachments is the registry of binary attachment kinds. Each kind
// is a closed, tagged variant with a fixed storage table and parent type;
// requests name a kind by its kebab-case token.
package attachments

import (
	"incidentreg/core/kebab"
	"incidentreg/core/store"
)

type Kind int

const (
	KindAttachment Kind = iota + 1
	KindDistrictLogo
	KindSupportingMaterial
	KindSchoolResponseMaterial
)

// Parent is the entity type that owns instances of a kind.
type Parent int

const (
	// ParentNone marks the legacy generic kind, owned only through the
	// incident collections that reference it.
	ParentNone Parent = iota
	ParentDistrict
	ParentIncident
)

func (p Parent) String() string {
	switch p {
	case ParentDistrict:
		return "district"
	case ParentIncident:
		return "incident"
	default:
		return "none"
	}
}

type Descriptor struct {
	Kind   Kind
	Name   string
	Token  string
	Table  store.AttachmentTable
	Parent Parent
}

var descriptors = buildDescriptors()

var (
	byKind = map[Kind]Descriptor{}
	byName = map[string]Descriptor{}
)

func init() {
	for _, d := range descriptors {
		byKind[d.Kind] = d
		byName[d.Name] = d
	}
}

func buildDescriptors() []Descriptor {
	entries := []struct {
		kind   Kind
		name   string
		table  store.AttachmentTable
		parent Parent
	}{
		{KindAttachment, "Attachment", store.GenericAttachmentsTable, ParentNone},
		{KindDistrictLogo, "DistrictLogo", store.DistrictLogosTable, ParentDistrict},
		{KindSupportingMaterial, "SupportingMaterial", store.SupportingMaterialsTable, ParentIncident},
		{KindSchoolResponseMaterial, "SchoolResponseMaterial", store.SchoolResponseMaterialsTable, ParentIncident},
	}
	out := make([]Descriptor, 0, len(entries))
	for _, e := range entries {
		out = append(out, Descriptor{
			Kind:   e.kind,
			Name:   e.name,
			Token:  kebab.ToKebab(e.name),
			Table:  e.table,
			Parent: e.parent,
		})
	}
	return out
}

// Descriptors returns every known kind in declaration order.
func Descriptors() []Descriptor {
	out := make([]Descriptor, len(descriptors))
	copy(out, descriptors)
	return out
}

func Lookup(kind Kind) (Descriptor, bool) {
	d, ok := byKind[kind]
	return d, ok
}

func (k Kind) String() string {
	if d, ok := byKind[k]; ok {
		return d.Name
	}
	return "Unknown"
}

// Token is the external identifier used in URLs, e.g. "district-logo".
func (k Kind) Token() string {
	if d, ok := byKind[k]; ok {
		return d.Token
	}
	return ""
}

// ResolveKind maps an external token to its descriptor. Only canonical
// tokens resolve: "District-Logo" decodes to the same name but is rejected.
func ResolveKind(token string) (Descriptor, error) {
	d, ok := byName[kebab.ToCapitalized(token)]
	if !ok || d.Token != token {
		return Descriptor{}, &NotFoundError{What: "kind", Key: token}
	}
	return d, nil
}
