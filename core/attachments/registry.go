package attachments

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"

	"incidentreg/core/metrics"
	"incidentreg/core/store"
	"incidentreg/core/utils"
)

// Blob is one attachment instance of a given kind.
type Blob struct {
	Kind     Kind
	ID       int64
	Name     string
	Data     []byte
	Size     int64
	ParentID *int64
}

func (b *Blob) ContentType() (string, bool) {
	return ContentType(b.Name)
}

func (b *Blob) IsImage() bool {
	ct, ok := b.ContentType()
	return ok && IsImage(ct)
}

func (b *Blob) Locator() string {
	return Locator(b.Kind, b.Name)
}

// Registry serves attachment instances from their kind's table. It performs
// no authorization.
type Registry struct {
	store  store.AttachmentsStore
	logger *utils.Logger
}

func NewRegistry(s store.AttachmentsStore, logger *utils.Logger) *Registry {
	return &Registry{store: s, logger: logger}
}

func (r *Registry) descriptor(kind Kind) (Descriptor, error) {
	d, ok := Lookup(kind)
	if !ok {
		return Descriptor{}, &NotFoundError{What: "kind", Key: fmt.Sprintf("%d", int(kind))}
	}
	return d, nil
}

// Fetch looks an instance up by its unique name.
func (r *Registry) Fetch(ctx context.Context, kind Kind, key string) (*Blob, error) {
	d, err := r.descriptor(kind)
	if err != nil {
		return nil, err
	}
	att, err := r.store.GetAttachmentByName(ctx, d.Table, key)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %q: %w", d.Name, key, err)
	}
	return r.found(d, key, att)
}

// FetchByID serves the /a/{kind}/{id}/{name} shape: the id selects the row
// and name must match it.
func (r *Registry) FetchByID(ctx context.Context, kind Kind, id int64, name string) (*Blob, error) {
	d, err := r.descriptor(kind)
	if err != nil {
		return nil, err
	}
	att, err := r.store.GetAttachmentByID(ctx, d.Table, id)
	if err != nil {
		return nil, fmt.Errorf("fetch %s #%d: %w", d.Name, id, err)
	}
	if att != nil && att.Name != name {
		att = nil
	}
	return r.found(d, fmt.Sprintf("%d/%s", id, name), att)
}

func (r *Registry) found(d Descriptor, key string, att *store.Attachment) (*Blob, error) {
	if att == nil {
		metrics.AttachmentFetches.WithLabelValues(d.Token, "miss").Inc()
		return nil, &NotFoundError{What: d.Token, Key: key}
	}
	metrics.AttachmentFetches.WithLabelValues(d.Token, "hit").Inc()
	return toBlob(d.Kind, att), nil
}

// Create stores a new instance. parentID must be nil for kinds without a parent.
func (r *Registry) Create(ctx context.Context, kind Kind, name string, data []byte, parentID *int64) (*Blob, error) {
	d, err := r.descriptor(kind)
	if err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if parentID != nil && d.Parent == ParentNone {
		return nil, fmt.Errorf("%s does not take a parent", d.Token)
	}
	att := &store.Attachment{Name: name, Data: data, ParentID: parentID}
	if _, err := r.store.CreateAttachment(ctx, d.Table, att); err != nil {
		return nil, fmt.Errorf("create %s %q: %w", d.Name, name, err)
	}
	metrics.AttachmentWrites.WithLabelValues(d.Token, "create").Inc()
	r.logger.Printf("attachment created kind=%s name=%s size=%d", d.Token, name, len(data))
	return toBlob(kind, att), nil
}

func (r *Registry) Replace(ctx context.Context, kind Kind, key string, data []byte) (*Blob, error) {
	d, err := r.descriptor(kind)
	if err != nil {
		return nil, err
	}
	att, err := r.store.ReplaceAttachmentData(ctx, d.Table, key, data)
	if err != nil {
		return nil, r.notFound(d, key, err)
	}
	metrics.AttachmentWrites.WithLabelValues(d.Token, "replace").Inc()
	return toBlob(kind, att), nil
}

func (r *Registry) Delete(ctx context.Context, kind Kind, key string) (*Blob, error) {
	d, err := r.descriptor(kind)
	if err != nil {
		return nil, err
	}
	att, err := r.store.DeleteAttachment(ctx, d.Table, key)
	if err != nil {
		return nil, r.notFound(d, key, err)
	}
	metrics.AttachmentWrites.WithLabelValues(d.Token, "delete").Inc()
	r.logger.Printf("attachment deleted kind=%s name=%s", d.Token, key)
	return toBlob(kind, att), nil
}

// ListKeys returns metadata for every instance of kind, payloads excluded.
func (r *Registry) ListKeys(ctx context.Context, kind Kind) ([]Blob, error) {
	d, err := r.descriptor(kind)
	if err != nil {
		return nil, err
	}
	items, err := r.store.ListAttachments(ctx, d.Table)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.Name, err)
	}
	out := make([]Blob, 0, len(items))
	for i := range items {
		out = append(out, *toBlob(kind, &items[i]))
	}
	return out, nil
}

func (r *Registry) notFound(d Descriptor, key string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{What: d.Token, Key: key}
	}
	return fmt.Errorf("%s %q: %w", d.Name, key, err)
}

func toBlob(kind Kind, att *store.Attachment) *Blob {
	return &Blob{
		Kind:     kind,
		ID:       att.ID,
		Name:     att.Name,
		Data:     att.Data,
		Size:     att.Size,
		ParentID: att.ParentID,
	}
}

// ValidateName rejects names that cannot round-trip through a locator path.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("attachment name is required")
	case strings.ContainsAny(name, "/\\"):
		return fmt.Errorf("attachment name %q must not contain path separators", name)
	case name == "." || name == "..":
		return fmt.Errorf("attachment name %q is reserved", name)
	}
	return nil
}

// ContentType infers the MIME type from the extension of name. ok is false
// when the extension is unknown.
func ContentType(name string) (string, bool) {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return "", false
	}
	ct := mime.TypeByExtension(ext)
	if ct == "" {
		return "", false
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ct, true
	}
	return mediaType, true
}

// IsImage reports whether contentType has the top-level type image,
// image/svg+xml included.
func IsImage(contentType string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	if mediaType == "image/svg+xml" {
		return true
	}
	top, _, ok := strings.Cut(mediaType, "/")
	return ok && top == "image"
}

// Locator is the public path an instance is served from.
func Locator(kind Kind, name string) string {
	return "/a/" + kind.Token() + "/" + url.PathEscape(name)
}
