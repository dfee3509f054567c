package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// AttachmentTable names one attachment table and its optional parent column.
type AttachmentTable struct {
	Name         string
	ParentColumn string
}

var (
	GenericAttachmentsTable      = AttachmentTable{Name: "attachments"}
	DistrictLogosTable           = AttachmentTable{Name: "district_logos", ParentColumn: "district_id"}
	SupportingMaterialsTable     = AttachmentTable{Name: "supporting_materials", ParentColumn: "incident_id"}
	SchoolResponseMaterialsTable = AttachmentTable{Name: "school_response_materials", ParentColumn: "incident_id"}
)

var knownAttachmentTables = map[AttachmentTable]struct{}{
	GenericAttachmentsTable:      {},
	DistrictLogosTable:           {},
	SupportingMaterialsTable:     {},
	SchoolResponseMaterialsTable: {},
}

type AttachmentsStore interface {
	GetAttachmentByName(ctx context.Context, table AttachmentTable, name string) (*Attachment, error)
	GetAttachmentByID(ctx context.Context, table AttachmentTable, id int64) (*Attachment, error)
	CreateAttachment(ctx context.Context, table AttachmentTable, att *Attachment) (int64, error)
	ReplaceAttachmentData(ctx context.Context, table AttachmentTable, name string, data []byte) (*Attachment, error)
	DeleteAttachment(ctx context.Context, table AttachmentTable, name string) (*Attachment, error)
	ListAttachments(ctx context.Context, table AttachmentTable) ([]Attachment, error)
}

type attachmentsStore struct {
	db *DB
}

func NewAttachmentsStore(db *DB) AttachmentsStore {
	return &attachmentsStore{db: db}
}

func checkTable(table AttachmentTable) error {
	if _, ok := knownAttachmentTables[table]; !ok {
		return fmt.Errorf("unknown attachment table %q", table.Name)
	}
	return nil
}

// metaColumns selects everything but the payload.
func metaColumns(table AttachmentTable) string {
	parent := "NULL"
	if table.ParentColumn != "" {
		parent = table.ParentColumn
	}
	return "id, name, length(data), " + parent + ", created_at"
}

func (s *attachmentsStore) GetAttachmentByName(ctx context.Context, table AttachmentTable, name string) (*Attachment, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	return s.getOne(ctx, table, `name=?`, name)
}

func (s *attachmentsStore) GetAttachmentByID(ctx context.Context, table AttachmentTable, id int64) (*Attachment, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	return s.getOne(ctx, table, `id=?`, id)
}

func (s *attachmentsStore) getOne(ctx context.Context, table AttachmentTable, where string, arg any) (*Attachment, error) {
	query := fmt.Sprintf(`SELECT %s, data FROM %s WHERE %s`, metaColumns(table), table.Name, where)
	var att Attachment
	var parent sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query, arg).Scan(&att.ID, &att.Name, &att.Size, &parent, &att.CreatedAt, &att.Data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	att.ParentID = ptrInt64(parent)
	att.CreatedAt = att.CreatedAt.UTC()
	return &att, nil
}

func (s *attachmentsStore) CreateAttachment(ctx context.Context, table AttachmentTable, att *Attachment) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	name := strings.TrimSpace(att.Name)
	if name == "" {
		return 0, fmt.Errorf("attachment name is required")
	}
	if att.ParentID != nil && table.ParentColumn == "" {
		return 0, fmt.Errorf("%s has no parent column", table.Name)
	}
	if att.Data == nil {
		att.Data = []byte{}
	}
	now := time.Now().UTC()
	var err error
	if table.ParentColumn == "" {
		err = s.db.QueryRowContext(ctx, fmt.Sprintf(`
			INSERT INTO %s(name, data, created_at) VALUES(?, ?, ?) RETURNING id`, table.Name),
			name, att.Data, now).Scan(&att.ID)
	} else {
		err = s.db.QueryRowContext(ctx, fmt.Sprintf(`
			INSERT INTO %s(name, data, %s, created_at) VALUES(?, ?, ?, ?) RETURNING id`, table.Name, table.ParentColumn),
			name, att.Data, nullableID(att.ParentID), now).Scan(&att.ID)
	}
	if err != nil {
		return 0, wrapConflict("create attachment", err)
	}
	att.Name = name
	att.Size = int64(len(att.Data))
	att.CreatedAt = now
	return att.ID, nil
}

func (s *attachmentsStore) ReplaceAttachmentData(ctx context.Context, table AttachmentTable, name string, data []byte) (*Attachment, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET data=? WHERE name=?`, table.Name), data, name)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrNotFound
	}
	return s.getOne(ctx, table, `name=?`, name)
}

// DeleteAttachment returns the removed row without its payload.
func (s *attachmentsStore) DeleteAttachment(ctx context.Context, table AttachmentTable, name string) (*Attachment, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	var removed *Attachment
	err := s.db.WithTx(ctx, func(tx *Tx) error {
		var att Attachment
		var parent sql.NullInt64
		query := fmt.Sprintf(`SELECT %s FROM %s WHERE name=?`, metaColumns(table), table.Name)
		if err := tx.QueryRowContext(ctx, query, name).Scan(&att.ID, &att.Name, &att.Size, &parent, &att.CreatedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		att.ParentID = ptrInt64(parent)
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id=?`, table.Name), att.ID); err != nil {
			return err
		}
		removed = &att
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (s *attachmentsStore) ListAttachments(ctx context.Context, table AttachmentTable) ([]Attachment, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s ORDER BY id`, metaColumns(table), table.Name))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Attachment
	for rows.Next() {
		var att Attachment
		var parent sql.NullInt64
		if err := rows.Scan(&att.ID, &att.Name, &att.Size, &parent, &att.CreatedAt); err != nil {
			return nil, err
		}
		att.ParentID = ptrInt64(parent)
		att.CreatedAt = att.CreatedAt.UTC()
		res = append(res, att)
	}
	return res, rows.Err()
}
