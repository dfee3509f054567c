package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type RegionsStore interface {
	CreateRegionWithGroup(ctx context.Context, name, slug, groupName string) (*Region, error)
	GetRegion(ctx context.Context, id int64) (*Region, error)
	GetRegionBySlug(ctx context.Context, slug string) (*Region, error)
	ListRegions(ctx context.Context) ([]Region, error)
	RenameRegion(ctx context.Context, id int64, name, groupName string) (*Region, error)
	GetGroup(ctx context.Context, id int64) (*Group, error)
	AddGroupMember(ctx context.Context, groupID int64, username string) error
	ListGroupMembers(ctx context.Context, groupID int64) ([]string, error)
}

type regionsStore struct {
	db *DB
}

func NewRegionsStore(db *DB) RegionsStore {
	return &regionsStore{db: db}
}

const regionSelect = `
	SELECT r.id, r.name, r.slug, r.group_id, g.name
	FROM regions r JOIN access_groups g ON g.id = r.group_id`

func (s *regionsStore) CreateRegionWithGroup(ctx context.Context, name, slug, groupName string) (*Region, error) {
	region := &Region{Name: name, Slug: slug, GroupName: groupName}
	err := s.db.WithTx(ctx, func(tx *Tx) error {
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO access_groups(name, created_at) VALUES(?, ?) RETURNING id`,
			groupName, time.Now().UTC()).Scan(&region.GroupID); err != nil {
			return wrapConflict("create group", err)
		}
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO regions(name, slug, group_id) VALUES(?, ?, ?) RETURNING id`,
			name, slug, region.GroupID).Scan(&region.ID); err != nil {
			return wrapConflict("create region", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return region, nil
}

func (s *regionsStore) GetRegion(ctx context.Context, id int64) (*Region, error) {
	return scanRegion(s.db.QueryRowContext(ctx, regionSelect+` WHERE r.id=?`, id))
}

func (s *regionsStore) GetRegionBySlug(ctx context.Context, slug string) (*Region, error) {
	return scanRegion(s.db.QueryRowContext(ctx, regionSelect+` WHERE r.slug=?`, strings.TrimSpace(slug)))
}

func (s *regionsStore) ListRegions(ctx context.Context) ([]Region, error) {
	rows, err := s.db.QueryContext(ctx, regionSelect+` ORDER BY r.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Region
	for rows.Next() {
		var r Region
		if err := rows.Scan(&r.ID, &r.Name, &r.Slug, &r.GroupID, &r.GroupName); err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// RenameRegion renames the group first, then the region, in one transaction.
// The slug and group id are unchanged.
func (s *regionsStore) RenameRegion(ctx context.Context, id int64, name, groupName string) (*Region, error) {
	var region *Region
	err := s.db.WithTx(ctx, func(tx *Tx) error {
		current, err := scanRegion(tx.QueryRowContext(ctx, regionSelect+` WHERE r.id=?`, id))
		if err != nil {
			return err
		}
		if current == nil {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `UPDATE access_groups SET name=?, updated_at=? WHERE id=?`,
			groupName, time.Now().UTC(), current.GroupID); err != nil {
			return wrapConflict("rename group", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE regions SET name=? WHERE id=?`, name, id); err != nil {
			return wrapConflict("rename region", err)
		}
		current.Name = name
		current.GroupName = groupName
		region = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return region, nil
}

func (s *regionsStore) GetGroup(ctx context.Context, id int64) (*Group, error) {
	var g Group
	if err := s.db.QueryRowContext(ctx, `SELECT id, name FROM access_groups WHERE id=?`, id).Scan(&g.ID, &g.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	members, err := s.ListGroupMembers(ctx, id)
	if err != nil {
		return nil, err
	}
	g.Members = members
	return &g, nil
}

func (s *regionsStore) AddGroupMember(ctx context.Context, groupID int64, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("empty username")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO access_group_members(group_id, username) VALUES(?, ?)`, groupID, username)
	return wrapConflict("add group member", err)
}

func (s *regionsStore) ListGroupMembers(ctx context.Context, groupID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username FROM access_group_members WHERE group_id=? ORDER BY username`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func scanRegion(row *sql.Row) (*Region, error) {
	var r Region
	if err := row.Scan(&r.ID, &r.Name, &r.Slug, &r.GroupID, &r.GroupName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

func wrapConflict(op string, err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
