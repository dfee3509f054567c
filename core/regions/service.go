// Package regions manages administrative regions and the access group each
// one owns. A region's group is always named "{region} Admins".
package regions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"incidentreg/core/store"
	"incidentreg/core/utils"
)

var ErrInvalidName = errors.New("invalid region name")

// PolicyReloader is refreshed after any change to region or group names.
type PolicyReloader interface {
	Reload(ctx context.Context) error
}

type Service struct {
	store  store.RegionsStore
	audit  store.AuditStore
	policy PolicyReloader
	logger *utils.Logger
}

func NewService(s store.RegionsStore, audit store.AuditStore, policy PolicyReloader, logger *utils.Logger) *Service {
	return &Service{store: s, audit: audit, policy: policy, logger: logger}
}

func normalizeName(name string) (string, string, error) {
	name = strings.Join(strings.Fields(name), " ")
	slug := Slugify(name)
	if name == "" || slug == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return name, slug, nil
}

// CreateWithGroup creates the region and its group in one transaction.
func (s *Service) CreateWithGroup(ctx context.Context, name, actor string) (*store.Region, error) {
	name, slug, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	region, err := s.store.CreateRegionWithGroup(ctx, name, slug, GroupName(name))
	if err != nil {
		return nil, err
	}
	s.afterChange(ctx, actor, "region.create", fmt.Sprintf("id=%d slug=%s group=%s", region.ID, region.Slug, region.GroupName))
	return region, nil
}

// GetOrCreateWithGroup returns the region with name's slug, creating it when
// absent. created reports which happened.
func (s *Service) GetOrCreateWithGroup(ctx context.Context, name, actor string) (*store.Region, bool, error) {
	_, slug, err := normalizeName(name)
	if err != nil {
		return nil, false, err
	}
	existing, err := s.store.GetRegionBySlug(ctx, slug)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	region, err := s.CreateWithGroup(ctx, name, actor)
	if errors.Is(err, store.ErrConflict) {
		// Lost a race with a concurrent create.
		existing, getErr := s.store.GetRegionBySlug(ctx, slug)
		if getErr == nil && existing != nil {
			return existing, false, nil
		}
	}
	if err != nil {
		return nil, false, err
	}
	return region, true, nil
}

// Rename changes the display name and renames the group to match. The slug
// stays fixed so existing links keep working.
func (s *Service) Rename(ctx context.Context, id int64, newName, actor string) (*store.Region, error) {
	name, _, err := normalizeName(newName)
	if err != nil {
		return nil, err
	}
	region, err := s.store.RenameRegion(ctx, id, name, GroupName(name))
	if err != nil {
		return nil, err
	}
	s.afterChange(ctx, actor, "region.rename", fmt.Sprintf("id=%d name=%s group=%s", region.ID, region.Name, region.GroupName))
	return region, nil
}

func (s *Service) Get(ctx context.Context, slug string) (*store.Region, error) {
	region, err := s.store.GetRegionBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if region == nil {
		return nil, fmt.Errorf("region %q: %w", slug, store.ErrNotFound)
	}
	return region, nil
}

func (s *Service) GetByID(ctx context.Context, id int64) (*store.Region, error) {
	region, err := s.store.GetRegion(ctx, id)
	if err != nil {
		return nil, err
	}
	if region == nil {
		return nil, fmt.Errorf("region %d: %w", id, store.ErrNotFound)
	}
	return region, nil
}

func (s *Service) List(ctx context.Context) ([]store.Region, error) {
	return s.store.ListRegions(ctx)
}

func (s *Service) Group(ctx context.Context, region *store.Region) (*store.Group, error) {
	group, err := s.store.GetGroup(ctx, region.GroupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, fmt.Errorf("group %d: %w", region.GroupID, store.ErrNotFound)
	}
	return group, nil
}

func (s *Service) AddMember(ctx context.Context, regionID int64, username, actor string) error {
	region, err := s.GetByID(ctx, regionID)
	if err != nil {
		return err
	}
	if err := s.store.AddGroupMember(ctx, region.GroupID, username); err != nil {
		return err
	}
	s.afterChange(ctx, actor, "region.member.add", fmt.Sprintf("region=%s user=%s", region.Slug, username))
	return nil
}

func (s *Service) afterChange(ctx context.Context, actor, action, details string) {
	if s.audit != nil {
		if err := s.audit.Log(ctx, actor, action, details); err != nil {
			s.logger.Errorf("audit %s: %v", action, err)
		}
	}
	if s.policy != nil {
		if err := s.policy.Reload(ctx); err != nil {
			s.logger.Errorf("reload policy after %s: %v", action, err)
		}
	}
}
