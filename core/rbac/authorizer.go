// Package rbac decides who may manage which region. Policies are rebuilt
// from the region table: each region's group manages region:<slug>, and the
// configured superuser groups manage region:* and unowned.
package rbac

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"incidentreg/config"
	"incidentreg/core/metrics"
	"incidentreg/core/store"
	"incidentreg/core/utils"
)

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch(r.obj, p.obj) && r.act == p.act
`

const (
	ActionManage = "manage"
	// ObjectNone is the object for attachments no region governs. It sits
	// outside the region: namespace so no slug can collide with it.
	ObjectNone = "unowned"
)

type Authorizer struct {
	regions    store.RegionsStore
	superusers []string
	logger     *utils.Logger
	enforcer   atomic.Pointer[casbin.SyncedEnforcer]
}

func New(regions store.RegionsStore, cfg config.IdentityConfig, logger *utils.Logger) (*Authorizer, error) {
	a := &Authorizer{regions: regions, logger: logger}
	for _, g := range cfg.SuperuserGroups {
		if g = strings.TrimSpace(g); g != "" {
			a.superusers = append(a.superusers, g)
		}
	}
	e, err := a.build(nil, nil)
	if err != nil {
		return nil, err
	}
	a.enforcer.Store(e)
	return a, nil
}

func Object(region *store.Region) string {
	if region == nil {
		return ObjectNone
	}
	return "region:" + region.Slug
}

func userSubject(name string) string  { return "user:" + name }
func groupSubject(name string) string { return "group:" + name }

// Reload rebuilds the policy from the store and swaps it in atomically.
func (a *Authorizer) Reload(ctx context.Context) error {
	regions, err := a.regions.ListRegions(ctx)
	if err != nil {
		return fmt.Errorf("list regions: %w", err)
	}
	var policies, groupings [][]string
	for _, r := range regions {
		policies = append(policies, []string{groupSubject(r.GroupName), Object(&r), ActionManage})
		members, err := a.regions.ListGroupMembers(ctx, r.GroupID)
		if err != nil {
			return fmt.Errorf("members of %s: %w", r.GroupName, err)
		}
		for _, m := range members {
			groupings = append(groupings, []string{userSubject(m), groupSubject(r.GroupName)})
		}
	}
	e, err := a.build(policies, groupings)
	if err != nil {
		return err
	}
	a.enforcer.Store(e)
	a.logger.Printf("rbac policy reloaded: %d regions, %d memberships", len(regions), len(groupings))
	return nil
}

func (a *Authorizer) build(policies, groupings [][]string) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("rbac model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("rbac enforcer: %w", err)
	}
	for _, g := range a.superusers {
		policies = append(policies,
			[]string{groupSubject(g), "region:*", ActionManage},
			[]string{groupSubject(g), ObjectNone, ActionManage},
		)
	}
	if len(policies) > 0 {
		if _, err := e.AddPolicies(policies); err != nil {
			return nil, fmt.Errorf("rbac policies: %w", err)
		}
	}
	if len(groupings) > 0 {
		if _, err := e.AddGroupingPolicies(groupings); err != nil {
			return nil, fmt.Errorf("rbac groupings: %w", err)
		}
	}
	return e, nil
}

// CanManage reports whether user, or any of groups, governs region. A nil
// region is governed by superusers only.
func (a *Authorizer) CanManage(user string, groups []string, region *store.Region) bool {
	e := a.enforcer.Load()
	obj := Object(region)
	subjects := make([]string, 0, len(groups)+1)
	if user != "" {
		subjects = append(subjects, userSubject(user))
	}
	for _, g := range groups {
		subjects = append(subjects, groupSubject(g))
	}
	for _, sub := range subjects {
		ok, err := e.Enforce(sub, obj, ActionManage)
		if err != nil {
			a.logger.Errorf("rbac enforce %s %s: %v", sub, obj, err)
			continue
		}
		if ok {
			metrics.AuthorizationDecisions.WithLabelValues("allow").Inc()
			return true
		}
	}
	metrics.AuthorizationDecisions.WithLabelValues("deny").Inc()
	return false
}

func (a *Authorizer) IsSuperuser(groups []string) bool {
	for _, g := range groups {
		for _, su := range a.superusers {
			if g == su {
				return true
			}
		}
	}
	return false
}
