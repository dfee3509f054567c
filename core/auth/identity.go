// Package auth carries the caller identity asserted by the trusted upstream
// proxy. Nothing here authenticates; it only reads and propagates headers.
package auth

import (
	"context"
	"net/http"
	"strings"

	"incidentreg/config"
	"incidentreg/core/utils"
)

type contextKey string

const CallerContextKey contextKey = "caller"

type Caller struct {
	User   string
	Groups []string
}

func (c *Caller) InGroup(name string) bool {
	if c == nil {
		return false
	}
	for _, g := range c.Groups {
		if g == name {
			return true
		}
	}
	return false
}

// FromHeaders reads the caller from the configured headers. ok is false when
// the user header is missing or blank.
func FromHeaders(r *http.Request, cfg config.IdentityConfig) (*Caller, bool) {
	user := strings.TrimSpace(r.Header.Get(cfg.UserHeader))
	if user == "" {
		return nil, false
	}
	var groups []string
	for _, raw := range r.Header.Values(cfg.GroupsHeader) {
		groups = append(groups, utils.SplitCSV(raw)...)
	}
	return &Caller{User: user, Groups: groups}, true
}

func WithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, CallerContextKey, c)
}

func FromContext(ctx context.Context) (*Caller, bool) {
	c, ok := ctx.Value(CallerContextKey).(*Caller)
	return c, ok && c != nil
}
