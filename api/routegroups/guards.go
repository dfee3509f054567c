// Package routegroups binds handlers to paths. Every admin route goes through
// Guards so the caller identity is established before the handler runs.
package routegroups

import "net/http"

type Guards struct {
	WithCaller func(http.HandlerFunc) http.HandlerFunc
}

func (g Guards) Caller(next http.HandlerFunc) http.HandlerFunc {
	return g.WithCaller(next)
}
