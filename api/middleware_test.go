package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"incidentreg/config"
	"incidentreg/core/auth"
	"incidentreg/core/utils"
)

func identityConfig() *config.AppConfig {
	return &config.AppConfig{
		Identity: config.IdentityConfig{
			UserHeader:      "X-Remote-User",
			GroupsHeader:    "X-Remote-Groups",
			SuperuserGroups: []string{"Superusers"},
		},
	}
}

func TestWithCallerRejectsMissingUser(t *testing.T) {
	s := &Server{cfg: identityConfig()}
	h := s.withCaller(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/admin/regions", nil)
	rr := httptest.NewRecorder()
	h(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", rr.Code)
	}
}

func TestWithCallerStoresCaller(t *testing.T) {
	s := &Server{cfg: identityConfig()}
	var got *auth.Caller
	h := s.withCaller(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/admin/regions", nil)
	req.Header.Set("X-Remote-User", "alice")
	req.Header.Set("X-Remote-Groups", "Springfield Admins, Readers")
	rr := httptest.NewRecorder()
	h(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d", rr.Code)
	}
	if got == nil || got.User != "alice" || !got.InGroup("Springfield Admins") {
		t.Fatalf("unexpected caller %+v", got)
	}
}

func TestWithCallerIgnoresHeadersFromUntrustedPeer(t *testing.T) {
	cfg := identityConfig()
	cfg.Identity.TrustedProxies = []string{"10.0.0.0/24"}
	s := &Server{cfg: cfg}
	h := s.withCaller(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/admin/regions", nil)
	req.RemoteAddr = "192.168.1.20:12345"
	req.Header.Set("X-Remote-User", "mallory")
	rr := httptest.NewRecorder()
	h(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for untrusted peer, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/regions", nil)
	req.RemoteAddr = "10.0.0.7:12345"
	req.Header.Set("X-Remote-User", "alice")
	rr = httptest.NewRecorder()
	h(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected ok for trusted proxy, got %d", rr.Code)
	}
}

func TestIsTrustedProxy(t *testing.T) {
	trusted := []string{"10.0.0.10", "172.16.0.0/12", " "}
	cases := map[string]bool{
		"10.0.0.10":   true,
		"172.20.1.1":  true,
		"10.0.0.11":   false,
		"not-an-ip":   false,
		"192.168.0.1": false,
	}
	for ip, want := range cases {
		if got := isTrustedProxy(ip, trusted); got != want {
			t.Fatalf("isTrustedProxy(%q) = %v, want %v", ip, got, want)
		}
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	s := &Server{}
	var seen string
	h := s.requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(requestIDHeader)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if seen == "" || rr.Header().Get(requestIDHeader) != seen {
		t.Fatalf("expected generated request id, got %q / %q", seen, rr.Header().Get(requestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if seen != "abc-123" {
		t.Fatalf("expected inbound request id to be kept, got %q", seen)
	}
}

func TestRecoverMiddlewareReturns500(t *testing.T) {
	s := &Server{logger: utils.NewLogger()}
	h := s.recoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/a/attachment/x", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestSecurityHeadersOnAdmin(t *testing.T) {
	s := &Server{}
	h := s.securityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/regions", nil))
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" || rr.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("missing security headers: %v", rr.Header())
	}
}
