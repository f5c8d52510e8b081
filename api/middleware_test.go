package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"driveshare/config"
	"driveshare/core/auth"
	"driveshare/core/store"
	"driveshare/core/store/storetest"
	"driveshare/core/utils"
)

func TestIsHTTPSRequestWithTLS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req.TLS = &tls.ConnectionState{}
	if !isHTTPSRequest(req, &config.AppConfig{}) {
		t.Fatalf("expected https request when TLS state is present")
	}
}

func TestIsHTTPSRequestWithTrustedProxyForwardedProto(t *testing.T) {
	cfg := &config.AppConfig{
		Security: config.SecurityConfig{
			TrustedProxies: []string{"10.0.0.10"},
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req.RemoteAddr = "10.0.0.10:12345"
	req.Header.Set("X-Forwarded-Proto", "https")
	if !isHTTPSRequest(req, cfg) {
		t.Fatalf("expected https request behind trusted proxy with x-forwarded-proto=https")
	}
}

func TestIsHTTPSRequestIgnoresUntrustedProxyHeader(t *testing.T) {
	cfg := &config.AppConfig{
		Security: config.SecurityConfig{
			TrustedProxies: []string{"10.0.0.10"},
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req.RemoteAddr = "192.168.1.20:12345"
	req.Header.Set("X-Forwarded-Proto", "https")
	if isHTTPSRequest(req, cfg) {
		t.Fatalf("expected non-https for untrusted proxy source")
	}
}

func TestClientIPUsesNearestUntrustedXFFHop(t *testing.T) {
	s := &Server{
		cfg: &config.AppConfig{
			Security: config.SecurityConfig{
				TrustedProxies: []string{"10.0.0.10", "10.0.0.11"},
			},
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req.RemoteAddr = "10.0.0.10:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.11")
	got := s.clientIP(req)
	if got != "203.0.113.9" {
		t.Fatalf("expected client ip 203.0.113.9, got %s", got)
	}
}

func TestClientIPIgnoresXFFForUntrustedRemote(t *testing.T) {
	s := &Server{
		cfg: &config.AppConfig{
			Security: config.SecurityConfig{
				TrustedProxies: []string{"10.0.0.10"},
			},
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req.RemoteAddr = "192.168.1.20:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.10")
	got := s.clientIP(req)
	if got != "192.168.1.20" {
		t.Fatalf("expected remote addr ip for untrusted source, got %s", got)
	}
}

func TestClientIPInvalidXFFFallsBackToRealIP(t *testing.T) {
	s := &Server{
		cfg: &config.AppConfig{
			Security: config.SecurityConfig{
				TrustedProxies: []string{"10.0.0.10"},
			},
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req.RemoteAddr = "10.0.0.10:54321"
	req.Header.Set("X-Forwarded-For", "garbage,not-an-ip")
	req.Header.Set("X-Real-IP", "198.51.100.8")
	got := s.clientIP(req)
	if got != "198.51.100.8" {
		t.Fatalf("expected fallback to valid X-Real-IP, got %s", got)
	}
}

func TestSecurityHeadersSetHSTSForTrustedProxyHTTPS(t *testing.T) {
	s := &Server{
		cfg: &config.AppConfig{
			Security: config.SecurityConfig{
				TrustedProxies: []string{"10.0.0.10"},
			},
		},
	}
	h := s.securityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req.RemoteAddr = "10.0.0.10:12345"
	req.Header.Set("X-Forwarded-Proto", "https")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Header().Get("Strict-Transport-Security") == "" {
		t.Fatalf("expected HSTS header for trusted proxy https request")
	}
}

func TestSecurityHeadersSkipHSTSForUntrustedProxy(t *testing.T) {
	s := &Server{
		cfg: &config.AppConfig{
			Security: config.SecurityConfig{
				TrustedProxies: []string{"10.0.0.10"},
			},
		},
	}
	h := s.securityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req.RemoteAddr = "192.168.1.20:12345"
	req.Header.Set("X-Forwarded-Proto", "https")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Fatalf("expected no HSTS header for untrusted proxy source")
	}
}

func sessionServer(t *testing.T) (*Server, *store.User) {
	t.Helper()
	cfg := storetest.Config(t)
	db := storetest.Open(t, cfg)
	u := storetest.User(t, db, "ada@example.com")
	users := store.NewUsersStore(db)
	return &Server{cfg: cfg, logger: utils.NewNopLogger(), sessions: auth.NewSessionManager(users, cfg, utils.NewNopLogger())}, u
}

func TestWithSessionRejectsMissingToken(t *testing.T) {
	s, _ := sessionServer(t)
	h := s.withSession(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	rr := httptest.NewRecorder()
	h(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized status, got %d", rr.Code)
	}
}

func TestWithSessionStoresCaller(t *testing.T) {
	s, u := sessionServer(t)
	token, err := auth.Issue(s.cfg.Auth.JWTSecret, "", u.ID, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	var got *auth.Current
	h := s.withSession(func(w http.ResponseWriter, r *http.Request) {
		got = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(s.cfg.Auth.OrgHeader, "org-1")
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	h(rec, req)
	if rec.status != http.StatusOK {
		t.Fatalf("expected ok, got %d", rec.status)
	}
	if got == nil || got.User == nil || got.User.ID != u.ID || got.Organization != "org-1" {
		t.Fatalf("unexpected caller %+v", got)
	}
	if rec.current != got {
		t.Fatalf("expected recorder to remember the caller")
	}
}

func TestWithOptionalSessionAdmitsAnonymous(t *testing.T) {
	s, _ := sessionServer(t)
	var got *auth.Current
	h := s.withOptionalSession(func(w http.ResponseWriter, r *http.Request) {
		got = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/api/documents/1", nil)
	req.Header.Set(s.cfg.Auth.OrgHeader, "org-1")
	rr := httptest.NewRecorder()
	h(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d", rr.Code)
	}
	if got == nil || got.User != nil || got.Organization != "org-1" {
		t.Fatalf("expected anonymous caller in org-1, got %+v", got)
	}
}

func TestWithOptionalSessionRejectsInvalidToken(t *testing.T) {
	s, _ := sessionServer(t)
	h := s.withOptionalSession(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/api/documents/1", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rr := httptest.NewRecorder()
	h(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized status, got %d", rr.Code)
	}
}

func TestLimitImportsPerUser(t *testing.T) {
	s := &Server{cfg: &config.AppConfig{}, importLimiter: newLimiter(2, time.Minute)}
	h := s.limitImports(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	call := func(userID string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/documents/external", nil)
		req = req.WithContext(auth.WithCurrent(context.Background(), &auth.Current{User: &store.User{ID: userID}}))
		rr := httptest.NewRecorder()
		h(rr, req)
		return rr.Code
	}
	if code := call("u1"); code != http.StatusCreated {
		t.Fatalf("first import: %d", code)
	}
	if code := call("u1"); code != http.StatusCreated {
		t.Fatalf("second import: %d", code)
	}
	if code := call("u1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected limit on third import, got %d", code)
	}
	if code := call("u2"); code != http.StatusCreated {
		t.Fatalf("other user should not be limited, got %d", code)
	}
}

func TestLimiterCleanupDropsIdleBuckets(t *testing.T) {
	l := newLimiter(1, time.Minute)
	l.ttl = time.Second
	l.allow("a")
	l.cleanup(time.Now().Add(2 * time.Second))
	if len(l.buckets) != 0 {
		t.Fatalf("expected idle bucket to be removed, got %d", len(l.buckets))
	}
}

func TestRecoverMiddlewareAnswers500(t *testing.T) {
	s := &Server{}
	h := s.recoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", rr.Code)
	}
}
