package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

func TestRequestIDGeneratesAndPropagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = chimiddleware.GetReqID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if seen == "" || rr.Header().Get("X-Request-Id") != seen {
		t.Fatalf("expected generated request id to be echoed, ctx=%q header=%q", seen, rr.Header().Get("X-Request-Id"))
	}

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if seen != "abc-123" {
		t.Fatalf("expected inbound request id to be kept, got %q", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-Id", "has space")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen == "has space" {
		t.Fatal("expected malformed request id to be replaced")
	}
}

func TestCORSAllowsListedOriginOnly(t *testing.T) {
	h := CORS([]string{"https://app.example.com/"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent || rr.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatalf("expected preflight to be allowed, status=%d headers=%v", rr.Code, rr.Header())
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden || rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("expected preflight from unknown origin to be refused, status=%d", rr.Code)
	}
}

func TestBodyLimitRejectsOversizedBody(t *testing.T) {
	var readErr error
	h := BodyLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	if readErr == nil {
		t.Fatal("expected oversized body read to fail")
	}
}

func TestSecurityHeadersSet(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	for _, name := range []string{"X-Content-Type-Options", "X-Frame-Options", "Cache-Control"} {
		if rr.Header().Get(name) == "" {
			t.Fatalf("expected %s header", name)
		}
	}
}

func TestTrustedRealIP(t *testing.T) {
	proxies := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8"), netip.MustParsePrefix("fd00::/8")}
	cases := []struct {
		name    string
		remote  string
		xff     []string
		realIP  string
		want    string
		proxies []netip.Prefix
	}{
		{name: "no proxies configured", remote: "203.0.113.9:4000", xff: []string{"198.51.100.1"}, want: "203.0.113.9"},
		{name: "untrusted peer spoofs xff", remote: "203.0.113.9:4000", xff: []string{"198.51.100.1"}, realIP: "198.51.100.2", want: "203.0.113.9", proxies: proxies},
		{name: "trusted peer forwards client", remote: "10.0.0.5:4000", xff: []string{"198.51.100.1"}, want: "198.51.100.1", proxies: proxies},
		{name: "rightmost untrusted hop wins", remote: "10.0.0.5:4000", xff: []string{"1.1.1.1, 198.51.100.1, 10.0.0.7"}, want: "198.51.100.1", proxies: proxies},
		{name: "repeated headers are joined", remote: "10.0.0.5:4000", xff: []string{"1.1.1.1", "198.51.100.3"}, want: "198.51.100.3", proxies: proxies},
		{name: "real ip from trusted peer", remote: "10.0.0.5:4000", realIP: "198.51.100.4", want: "198.51.100.4", proxies: proxies},
		{name: "malformed hop keeps peer", remote: "10.0.0.5:4000", xff: []string{"198.51.100.1, junk"}, want: "10.0.0.5", proxies: proxies},
		{name: "ipv6 proxy", remote: "[fd00::1]:4000", xff: []string{"2001:db8::9"}, want: "2001:db8::9", proxies: proxies},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			h := TrustedRealIP(tc.proxies)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = ClientIP(r)
			}))
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
			req.RemoteAddr = tc.remote
			for _, v := range tc.xff {
				req.Header.Add("X-Forwarded-For", v)
			}
			if tc.realIP != "" {
				req.Header.Set("X-Real-IP", tc.realIP)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if seen != tc.want {
				t.Fatalf("client ip=%q want %q", seen, tc.want)
			}
		})
	}
}
