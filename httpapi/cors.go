// Package httpapi is the HTTP Front-End: request validation, session header
// plumbing, SSE upgrade, and the fixed /health, /stats, and /metrics
// endpoints sitting in front of the Proxy Core.
package httpapi

import (
	"net"
	"net/http"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// CORSConfig controls the Origin allow-list and exposed surface for
// cross-origin requests, per the spec's "configurable; * permits any" rule.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
}

const (
	corsAllowedMethods = "GET, POST, DELETE, OPTIONS"
	corsAllowedHeaders = "Content-Type, Accept, Authorization, Mcp-Session-Id"
	corsExposeHeaders  = "Mcp-Session-Id"
)

// CORS wraps next with origin checking and preflight handling. A request
// whose Origin is not allow-listed is passed through unmodified (no CORS
// headers), which browsers then block client-side.
func CORS(cfg CORSConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(cfg, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", corsAllowedMethods)
			w.Header().Set("Access-Control-Allow-Headers", corsAllowedHeaders)
			w.Header().Set("Access-Control-Expose-Headers", corsExposeHeaders)
			if cfg.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(cfg CORSConfig, origin string) bool {
	for _, allowed := range cfg.AllowedOrigins {
		if allowed == "*" {
			return true
		}
		if strings.EqualFold(allowed, origin) {
			return true
		}
		if sameTopDomain(allowed, origin) {
			return true
		}
	}
	return false
}

// sameTopDomain reports whether origin shares an eTLD+1 with allowed,
// letting an operator allow-list "https://example.com" and have it cover
// "https://app.example.com" without enumerating every subdomain.
func sameTopDomain(allowed, origin string) bool {
	ah, oh := hostOf(allowed), hostOf(origin)
	if ah == "" || oh == "" {
		return false
	}
	at, err := topDomain(ah)
	if err != nil || at == "" {
		return false
	}
	ot, err := topDomain(oh)
	if err != nil || ot == "" {
		return false
	}
	return at == ot
}

func hostOf(rawOrigin string) string {
	rawOrigin = strings.TrimSpace(rawOrigin)
	if i := strings.Index(rawOrigin, "://"); i >= 0 {
		rawOrigin = rawOrigin[i+3:]
	}
	return stripPort(rawOrigin)
}

func topDomain(host string) (string, error) {
	if host == "" || isIP(host) || isLocalhost(host) {
		return "", nil
	}
	e, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", err
	}
	if e == "" {
		return "", nil
	}
	return e, nil
}

func isIP(h string) bool { return net.ParseIP(stripPort(h)) != nil }

func isLocalhost(h string) bool {
	h = strings.ToLower(stripPort(h))
	return h == "localhost" || strings.HasSuffix(h, ".localhost")
}

func stripPort(h string) string {
	if i := strings.LastIndexByte(h, ':'); i > -1 {
		return h[:i]
	}
	return h
}
