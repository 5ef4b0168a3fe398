package httpapi

import (
	"net/http"
	"strings"

	"github.com/viant/jsonrpc/auth"
)

// AuthConfig toggles and scopes bearer-token checking.
type AuthConfig struct {
	Enabled bool
	Store   auth.Store
}

// RequireBearer wraps next with bearer-token checking per AuthConfig.
// /health always bypasses auth regardless of configuration. Auth failures
// are HTTP-level, not protocol-level: they never carry a JSON-RPC envelope,
// matching the bare http.Error used for 415/406 in server.go. Absence of the
// Authorization header yields 401; a token outside the allow-list yields
// 403, so a prober can never distinguish "no session" from "bad token".
func RequireBearer(cfg AuthConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !cfg.Enabled || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			http.Error(w, "authorization required", http.StatusUnauthorized)
			return
		}
		allowed, err := cfg.Store.Allowed(r.Context(), token)
		if err != nil || !allowed {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}
