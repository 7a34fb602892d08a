package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// PublicPaths are served without a token.
var PublicPaths = []string{"/healthz", "/metrics"}

// Authenticate returns middleware that rejects requests without a valid bearer token and
// stores the parsed claims on the request context. Preflight requests and PublicPaths pass
// through untouched.
func Authenticate(cfg Config) func(http.Handler) http.Handler {
	public := make(map[string]struct{}, len(PublicPaths))
	for _, path := range PublicPaths {
		public[path] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := public[r.URL.Path]; ok || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := Parse(bearerToken(r), cfg)
			if err != nil {
				unauthorized(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return token
}

func unauthorized(w http.ResponseWriter, err error) {
	detail := ErrInvalidToken.Error()
	if errors.Is(err, ErrMissingToken) {
		detail = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="insights"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"type": "unauthorized", "detail": detail})
}
