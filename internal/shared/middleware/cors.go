package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/cors"
)

// CORS builds the go-chi/cors handler for the web client. An empty allow
// list accepts every origin; credentials are always allowed so the
// access_token cookie is sent.
func CORS(allowedHosts []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return isOriginAllowed(origin, allowedHosts)
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           3600,
	})
}

// isOriginAllowed matches the origin's host against allowedHosts. Entries
// may be bare hosts or full origins like http://localhost:5173. Entries with
// a port must match exactly; entries without one match any port.
func isOriginAllowed(origin string, allowedHosts []string) bool {
	if len(allowedHosts) == 0 {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Host)
	hostname := strings.ToLower(u.Hostname())

	for _, allowed := range allowedHosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if strings.Contains(allowed, "://") {
			au, err := url.Parse(allowed)
			if err != nil {
				continue
			}
			allowed = au.Host
		}
		if allowed == host || allowed == hostname {
			return true
		}
	}
	return false
}
