package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/zeusync/netsync/internal/core/observability/log"
)

// TokenAuth guards the WebSocket upgrade with a shared secret. The client
// passes it as the "token" query parameter or as a bearer Authorization
// header. An empty Token lets every request through.
type TokenAuth struct {
	Token  string
	Logger log.Log
}

func (m *TokenAuth) Name() string {
	return "TokenAuth"
}

// Wrap returns next guarded by the token check.
func (m *TokenAuth) Wrap(next http.Handler) http.Handler {
	if m == nil || m.Token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.authorized(r) {
			if m.Logger != nil {
				m.Logger.Warn("Upgrade rejected",
					log.String("remote_addr", r.RemoteAddr),
					log.Error(ErrUnauthorized),
				)
			}
			http.Error(w, ErrUnauthorized.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *TokenAuth) authorized(r *http.Request) bool {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(m.Token)) == 1
}
