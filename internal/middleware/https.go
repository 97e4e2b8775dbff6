package middleware

import (
	"net/http"
	"strings"
)

// NewHTTPSRedirectMiddleware はTLSでないリクエストをhttpsへ301リダイレクトするミドルウェアを返す。
// enforceがfalseの場合（開発環境）は何もしない。exemptに一致するパスは対象外とする。
// TLS終端がプロキシの場合はX-Forwarded-Protoで判定する。
func NewHTTPSRedirectMiddleware(enforce bool, exempt ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enforce {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSecureRequest(r) || isExemptPath(r.URL.Path, exempt) {
				next.ServeHTTP(w, r)
				return
			}
			target := "https://" + r.Host + r.URL.RequestURI()
			http.Redirect(w, r, target, http.StatusMovedPermanently)
		})
	}
}

func isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func isExemptPath(path string, exempt []string) bool {
	for _, p := range exempt {
		if path == p {
			return true
		}
	}
	return false
}
