package middleware

import "net/http"

// SecurityProfile はセキュリティヘッダーのプロファイル。プロセス起動時に一度だけ選択する。
type SecurityProfile struct {
	ContentSecurityPolicy string
	FrameOptions          string
	HSTS                  string // 空なら送信しない
}

// DevelopmentSecurityProfile は開発環境向けの緩いプロファイル。
// ホットリロード用のインラインスクリプトとWebSocket接続を許可する。
func DevelopmentSecurityProfile() SecurityProfile {
	return SecurityProfile{
		ContentSecurityPolicy: "default-src 'self'; " +
			"script-src 'self' 'unsafe-inline' 'unsafe-eval'; " +
			"style-src 'self' 'unsafe-inline'; " +
			"img-src 'self' data: https:; " +
			"connect-src 'self' ws: wss: https:",
		FrameOptions: "SAMEORIGIN",
	}
}

// ProductionSecurityProfile は本番環境向けの厳格なプロファイル。
func ProductionSecurityProfile() SecurityProfile {
	return SecurityProfile{
		ContentSecurityPolicy: "default-src 'self'; " +
			"script-src 'self'; " +
			"style-src 'self'; " +
			"img-src 'self' data: https:; " +
			"connect-src 'self'; " +
			"frame-ancestors 'none'; " +
			"base-uri 'self'; " +
			"form-action 'self'",
		FrameOptions: "DENY",
		HSTS:         "max-age=31536000; includeSubDomains",
	}
}

// SecurityProfileFor は本番フラグに対応するプロファイルを返す。
func SecurityProfileFor(production bool) SecurityProfile {
	if production {
		return ProductionSecurityProfile()
	}
	return DevelopmentSecurityProfile()
}

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
// ヘッダーはハンドラーがボディを書く前に設定する。
func NewSecurityHeadersMiddleware(profile SecurityProfile) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Content-Security-Policy", profile.ContentSecurityPolicy)
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", profile.FrameOptions)
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=(self)")
			if profile.HSTS != "" {
				h.Set("Strict-Transport-Security", profile.HSTS)
			}
			next.ServeHTTP(w, r)
		})
	}
}
