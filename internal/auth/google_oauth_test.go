package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestGoogleOAuthProvider_GetLoginURL_ContainsRequiredParams(t *testing.T) {
	provider := NewGoogleOAuthProvider(ProviderConfig{
		ClientID:    "test-client-id",
		RedirectURL: "http://localhost:8080/auth/google/callback",
	})

	loginURL := provider.GetLoginURL("test-state")

	u, err := url.Parse(loginURL)
	if err != nil {
		t.Fatalf("invalid URL: %v", err)
	}
	if !strings.HasPrefix(loginURL, defaultGoogleAuthURL) {
		t.Errorf("URL = %q, want prefix %q", loginURL, defaultGoogleAuthURL)
	}
	q := u.Query()
	tests := map[string]string{
		"client_id":     "test-client-id",
		"redirect_uri":  "http://localhost:8080/auth/google/callback",
		"response_type": "code",
		"state":         "test-state",
		"scope":         "openid email profile",
	}
	for key, want := range tests {
		if got := q.Get(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
}

func TestGoogleOAuthProvider_ExchangeCode_Success(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("code") != "test-auth-code" || r.PostForm.Get("grant_type") != "authorization_code" {
			t.Errorf("unexpected form: %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-access-token",
			"token_type":   "Bearer",
		})
	}))
	defer tokenServer.Close()

	userInfoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-access-token" {
			t.Errorf("unexpected Authorization header: %q", got)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"sub":            "google-sub-12345",
			"email":          "gardener@gmail.com",
			"email_verified": true,
			"name":           "Garden Lover",
		})
	}))
	defer userInfoServer.Close()

	provider := NewGoogleOAuthProvider(ProviderConfig{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "http://localhost:8080/auth/google/callback",
		TokenURL:     tokenServer.URL,
		UserInfoURL:  userInfoServer.URL,
	})

	info, err := provider.ExchangeCode(context.Background(), "test-auth-code")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}

	want := OAuthUserInfo{
		ProviderUserID: "google-sub-12345",
		Email:          "gardener@gmail.com",
		Name:           "Garden Lover",
		Provider:       "google",
	}
	if *info != want {
		t.Errorf("info = %+v, want %+v", *info, want)
	}
}

func TestGoogleOAuthProvider_ExchangeCode_Errors(t *testing.T) {
	okToken := func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok"})
	}

	tests := []struct {
		name     string
		token    http.HandlerFunc
		userInfo http.HandlerFunc
	}{
		{
			name: "トークン交換失敗",
			token: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]any{"error": "invalid_grant"})
			},
		},
		{
			name:  "ユーザー情報取得失敗",
			token: okToken,
			userInfo: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
		},
		{
			name:  "未検証メール",
			token: okToken,
			userInfo: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"sub": "1", "email": "x@example.com", "email_verified": false})
			},
		},
		{
			name:  "subなし",
			token: okToken,
			userInfo: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"email": "x@example.com"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokenServer := httptest.NewServer(tt.token)
			defer tokenServer.Close()
			userInfo := tt.userInfo
			if userInfo == nil {
				userInfo = func(w http.ResponseWriter, r *http.Request) { t.Error("user info should not be called") }
			}
			userInfoServer := httptest.NewServer(userInfo)
			defer userInfoServer.Close()

			provider := NewGoogleOAuthProvider(ProviderConfig{
				TokenURL:    tokenServer.URL,
				UserInfoURL: userInfoServer.URL,
			})

			if _, err := provider.ExchangeCode(context.Background(), "code"); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
