package discord

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestOAuthProvider_GetLoginURL(t *testing.T) {
	p := NewOAuthProvider(OAuthConfig{
		ClientID:    "client-id",
		RedirectURL: "http://localhost:8080/auth/callback",
	}, nil)

	loginURL := p.GetLoginURL("state-abc")

	parsed, err := url.Parse(loginURL)
	if err != nil {
		t.Fatalf("認可URLのパースに失敗した: %v", err)
	}

	q := parsed.Query()
	if q.Get("client_id") != "client-id" {
		t.Errorf("client_id = %q", q.Get("client_id"))
	}
	if q.Get("state") != "state-abc" {
		t.Errorf("state = %q", q.Get("state"))
	}
	if q.Get("scope") != "identify" {
		t.Errorf("scope = %q, want \"identify\"", q.Get("scope"))
	}
	if q.Get("response_type") != "code" {
		t.Errorf("response_type = %q, want \"code\"", q.Get("response_type"))
	}
}

func TestOAuthProvider_ExchangeCode(t *testing.T) {
	var tokenForm url.Values

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		tokenForm = r.PostForm
		w.Write([]byte(`{"access_token": "token-xyz", "token_type": "Bearer", "expires_in": 3600}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token-xyz" {
			t.Errorf("Authorization = %q, want \"Bearer token-xyz\"", got)
		}
		w.Write([]byte(`{"id": "111111111", "username": "alice", "global_name": "Alice Wonderland"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	p := NewOAuthProvider(OAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/auth/callback",
		TokenURL:     server.URL + "/token",
		UserURL:      server.URL + "/user",
	}, server.Client())

	user, err := p.ExchangeCode(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("ExchangeCode がエラーを返した: %v", err)
	}

	if user.AccountID != "111111111" {
		t.Errorf("AccountID = %q, want \"111111111\"", user.AccountID)
	}
	if user.DisplayName != "Alice Wonderland" {
		t.Errorf("DisplayName = %q, want \"Alice Wonderland\"", user.DisplayName)
	}

	if tokenForm.Get("grant_type") != "authorization_code" {
		t.Errorf("grant_type = %q", tokenForm.Get("grant_type"))
	}
	if tokenForm.Get("code") != "auth-code" {
		t.Errorf("code = %q", tokenForm.Get("code"))
	}
	if tokenForm.Get("client_secret") != "client-secret" {
		t.Errorf("client_secret = %q", tokenForm.Get("client_secret"))
	}
}

func TestOAuthProvider_ExchangeCode_FallsBackToUsername(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token": "token-xyz"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "222222222", "username": "bob", "global_name": ""}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	p := NewOAuthProvider(OAuthConfig{
		TokenURL: server.URL + "/token",
		UserURL:  server.URL + "/user",
	}, server.Client())

	user, err := p.ExchangeCode(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("ExchangeCode がエラーを返した: %v", err)
	}
	if user.DisplayName != "bob" {
		t.Errorf("global_nameが空の場合はusernameにフォールバックすべき: %q", user.DisplayName)
	}
}

func TestOAuthProvider_ExchangeCode_TokenErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid_grant"}`))
	}))
	defer server.Close()

	p := NewOAuthProvider(OAuthConfig{
		TokenURL: server.URL,
		UserURL:  server.URL,
	}, server.Client())

	_, err := p.ExchangeCode(context.Background(), "bad-code")
	if err == nil {
		t.Fatal("トークン交換のエラーステータスはエラーを返すべき")
	}
	if !strings.Contains(err.Error(), "400") {
		t.Errorf("エラーにステータスコードが含まれるべき: %v", err)
	}
}

func TestOAuthProvider_ExchangeCode_EmptyAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token": ""}`))
	}))
	defer server.Close()

	p := NewOAuthProvider(OAuthConfig{
		TokenURL: server.URL,
		UserURL:  server.URL,
	}, server.Client())

	_, err := p.ExchangeCode(context.Background(), "code")
	if err == nil {
		t.Fatal("空のアクセストークンはエラーを返すべき")
	}
}
