package social

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestClient_UserByFID_MapsResponse(t *testing.T) {
	var buf bytes.Buffer
	var gotAPIKey, gotQuery string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("x-api-key")
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"users":[{
			"fid": 42,
			"username": "alice",
			"display_name": "Alice",
			"pfp_url": "https://img.example/alice.png",
			"follower_count": 120,
			"following_count": 80,
			"power_badge": true,
			"verifications": ["0xAAA0000000000000000000000000000000000001", "0xBBB0000000000000000000000000000000000002"]
		}]}`))
	}))
	defer server.Close()

	client := NewClient(server.Client(), "test-key", newTestLogger(&buf))
	client.endpoint = server.URL

	user, err := client.UserByFID(context.Background(), 42)
	if err != nil {
		t.Fatalf("UserByFID がエラーを返した: %v", err)
	}
	if user == nil {
		t.Fatal("ユーザーが返されるべき")
	}

	if gotAPIKey != "test-key" {
		t.Errorf("x-api-key = %q, want \"test-key\"", gotAPIKey)
	}
	if gotQuery != "fids=42" {
		t.Errorf("クエリ = %q, want \"fids=42\"", gotQuery)
	}

	if len(user.Wallets) != 2 {
		t.Fatalf("Wallets = %v, want 2件", user.Wallets)
	}
	if user.Profile.FollowerCount != 120 {
		t.Errorf("FollowerCount = %d, want 120", user.Profile.FollowerCount)
	}
	if user.Profile.FollowingCount != 80 {
		t.Errorf("FollowingCount = %d, want 80", user.Profile.FollowingCount)
	}
	if user.Profile.VerifiedAddrs != 2 {
		t.Errorf("VerifiedAddrs = %d, want 2", user.Profile.VerifiedAddrs)
	}
	if !user.Profile.PowerBadge {
		t.Error("PowerBadge = false, want true")
	}
	if !user.Profile.HasAvatar {
		t.Error("HasAvatar = false, want true")
	}
	if !user.Profile.HasDisplayName {
		t.Error("HasDisplayName = false, want true（表示名がusernameと異なる）")
	}
}

func TestClient_UserByFID_DefaultDisplayNameNotCounted(t *testing.T) {
	var buf bytes.Buffer
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"users":[{"fid": 7, "username": "bob", "display_name": "bob"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.Client(), "test-key", newTestLogger(&buf))
	client.endpoint = server.URL

	user, err := client.UserByFID(context.Background(), 7)
	if err != nil {
		t.Fatalf("UserByFID がエラーを返した: %v", err)
	}
	if user.Profile.HasDisplayName {
		t.Error("usernameと同一の表示名はHasDisplayName=falseであるべき")
	}
	if user.Profile.HasAvatar {
		t.Error("pfp_urlが空の場合はHasAvatar=falseであるべき")
	}
}

func TestClient_UserByFID_NotFoundReturnsNil(t *testing.T) {
	var buf bytes.Buffer
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.Client(), "test-key", newTestLogger(&buf))
	client.endpoint = server.URL

	user, err := client.UserByFID(context.Background(), 999)
	if err != nil {
		t.Fatalf("404はエラーではなくnilを返すべき: %v", err)
	}
	if user != nil {
		t.Errorf("user = %+v, want nil", user)
	}
}

func TestClient_UserByFID_EmptyUsersReturnsNil(t *testing.T) {
	var buf bytes.Buffer
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"users":[]}`))
	}))
	defer server.Close()

	client := NewClient(server.Client(), "test-key", newTestLogger(&buf))
	client.endpoint = server.URL

	user, err := client.UserByFID(context.Background(), 1)
	if err != nil {
		t.Fatalf("空のusersはエラーではなくnilを返すべき: %v", err)
	}
	if user != nil {
		t.Errorf("user = %+v, want nil", user)
	}
}

func TestClient_UserByFID_ServerErrorReturnsError(t *testing.T) {
	var buf bytes.Buffer
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.Client(), "test-key", newTestLogger(&buf))
	client.endpoint = server.URL

	_, err := client.UserByFID(context.Background(), 1)
	if err == nil {
		t.Fatal("5xxレスポンスはエラーを返すべき")
	}
}
