package discord

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

func newTestRoleManager(serverURL string, buf *bytes.Buffer) *RoleManager {
	return NewRoleManager(RoleManagerConfig{
		BotToken:   "bot-token",
		GuildID:    "guild-1",
		RoleID:     "role-1",
		APIBaseURL: serverURL,
	}, nil, newTestLogger(buf))
}

func TestRoleManager_Grant(t *testing.T) {
	var buf bytes.Buffer
	var gotMethod, gotPath, gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	m := newTestRoleManager(server.URL, &buf)

	if err := m.Grant(context.Background(), "111111111"); err != nil {
		t.Fatalf("Grant がエラーを返した: %v", err)
	}

	if gotMethod != http.MethodPut {
		t.Errorf("メソッド = %s, want PUT", gotMethod)
	}
	if gotPath != "/guilds/guild-1/members/111111111/roles/role-1" {
		t.Errorf("パス = %s", gotPath)
	}
	if gotAuth != "Bot bot-token" {
		t.Errorf("Authorization = %q, want \"Bot bot-token\"", gotAuth)
	}
}

func TestRoleManager_Revoke(t *testing.T) {
	var buf bytes.Buffer
	var gotMethod string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	m := newTestRoleManager(server.URL, &buf)

	if err := m.Revoke(context.Background(), "111111111"); err != nil {
		t.Fatalf("Revoke がエラーを返した: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("メソッド = %s, want DELETE", gotMethod)
	}
}

func TestRoleManager_Revoke_MemberNotFoundIsSuccess(t *testing.T) {
	// ギルドを退出済みのメンバーへの剥奪は404を返すが、冪等操作として成功扱い
	var buf bytes.Buffer
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	m := newTestRoleManager(server.URL, &buf)

	if err := m.Revoke(context.Background(), "111111111"); err != nil {
		t.Fatalf("退出済みメンバーへの剥奪はエラーにすべきでない: %v", err)
	}
}

func TestRoleManager_Grant_ForbiddenIsError(t *testing.T) {
	var buf bytes.Buffer
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message": "Missing Permissions"}`))
	}))
	defer server.Close()

	m := newTestRoleManager(server.URL, &buf)

	if err := m.Grant(context.Background(), "111111111"); err == nil {
		t.Fatal("403レスポンスはエラーを返すべき")
	}
}

func TestRoleManager_Grant_NotFoundIsError(t *testing.T) {
	// Grantでの404は付与失敗（Revokeと異なり成功扱いしない）
	var buf bytes.Buffer
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	m := newTestRoleManager(server.URL, &buf)

	if err := m.Grant(context.Background(), "111111111"); err == nil {
		t.Fatal("Grantの404はエラーを返すべき")
	}
}
