package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tokengate/internal/model"
)

// mockStatusService はStatusServiceInterfaceのモック実装。
type mockStatusService struct {
	statusFunc func(ctx context.Context, accountID string) (*model.Binding, error)
	countFunc  func(ctx context.Context) (int, error)
}

func (m *mockStatusService) Status(ctx context.Context, accountID string) (*model.Binding, error) {
	return m.statusFunc(ctx, accountID)
}

func (m *mockStatusService) BindingCount(ctx context.Context) (int, error) {
	return m.countFunc(ctx)
}

var _ StatusServiceInterface = (*mockStatusService)(nil)

// mockPinger はPingerのモック実装。
type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	return m.err
}

// newAPIRouter はchiのURLパラメータを有効にしたテスト用ルーターを構築する。
func newAPIRouter(h *APIHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/verification/{discordID}", h.GetVerification)
	r.Get("/api/stats", h.GetStats)
	r.Get("/health", h.Health)
	return r
}

func TestAPIHandler_GetVerification_Found(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc := &mockStatusService{
		statusFunc: func(ctx context.Context, accountID string) (*model.Binding, error) {
			return &model.Binding{
				DiscordID:     accountID,
				FID:           model.NewFID(42),
				PrimaryWallet: "0xabc0000000000000000000000000000000000001",
				Balance:       3,
				DisplayName:   "alice",
				LastCheckedAt: now,
			}, nil
		},
	}
	router := newAPIRouter(NewAPIHandler(svc, &mockPinger{}))

	req := httptest.NewRequest(http.MethodGet, "/api/verification/111111111", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのパースに失敗した: %v", err)
	}

	if resp["verified"] != true {
		t.Errorf("verified = %v, want true", resp["verified"])
	}
	if resp["fid"] != "42" {
		t.Errorf("fid = %v, want \"42\"", resp["fid"])
	}
	if resp["primary_wallet"] != "0xabc0000000000000000000000000000000000001" {
		t.Errorf("primary_wallet = %v", resp["primary_wallet"])
	}
	if resp["balance"] != float64(3) {
		t.Errorf("balance = %v, want 3", resp["balance"])
	}
	if resp["last_checked_at"] != "2026-08-01T12:00:00Z" {
		t.Errorf("last_checked_at = %v", resp["last_checked_at"])
	}
}

func TestAPIHandler_GetVerification_NotFound(t *testing.T) {
	svc := &mockStatusService{
		statusFunc: func(ctx context.Context, accountID string) (*model.Binding, error) {
			return nil, nil
		},
	}
	router := newAPIRouter(NewAPIHandler(svc, &mockPinger{}))

	req := httptest.NewRequest(http.MethodGet, "/api/verification/111111111", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのパースに失敗した: %v", err)
	}
	if resp["verified"] != false {
		t.Errorf("verified = %v, want false", resp["verified"])
	}
	if _, ok := resp["fid"]; ok {
		t.Error("未検証の場合はfidを含めるべきでない")
	}
}

func TestAPIHandler_GetVerification_MalformedID(t *testing.T) {
	svc := &mockStatusService{
		statusFunc: func(ctx context.Context, accountID string) (*model.Binding, error) {
			t.Fatal("IDが不正な場合はサービスを呼び出してはならない")
			return nil, nil
		},
	}
	router := newAPIRouter(NewAPIHandler(svc, &mockPinger{}))

	for _, id := range []string{"abc", "12a34", "123456789012345678901"} {
		req := httptest.NewRequest(http.MethodGet, "/api/verification/"+id, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("id=%q: status = %d, want 400", id, rec.Code)
		}
	}
}

func TestAPIHandler_GetVerification_ServiceError(t *testing.T) {
	svc := &mockStatusService{
		statusFunc: func(ctx context.Context, accountID string) (*model.Binding, error) {
			return nil, errors.New("db down")
		},
	}
	router := newAPIRouter(NewAPIHandler(svc, &mockPinger{}))

	req := httptest.NewRequest(http.MethodGet, "/api/verification/111111111", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestAPIHandler_GetStats(t *testing.T) {
	svc := &mockStatusService{
		countFunc: func(ctx context.Context) (int, error) {
			return 7, nil
		},
	}
	router := newAPIRouter(NewAPIHandler(svc, &mockPinger{}))

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのパースに失敗した: %v", err)
	}
	if resp["bindings"] != 7 {
		t.Errorf("bindings = %d, want 7", resp["bindings"])
	}
}

func TestAPIHandler_Health(t *testing.T) {
	svc := &mockStatusService{}

	okRouter := newAPIRouter(NewAPIHandler(svc, &mockPinger{}))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	okRouter.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("DB正常時のstatus = %d, want 200", rec.Code)
	}

	ngRouter := newAPIRouter(NewAPIHandler(svc, &mockPinger{err: errors.New("connection refused")}))
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	ngRouter.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("DB異常時のstatus = %d, want 503", rec.Code)
	}
}

func TestIsValidSnowflake(t *testing.T) {
	valid := []string{"1", "111111111", "12345678901234567890"}
	for _, s := range valid {
		if !isValidSnowflake(s) {
			t.Errorf("isValidSnowflake(%q) = false, want true", s)
		}
	}

	invalid := []string{"", "abc", "-1", "1.5", "123456789012345678901"}
	for _, s := range invalid {
		if isValidSnowflake(s) {
			t.Errorf("isValidSnowflake(%q) = true, want false", s)
		}
	}
}
