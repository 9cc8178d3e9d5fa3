package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/tokengate/internal/model"
	"github.com/hitoshi/tokengate/internal/verify"
)

// mockVerifyService はVerifyServiceInterfaceのモック実装。
type mockVerifyService struct {
	startFunc    func(ctx context.Context, wallet string, fid model.FID) (string, error)
	completeFunc func(ctx context.Context, state, code string) (*verify.Result, error)
}

func (m *mockVerifyService) Start(ctx context.Context, wallet string, fid model.FID) (string, error) {
	return m.startFunc(ctx, wallet, fid)
}

func (m *mockVerifyService) Complete(ctx context.Context, state, code string) (*verify.Result, error) {
	return m.completeFunc(ctx, state, code)
}

var _ VerifyServiceInterface = (*mockVerifyService)(nil)

func TestVerifyHandler_Start_RedirectsToAuthorizeURL(t *testing.T) {
	svc := &mockVerifyService{
		startFunc: func(ctx context.Context, wallet string, fid model.FID) (string, error) {
			if wallet != "0xabc0000000000000000000000000000000000001" {
				t.Errorf("wallet = %s", wallet)
			}
			if !fid.Valid || fid.Value != 42 {
				t.Errorf("fid = %+v, want 42", fid)
			}
			return "https://discord.test/authorize?state=xyz", nil
		},
	}
	h := NewVerifyHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/auth/start?wallet=0xabc0000000000000000000000000000000000001&fid=42", nil)
	rec := httptest.NewRecorder()

	h.Start(rec, req)

	if rec.Code != http.StatusFound {
		t.Errorf("status = %d, want 302", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "https://discord.test/authorize?state=xyz" {
		t.Errorf("Location = %q", got)
	}
}

func TestVerifyHandler_Start_InvalidFIDReturns400(t *testing.T) {
	svc := &mockVerifyService{
		startFunc: func(ctx context.Context, wallet string, fid model.FID) (string, error) {
			t.Fatal("FIDが不正な場合はサービスを呼び出してはならない")
			return "", nil
		},
	}
	h := NewVerifyHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/auth/start?wallet=0xabc&fid=-1", nil)
	rec := httptest.NewRecorder()

	h.Start(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), model.ErrCodeInvalidFID) {
		t.Errorf("レスポンスにINVALID_FIDが含まれるべき: %s", rec.Body.String())
	}
}

func TestVerifyHandler_Start_InvalidWalletReturns400(t *testing.T) {
	svc := &mockVerifyService{
		startFunc: func(ctx context.Context, wallet string, fid model.FID) (string, error) {
			return "", model.NewInvalidWalletError(wallet)
		},
	}
	h := NewVerifyHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/auth/start?wallet=bogus", nil)
	rec := httptest.NewRecorder()

	h.Start(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestVerifyHandler_Callback_SuccessPage(t *testing.T) {
	svc := &mockVerifyService{
		completeFunc: func(ctx context.Context, state, code string) (*verify.Result, error) {
			return &verify.Result{
				Status:        verify.StatusVerified,
				DisplayName:   "alice",
				PrimaryWallet: "0xabc0000000000000000000000000000000000001",
				Balance:       3,
				TrustScore:    65,
				HasProfile:    true,
			}, nil
		},
	}
	h := NewVerifyHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=c&state=s", nil)
	rec := httptest.NewRecorder()

	h.Callback(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "alice") {
		t.Error("成功ページに表示名が含まれるべき")
	}
	if !strings.Contains(body, "0xabc0000000000000000000000000000000000001") {
		t.Error("成功ページにプライマリウォレットが含まれるべき")
	}
	if !strings.Contains(body, "65 / 100") {
		t.Error("成功ページに信頼スコアが含まれるべき")
	}
}

func TestVerifyHandler_Callback_SanitizesDisplayName(t *testing.T) {
	svc := &mockVerifyService{
		completeFunc: func(ctx context.Context, state, code string) (*verify.Result, error) {
			return &verify.Result{
				Status:      verify.StatusVerified,
				DisplayName: `<script>alert("x")</script>mallory`,
				Balance:     1,
			}, nil
		},
	}
	h := NewVerifyHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=c&state=s", nil)
	rec := httptest.NewRecorder()

	h.Callback(rec, req)

	body := rec.Body.String()
	if strings.Contains(body, "<script>") {
		t.Error("表示名のマークアップがページに到達してはならない")
	}
	if !strings.Contains(body, "mallory") {
		t.Error("サニタイズ後のテキストは残るべき")
	}
}

func TestVerifyHandler_Callback_NotHolderPage(t *testing.T) {
	svc := &mockVerifyService{
		completeFunc: func(ctx context.Context, state, code string) (*verify.Result, error) {
			return &verify.Result{
				Status:      verify.StatusNotHolder,
				DisplayName: "bob",
			}, nil
		},
	}
	h := NewVerifyHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=c&state=s", nil)
	rec := httptest.NewRecorder()

	h.Callback(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("保有なしは正常な結果としてstatus 200を返すべき: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "保有を確認できませんでした") {
		t.Errorf("保有なしページが描画されるべき: %s", rec.Body.String())
	}
}

func TestVerifyHandler_Callback_ExpiredSessionPage(t *testing.T) {
	svc := &mockVerifyService{
		completeFunc: func(ctx context.Context, state, code string) (*verify.Result, error) {
			return nil, model.NewSessionExpiredError()
		},
	}
	h := NewVerifyHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=c&state=s", nil)
	rec := httptest.NewRecorder()

	h.Callback(rec, req)

	if rec.Code != http.StatusGone {
		t.Errorf("status = %d, want 410", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "有効期限") {
		t.Error("失効ページが描画されるべき")
	}
}

func TestVerifyHandler_Callback_ConflictPage(t *testing.T) {
	svc := &mockVerifyService{
		completeFunc: func(ctx context.Context, state, code string) (*verify.Result, error) {
			return nil, model.NewWalletAlreadyLinkedError("carol")
		},
	}
	h := NewVerifyHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=c&state=s", nil)
	rec := httptest.NewRecorder()

	h.Callback(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "carol") {
		t.Error("競合ページに既存アカウントの表示名が含まれるべき")
	}
}

func TestVerifyHandler_Callback_MissingParamsIsFailurePage(t *testing.T) {
	svc := &mockVerifyService{
		completeFunc: func(ctx context.Context, state, code string) (*verify.Result, error) {
			t.Fatal("パラメータ欠落時はサービスを呼び出してはならない")
			return nil, nil
		},
	}
	h := NewVerifyHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback", nil)
	rec := httptest.NewRecorder()

	h.Callback(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
