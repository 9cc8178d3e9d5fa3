package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tokengate/internal/model"
)

// StatusServiceInterface はステータスAPIハンドラーが必要とするサービスインターフェース。
type StatusServiceInterface interface {
	// Status は指定DiscordアカウントIDのBindingを返す。見つからない場合はnil。
	Status(ctx context.Context, accountID string) (*model.Binding, error)
	// BindingCount はBindingの総数を返す。
	BindingCount(ctx context.Context) (int, error)
}

// Pinger はヘルスチェックが必要とするDB疎通確認インターフェース。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// APIHandler はbot連携用のステータスAPIハンドラー。
type APIHandler struct {
	service StatusServiceInterface
	db      Pinger
}

// NewAPIHandler はAPIHandlerを生成する。
func NewAPIHandler(service StatusServiceInterface, db Pinger) *APIHandler {
	return &APIHandler{
		service: service,
		db:      db,
	}
}

// verificationResponse は検証ステータスのAPIレスポンス。
type verificationResponse struct {
	Verified      bool   `json:"verified"`
	FID           string `json:"fid,omitempty"`
	PrimaryWallet string `json:"primary_wallet,omitempty"`
	Balance       int64  `json:"balance,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	LastCheckedAt string `json:"last_checked_at,omitempty"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// GetVerification は指定DiscordアカウントIDの検証ステータスを返す。
// GET /api/verification/{discordID}
func (h *APIHandler) GetVerification(w http.ResponseWriter, r *http.Request) {
	discordID := chi.URLParam(r, "discordID")
	if !isValidSnowflake(discordID) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidAccountIDError(discordID))
		return
	}

	binding, err := h.service.Status(r.Context(), discordID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := verificationResponse{Verified: false}
	if binding != nil {
		resp = verificationResponse{
			Verified:      true,
			PrimaryWallet: binding.PrimaryWallet,
			Balance:       binding.Balance,
			DisplayName:   binding.DisplayName,
			LastCheckedAt: binding.LastCheckedAt.UTC().Format(time.RFC3339),
		}
		if binding.FID.Valid {
			resp.FID = binding.FID.String()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetStats はBinding総数を返す。
// GET /api/stats
func (h *APIHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.BindingCount(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"bindings": count})
}

// Health はDBへの疎通を確認する。
// GET /health
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		slog.Error("health check failed", slog.String("error", err.Error()))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// isValidSnowflake はDiscordのsnowflake ID（1〜20桁の数字）かを判定する。
func isValidSnowflake(s string) bool {
	if len(s) == 0 || len(s) > 20 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// writeAPIErrorResponse は統一エラーフォーマットでレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidWallet, model.ErrCodeInvalidFID, model.ErrCodeInvalidAccountID:
		return http.StatusBadRequest
	case model.ErrCodeSessionExpired:
		return http.StatusGone
	case model.ErrCodeOAuthFailed:
		return http.StatusBadGateway
	case model.ErrCodeSocialAlreadyLinked, model.ErrCodeWalletAlreadyLinked:
		return http.StatusConflict
	case model.ErrCodeRoleGrantFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
