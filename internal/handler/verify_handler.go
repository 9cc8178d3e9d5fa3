// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/tokengate/internal/model"
	"github.com/hitoshi/tokengate/internal/verify"
)

// VerifyServiceInterface は検証ハンドラーが必要とするサービスインターフェース。
type VerifyServiceInterface interface {
	// Start は検証フローを開始し、OAuth認可URLを返す。
	Start(ctx context.Context, wallet string, fid model.FID) (string, error)
	// Complete はOAuthコールバックから検証フローを完了させる。
	Complete(ctx context.Context, state, code string) (*verify.Result, error)
}

// VerifyHandler は検証フローのHTTPハンドラー。
// コールバックは人間が見るHTMLページを返す（Discordのリダイレクト先のため）。
type VerifyHandler struct {
	service   VerifyServiceInterface
	sanitizer *bluemonday.Policy
}

// NewVerifyHandler はVerifyHandlerを生成する。
func NewVerifyHandler(service VerifyServiceInterface) *VerifyHandler {
	return &VerifyHandler{
		service: service,
		// 表示名は外部サービス由来の攻撃者制御値。マークアップを全て除去する
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// Start は検証フローを開始する。
// GET /auth/start?wallet=0x..&fid=42
// 成功時はDiscordの認可URLに302リダイレクトする。
func (h *VerifyHandler) Start(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	rawFID := r.URL.Query().Get("fid")

	fid, err := model.ParseFID(rawFID)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidFIDError(rawFID))
		return
	}

	url, err := h.service.Start(r.Context(), wallet, fid)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

// Callback はOAuthコールバックを処理し、検証結果のHTMLページを返す。
// GET /auth/callback?code=xxx&state=yyy
func (h *VerifyHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	if code == "" || state == "" {
		// ユーザーがDiscord側で認可を拒否した場合もここに来る
		h.renderPage(w, http.StatusBadRequest, resultPageData{
			Title:   "検証失敗",
			Heading: "検証を完了できませんでした",
			Message: "Discordの認可が完了しませんでした。",
			Action:  "最初から検証をやり直してください。",
		})
		return
	}

	result, err := h.service.Complete(r.Context(), state, code)
	if err != nil {
		h.renderErrorPage(w, err)
		return
	}

	if result.Status == verify.StatusNotHolder {
		h.renderPage(w, http.StatusOK, resultPageData{
			Title:   "対象NFTの保有なし",
			Heading: "対象のNFTが見つかりませんでした",
			Message: fmt.Sprintf("%s さんのウォレットでは対象NFTの保有を確認できませんでした。", h.sanitizer.Sanitize(result.DisplayName)),
			Rows:    trustRows(result),
			Action:  "NFTを取得したウォレットで再度お試しください。",
		})
		return
	}

	rows := []resultRow{
		{Label: "ウォレット", Value: result.PrimaryWallet},
		{Label: "保有数", Value: strconv.FormatInt(result.Balance, 10)},
	}
	rows = append(rows, trustRows(result)...)

	h.renderPage(w, http.StatusOK, resultPageData{
		Title:   "検証完了",
		Heading: "検証が完了しました",
		Message: fmt.Sprintf("%s さんにロールを付与しました。", h.sanitizer.Sanitize(result.DisplayName)),
		Rows:    rows,
	})
}

// trustRows は信頼スコアの表示行を返す。プロフィールなしの場合は空。
func trustRows(result *verify.Result) []resultRow {
	if !result.HasProfile {
		return nil
	}
	return []resultRow{
		{Label: "信頼スコア", Value: fmt.Sprintf("%d / 100", result.TrustScore)},
	}
}

// renderErrorPage はサービス層のエラーを結果ページにマッピングして描画する。
func (h *VerifyHandler) renderErrorPage(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case model.ErrCodeSessionExpired:
			h.renderPage(w, http.StatusGone, resultPageData{
				Title:   "セッション失効",
				Heading: "検証セッションの有効期限が切れています",
				Message: apiErr.Message,
				Action:  apiErr.Action,
			})
			return
		case model.ErrCodeSocialAlreadyLinked, model.ErrCodeWalletAlreadyLinked:
			h.renderPage(w, http.StatusConflict, resultPageData{
				Title:   "重複エラー",
				Heading: "既に他のアカウントに紐付いています",
				Message: h.sanitizer.Sanitize(apiErr.Message),
				Action:  apiErr.Action,
			})
			return
		case model.ErrCodeOAuthFailed, model.ErrCodeRoleGrantFailed:
			h.renderPage(w, http.StatusBadGateway, resultPageData{
				Title:   "検証失敗",
				Heading: "検証を完了できませんでした",
				Message: apiErr.Message,
				Action:  apiErr.Action,
			})
			return
		}
	}

	slog.Error("verification callback failed", slog.String("error", err.Error()))
	h.renderPage(w, http.StatusInternalServerError, resultPageData{
		Title:   "検証失敗",
		Heading: "検証を完了できませんでした",
		Message: "内部エラーが発生しました。",
		Action:  "しばらく待ってから再度お試しください。",
	})
}

// renderPage は結果ページを描画する。
func (h *VerifyHandler) renderPage(w http.ResponseWriter, statusCode int, data resultPageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := resultPageTemplate.Execute(w, data); err != nil {
		slog.Error("failed to render result page", slog.String("error", err.Error()))
	}
}
