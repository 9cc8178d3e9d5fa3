package verify

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/hitoshi/tokengate/internal/metrics"
	"github.com/hitoshi/tokengate/internal/model"
	"github.com/hitoshi/tokengate/internal/repository"
)

// OAuthProvider はDiscord OAuth認証のインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認可URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUser, error)
}

// OAuthUser はOAuthで特定されたDiscordユーザーを表す。
type OAuthUser struct {
	AccountID   string
	DisplayName string
}

// RoleManager はギルドロール付与・剥奪のインターフェース。
type RoleManager interface {
	// Grant は指定Discordユーザーにロールを付与する。冪等。
	Grant(ctx context.Context, accountID string) error
	// Revoke は指定Discordユーザーからロールを剥奪する。冪等。
	Revoke(ctx context.Context, accountID string) error
}

// ResultStatus は検証試行の終端状態を表す。
type ResultStatus string

const (
	// StatusVerified は保有確認・ロール付与・Binding永続化の完了を示す。
	StatusVerified ResultStatus = "verified"
	// StatusNotHolder は全候補ウォレットの残高合計が0だったことを示す。正常な終端状態。
	StatusNotHolder ResultStatus = "not_holder"
)

// Result は検証試行の結果を表す。
type Result struct {
	Status        ResultStatus
	DisplayName   string
	PrimaryWallet string
	Balance       int64
	TrustScore    int // Profileなしの場合は0。表示専用
	HasProfile    bool
}

// ServiceConfig は検証サービスの設定。
type ServiceConfig struct {
	SessionTTL  time.Duration // PendingSessionの有効期間
	CallTimeout time.Duration // 外部コラボレータ呼び出しの個別タイムアウト
}

// Service は検証フロー全体とBinding登録の一意性制約を担う。
type Service struct {
	oauth       OAuthProvider
	roles       RoleManager
	resolver    *Resolver
	aggregator  *Aggregator
	bindingRepo repository.BindingRepository
	sessionRepo repository.PendingSessionRepository
	metrics     metrics.Recorder
	logger      *slog.Logger
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	roles RoleManager,
	resolver *Resolver,
	aggregator *Aggregator,
	bindingRepo repository.BindingRepository,
	sessionRepo repository.PendingSessionRepository,
	rec metrics.Recorder,
	logger *slog.Logger,
	config ServiceConfig,
) *Service {
	if rec == nil {
		rec = metrics.Noop{}
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = time.Hour
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = 10 * time.Second
	}
	return &Service{
		oauth:       oauth,
		roles:       roles,
		resolver:    resolver,
		aggregator:  aggregator,
		bindingRepo: bindingRepo,
		sessionRepo: sessionRepo,
		metrics:     rec,
		logger:      logger,
		config:      config,
	}
}

// Start は検証フローを開始する。
// ウォレットを検証してPendingSessionを永続化し、OAuth認可URLを返す。
// セッションIDはOAuthのstateパラメータを兼ねる。
func (s *Service) Start(ctx context.Context, wallet string, fid model.FID) (string, error) {
	if !common.IsHexAddress(wallet) {
		return "", model.NewInvalidWalletError(wallet)
	}

	sessionID, err := generateSessionID()
	if err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}

	session := &model.PendingSession{
		ID:        sessionID,
		FID:       fid,
		Wallet:    NormalizeWallet(wallet),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return "", fmt.Errorf("failed to save pending session: %w", err)
	}

	s.logger.Info("verification started",
		slog.String("wallet", session.Wallet),
		slog.String("fid", fid.String()),
	)

	return s.oauth.GetLoginURL(sessionID), nil
}

// Complete はOAuthコールバックから検証フローを完了させる。
// stateでPendingSessionを消費し、コード交換・候補解決・残高集約・Binding登録を行う。
// 保有なしはエラーではなくStatusNotHolderの結果として返す。
func (s *Service) Complete(ctx context.Context, state, code string) (*Result, error) {
	attemptID := uuid.New().String()

	// 1. セッションを消費（read-then-delete、同一stateの再利用は不可）
	session, err := s.sessionRepo.Consume(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("failed to consume pending session: %w", err)
	}
	if session == nil || session.Expired(s.config.SessionTTL, time.Now()) {
		s.metrics.RecordVerification(metrics.OutcomeFailed)
		return nil, model.NewSessionExpiredError()
	}

	// 2. 認可コードをDiscordユーザーに解決（失敗は試行全体の失敗）
	oauthCtx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
	user, err := s.oauth.ExchangeCode(oauthCtx, code)
	cancel()
	if err != nil {
		s.metrics.RecordVerification(metrics.OutcomeFailed)
		s.logger.Error("OAuthコード交換に失敗しました",
			slog.String("attempt_id", attemptID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewOAuthFailedError()
	}

	// 3. 候補ウォレット解決と残高集約
	resolution := s.resolver.Resolve(ctx, session.Wallet, session.FID)
	holdings := s.aggregator.Aggregate(ctx, resolution.Wallets)

	score := 0
	if resolution.Profile != nil {
		score = TrustScore(*resolution.Profile)
	}

	s.logger.Info("holdings aggregated",
		slog.String("attempt_id", attemptID),
		slog.String("account_id", user.AccountID),
		slog.Int("candidate_wallets", len(resolution.Wallets)),
		slog.Int64("total_balance", holdings.Total),
		slog.String("primary_wallet", holdings.PrimaryWallet),
		slog.Int("trust_score", score),
	)

	// 4. 保有なしは正常な終端状態
	if !holdings.IsHolder() {
		s.metrics.RecordVerification(metrics.OutcomeNotHolder)
		return &Result{
			Status:      StatusNotHolder,
			DisplayName: user.DisplayName,
			TrustScore:  score,
			HasProfile:  resolution.Profile != nil,
		}, nil
	}

	// 5. 一意性チェックとBinding登録
	if err := s.tryBind(ctx, user, session.FID, holdings); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Category == "conflict" {
			s.metrics.RecordVerification(metrics.OutcomeConflict)
		} else {
			s.metrics.RecordVerification(metrics.OutcomeFailed)
		}
		return nil, err
	}

	s.metrics.RecordVerification(metrics.OutcomeVerified)
	return &Result{
		Status:        StatusVerified,
		DisplayName:   user.DisplayName,
		PrimaryWallet: holdings.PrimaryWallet,
		Balance:       holdings.Total,
		TrustScore:    score,
		HasProfile:    resolution.Profile != nil,
	}, nil
}

// tryBind は一意性制約を確認したうえでロールを付与し、Bindingを永続化する。
//
//  1. Farcaster IDが他のDiscordアカウントに紐付いていれば競合
//  2. プライマリウォレットが他のDiscordアカウントに紐付いていれば競合
//  3. ロール付与（失敗時は何も永続化しない）
//  4. BindingをUPSERT（同一アカウントの再検証は全フィールド上書き）
//
// 事前チェックをすり抜けた同時実行はDBの一意性制約（ErrConflict）で検出する。
func (s *Service) tryBind(ctx context.Context, user *OAuthUser, fid model.FID, holdings Holdings) error {
	if fid.Valid {
		existing, err := s.bindingRepo.FindByFID(ctx, fid.Value)
		if err != nil {
			return fmt.Errorf("failed to check fid uniqueness: %w", err)
		}
		if existing != nil && existing.DiscordID != user.AccountID {
			return model.NewSocialAlreadyLinkedError(existing.DisplayName)
		}
	}

	existing, err := s.bindingRepo.FindByWallet(ctx, holdings.PrimaryWallet)
	if err != nil {
		return fmt.Errorf("failed to check wallet uniqueness: %w", err)
	}
	if existing != nil && existing.DiscordID != user.AccountID {
		return model.NewWalletAlreadyLinkedError(existing.DisplayName)
	}

	// ロール付与はBinding永続化の前提条件。失敗したら状態を変えずに試行を失敗させる
	grantCtx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
	err = s.roles.Grant(grantCtx, user.AccountID)
	cancel()
	if err != nil {
		s.logger.Error("ロール付与に失敗しました",
			slog.String("account_id", user.AccountID),
			slog.String("error", err.Error()),
		)
		return model.NewRoleGrantFailedError()
	}
	s.metrics.RecordRoleGrant()

	now := time.Now()
	binding := &model.Binding{
		DiscordID:     user.AccountID,
		FID:           fid,
		PrimaryWallet: holdings.PrimaryWallet,
		Balance:       holdings.Total,
		DisplayName:   user.DisplayName,
		CreatedAt:     now,
		LastCheckedAt: now,
	}

	if err := s.bindingRepo.Upsert(ctx, binding); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// 事前チェック後に割り込んだ同時検証。DB制約で検出された競合
			return s.conflictFromUpsert(ctx, err, fid, holdings.PrimaryWallet)
		}
		return fmt.Errorf("failed to persist binding: %w", err)
	}

	s.logger.Info("binding created",
		slog.String("account_id", user.AccountID),
		slog.String("fid", fid.String()),
		slog.String("primary_wallet", holdings.PrimaryWallet),
		slog.Int64("balance", holdings.Total),
	)

	return nil
}

// conflictFromUpsert はDB制約で検出された競合を、違反した制約に応じた
// ユーザー向けエラーに変換する。勝った側のBindingを引き直して表示名を含める。
// 引き直しに失敗した場合は表示名なしで競合を報告する。
func (s *Service) conflictFromUpsert(ctx context.Context, upsertErr error, fid model.FID, primaryWallet string) error {
	const fallbackName = "別のアカウント"

	if errors.Is(upsertErr, repository.ErrFIDConflict) && fid.Valid {
		name := fallbackName
		if existing, err := s.bindingRepo.FindByFID(ctx, fid.Value); err == nil && existing != nil {
			name = existing.DisplayName
		}
		return model.NewSocialAlreadyLinkedError(name)
	}

	name := fallbackName
	if existing, err := s.bindingRepo.FindByWallet(ctx, primaryWallet); err == nil && existing != nil {
		name = existing.DisplayName
	}
	return model.NewWalletAlreadyLinkedError(name)
}

// Status は指定DiscordアカウントIDの現在のBindingを返す。見つからない場合はnilを返す。
func (s *Service) Status(ctx context.Context, accountID string) (*model.Binding, error) {
	return s.bindingRepo.FindByDiscordID(ctx, accountID)
}

// BindingCount はBindingの総数を返す。
func (s *Service) BindingCount(ctx context.Context) (int, error) {
	return s.bindingRepo.Count(ctx)
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
