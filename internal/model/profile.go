package model

// SocialProfile はソーシャルグラフ（Farcaster）のプロフィールシグナルを表す。
// 信頼スコアの入力にのみ使用し、永続化はしない。
type SocialProfile struct {
	FollowerCount  int
	FollowingCount int
	VerifiedAddrs  int
	PowerBadge     bool
	HasAvatar      bool
	HasDisplayName bool
}

// SocialUser はソーシャルグラフ照会の結果を表す。
// Walletsは検証済みアドレス（取得順・未正規化）。
type SocialUser struct {
	Wallets []string
	Profile SocialProfile
}
