package verify

import "github.com/hitoshi/tokengate/internal/model"

// maxTrustScore は信頼スコアの上限。
const maxTrustScore = 100

// TrustScore はソーシャルプロフィールから[0,100]の信頼スコアを算出する。
// 各シグナルは独立した加点バケットで、しきい値は到達した最上位のみ適用する
// （ティア間で累積しない）。表示専用であり、ロール付与の判定には使用しない。
func TrustScore(p model.SocialProfile) int {
	score := 0

	// フォロワー数: 0/5/10/15/20/25/30
	switch {
	case p.FollowerCount >= 1000:
		score += 30
	case p.FollowerCount >= 500:
		score += 25
	case p.FollowerCount >= 100:
		score += 20
	case p.FollowerCount >= 50:
		score += 15
	case p.FollowerCount >= 10:
		score += 10
	case p.FollowerCount >= 1:
		score += 5
	}

	// フォロー数: 0/5/7/10
	switch {
	case p.FollowingCount >= 100:
		score += 10
	case p.FollowingCount >= 50:
		score += 7
	case p.FollowingCount >= 10:
		score += 5
	}

	// パワーバッジ
	if p.PowerBadge {
		score += 25
	}

	// 検証済みアドレス数: 0/10/15/20
	switch {
	case p.VerifiedAddrs >= 3:
		score += 20
	case p.VerifiedAddrs >= 2:
		score += 15
	case p.VerifiedAddrs >= 1:
		score += 10
	}

	// プロフィールの充実度
	if p.HasAvatar {
		score += 5
	}
	if p.HasDisplayName {
		score += 5
	}

	// フォロワー/フォロー比が[0.5, 10]の範囲（フォロー数が正の場合のみ評価）
	if p.FollowingCount > 0 {
		ratio := float64(p.FollowerCount) / float64(p.FollowingCount)
		if ratio >= 0.5 && ratio <= 10 {
			score += 5
		}
	}

	if score > maxTrustScore {
		score = maxTrustScore
	}
	return score
}
