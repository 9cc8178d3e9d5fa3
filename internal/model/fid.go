package model

import "strconv"

// FID はFarcaster IDのタグ付きオプショナルを表す。
// ゼロ値（Valid=false）は「Farcaster未連携」を意味する。
// 番兵値0を生のint64で引き回すことによる取り違えを防ぐ。
type FID struct {
	Value int64
	Valid bool
}

// NewFID は正のidから有効なFIDを生成する。0以下は未連携として扱う。
func NewFID(id int64) FID {
	if id <= 0 {
		return FID{}
	}
	return FID{Value: id, Valid: true}
}

// ParseFID は文字列からFIDを生成する。
// 空文字列は未連携として扱う。パース不能・0以下の値はエラーを返す。
func ParseFID(s string) (FID, error) {
	if s == "" {
		return FID{}, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return FID{}, ErrInvalidFID
	}
	return FID{Value: id, Valid: true}, nil
}

// String はログ・表示用の文字列を返す。未連携の場合は"-"。
func (f FID) String() string {
	if !f.Valid {
		return "-"
	}
	return strconv.FormatInt(f.Value, 10)
}
