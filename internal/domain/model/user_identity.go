package model

import "time"

// 認証基盤のsubject（文字列）と、在庫・配送APIが要求する数値IDの対応表。
// subjectをパース・ハッシュして数値化しない。
type UserIdentity struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Subject   string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"subject"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}
