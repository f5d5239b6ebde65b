package models

import (
	"time"

	"gorm.io/gorm"
)

// Room states in the audit trail.
const (
	RoomOpen    = "open"
	RoomPlaying = "playing"
	RoomClosed  = "closed"
)

// RoomRecord は部屋ひとつ分のライフサイクル履歴
type RoomRecord struct {
	gorm.Model
	Name       string `gorm:"index;not null"`
	HostAddr   string `gorm:"not null"`
	ClientAddr string // 最後に参加したクライアント
	State      string `gorm:"index;not null"`
	Joins      int    `gorm:"not null;default:0"`
	OpenedAt   time.Time
	JoinedAt   *time.Time
	ClosedAt   *time.Time
}
