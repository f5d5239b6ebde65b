package database

import (
	"context"
	"time"

	"fleetserver/models"

	"gorm.io/gorm"
)

// RoomAudit writes room lifecycle rows. It implements broker.RoomStore.
type RoomAudit struct {
	db *gorm.DB
}

func NewRoomAudit(db *gorm.DB) *RoomAudit {
	return &RoomAudit{db: db}
}

// current は指定名の未クローズの部屋
func (a *RoomAudit) current(ctx context.Context, name string) *gorm.DB {
	return a.db.WithContext(ctx).Model(&models.RoomRecord{}).
		Where("name = ? AND state <> ?", name, models.RoomClosed)
}

func (a *RoomAudit) RoomCreated(ctx context.Context, name, hostAddr string, at time.Time) error {
	record := models.RoomRecord{
		Name:     name,
		HostAddr: hostAddr,
		State:    models.RoomOpen,
		OpenedAt: at,
	}
	return a.db.WithContext(ctx).Create(&record).Error
}

func (a *RoomAudit) RoomJoined(ctx context.Context, name, clientAddr string, at time.Time) error {
	return a.current(ctx, name).Updates(map[string]interface{}{
		"client_addr": clientAddr,
		"state":       models.RoomPlaying,
		"joined_at":   at,
		"joins":       gorm.Expr("joins + 1"),
	}).Error
}

// ClientLeft reopens the room for the next client.
func (a *RoomAudit) ClientLeft(ctx context.Context, name string, at time.Time) error {
	return a.current(ctx, name).Update("state", models.RoomOpen).Error
}

func (a *RoomAudit) RoomClosed(ctx context.Context, name string, at time.Time) error {
	return a.current(ctx, name).Updates(map[string]interface{}{
		"state":     models.RoomClosed,
		"closed_at": at,
	}).Error
}

// PurgeClosed hard-deletes closed rooms older than before and returns how
// many rows went.
func (a *RoomAudit) PurgeClosed(ctx context.Context, before time.Time) (int64, error) {
	result := a.db.WithContext(ctx).Unscoped().
		Where("state = ? AND closed_at < ?", models.RoomClosed, before).
		Delete(&models.RoomRecord{})
	return result.RowsAffected, result.Error
}

// Recent returns the newest audit rows, newest first.
func (a *RoomAudit) Recent(ctx context.Context, limit int) ([]models.RoomRecord, error) {
	var records []models.RoomRecord
	err := a.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&records).Error
	return records, err
}
