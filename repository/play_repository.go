package repository

import (
	"context"
	"time"

	"wadio/model"

	"gorm.io/gorm"
)

// PlayRepository 播放日志数据访问接口
type PlayRepository interface {
	Create(ctx context.Context, play *model.Play) error
	Finish(ctx context.Context, id int64, endedAt time.Time, bytes int64) error
	Recent(ctx context.Context, limit int) ([]*model.Play, error)
	CountByArtist(ctx context.Context, limit int) ([]ArtistCount, error)
}

// ArtistCount is one row of the most played artists report.
type ArtistCount struct {
	Artist string
	Plays  int64
}

// gormPlayRepository GORM 实现
type gormPlayRepository struct {
	db *gorm.DB
}

// NewGormPlayRepository 创建 GORM 播放日志仓库
func NewGormPlayRepository(db *gorm.DB) PlayRepository {
	return &gormPlayRepository{db: db}
}

// Create 记录开始播放
func (r *gormPlayRepository) Create(ctx context.Context, play *model.Play) error {
	return r.db.WithContext(ctx).Create(play).Error
}

// Finish 记录播放结束
func (r *gormPlayRepository) Finish(ctx context.Context, id int64, endedAt time.Time, bytes int64) error {
	return r.db.WithContext(ctx).Model(&model.Play{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"ended_at": endedAt,
			"bytes":    bytes,
		}).Error
}

// Recent 获取最近的播放记录，最新的在前
func (r *gormPlayRepository) Recent(ctx context.Context, limit int) ([]*model.Play, error) {
	var plays []*model.Play
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&plays).Error
	return plays, err
}

// CountByArtist returns the artists with the most plays.
func (r *gormPlayRepository) CountByArtist(ctx context.Context, limit int) ([]ArtistCount, error) {
	var rows []ArtistCount
	err := r.db.WithContext(ctx).Model(&model.Play{}).
		Select("artist, COUNT(*) AS plays").
		Group("artist").
		Order("plays DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}
