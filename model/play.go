package model

import "time"

// Play is one entry of the play log: a track that started broadcasting.
type Play struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Path      string     `gorm:"type:varchar(1024);not null" json:"path"`
	Title     string     `gorm:"type:varchar(255)" json:"title"`
	Artist    string     `gorm:"type:varchar(255);index" json:"artist"`
	Album     string     `gorm:"type:varchar(255)" json:"album"`
	Length    uint64     `json:"length"` // milliseconds
	Bytes     int64      `json:"bytes"`  // bytes broadcast, set when the track finishes
	StartedAt time.Time  `gorm:"index" json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

// TableName 指定表名
func (Play) TableName() string {
	return "plays"
}

// NewPlay builds a play log entry for a track that started at startedAt.
func NewPlay(t Track, startedAt time.Time) *Play {
	return &Play{
		Path:      t.Path,
		Title:     t.Title,
		Artist:    t.Artist,
		Album:     t.Album,
		Length:    t.Length,
		StartedAt: startedAt,
	}
}
