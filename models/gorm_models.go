// models/gorm_models.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// GormRoom 房间模型. The full room lives in Document; the other columns are
// copies used for listing and filtering.
type GormRoom struct {
	ID          uint   `gorm:"primaryKey"`
	RoomID      string `gorm:"uniqueIndex;not null"`
	Name        string
	Started     bool `gorm:"index"`
	PlayerCount int
	Winner      string
	Version     int64 `gorm:"not null;default:0"`
	Document    Room  `gorm:"serializer:json;type:jsonb;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (GormRoom) TableName() string { return "rooms" }

// GormGameRecord 游戏记录模型
type GormGameRecord struct {
	gorm.Model
	RoomID   string         `gorm:"index;not null"`
	Outcome  string         `gorm:"not null"`
	Players  []PlayerResult `gorm:"serializer:json;type:jsonb;not null"`
	Duration int            `gorm:"default:0"` // 游戏时长(秒)
}

func (GormGameRecord) TableName() string { return "game_records" }

// GormPlayerStats 玩家统计信息
type GormPlayerStats struct {
	gorm.Model
	PlayerID   string `gorm:"uniqueIndex;not null"`
	Name       string
	TotalGames int `gorm:"default:0"`
	Wins       int `gorm:"default:0"`
	Losses     int `gorm:"default:0"`
	Draws      int `gorm:"default:0"`
	BestScore  int `gorm:"default:0"`
}

func (GormPlayerStats) TableName() string { return "player_stats" }

// PlayerStats is the read model of GormPlayerStats.
type PlayerStats struct {
	PlayerID   string `json:"player_id"`
	Name       string `json:"name"`
	TotalGames int    `json:"total_games"`
	Wins       int    `json:"wins"`
	Losses     int    `json:"losses"`
	Draws      int    `json:"draws"`
	BestScore  int    `json:"best_score"`
}
