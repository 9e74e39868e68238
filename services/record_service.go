// services/record_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wfunc/ludoserver/logger"
	"github.com/wfunc/ludoserver/models"
	"gorm.io/gorm"
)

// RecordService 保存对局记录并维护玩家统计
type RecordService struct {
	db *gorm.DB
}

func NewRecordService(db *gorm.DB) *RecordService {
	return &RecordService{db: db}
}

// RecordGame stores a finished game and updates the stats of everyone who
// played it in one transaction.
func (s *RecordService) RecordGame(ctx context.Context, record models.GameRecord) error {
	// 使用事务确保数据一致性
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := toGormRecord(record)
		if err := tx.Create(&row).Error; err != nil {
			return err
		}

		for _, res := range record.Players {
			var stats models.GormPlayerStats
			err := tx.Where("player_id = ?", res.PlayerID).First(&stats).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				stats = models.GormPlayerStats{PlayerID: res.PlayerID}
			case err != nil:
				return err
			}
			applyResult(&stats, res)
			if err := tx.Save(&stats).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record game %s: %w", record.RoomID, err)
	}
	logger.Log.Infow("game recorded", "room_id", record.RoomID, "outcome", record.Outcome)
	return nil
}

// GetPlayerStats 获取玩家统计
func (s *RecordService) GetPlayerStats(ctx context.Context, playerID string) (*models.PlayerStats, error) {
	var stats models.GormPlayerStats
	err := s.db.WithContext(ctx).Where("player_id = ?", playerID).First(&stats).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrPlayerNotFound
	}
	if err != nil {
		return nil, err
	}
	out := toPlayerStats(stats)
	return &out, nil
}

// RecentGames returns the latest finished games of a room, newest first.
func (s *RecordService) RecentGames(ctx context.Context, roomID string, limit int) ([]models.GameRecord, error) {
	var rows []models.GormGameRecord
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.GameRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromGormRecord(r))
	}
	return out, nil
}

func toGormRecord(r models.GameRecord) models.GormGameRecord {
	row := models.GormGameRecord{
		RoomID:  r.RoomID,
		Outcome: string(r.Outcome),
		Players: r.Players,
	}
	if !r.StartedAt.IsZero() && r.FinishedAt.After(r.StartedAt) {
		row.Duration = int(r.FinishedAt.Sub(r.StartedAt).Seconds())
	}
	row.CreatedAt = r.FinishedAt
	return row
}

func fromGormRecord(row models.GormGameRecord) models.GameRecord {
	return models.GameRecord{
		RoomID:     row.RoomID,
		Outcome:    models.Outcome(row.Outcome),
		Players:    row.Players,
		StartedAt:  row.CreatedAt.Add(-time.Duration(row.Duration) * time.Second),
		FinishedAt: row.CreatedAt,
	}
}

// applyResult adds one game to a player's stats. Quits only count as played.
func applyResult(stats *models.GormPlayerStats, res models.PlayerResult) {
	stats.Name = res.Name
	stats.TotalGames++
	switch res.Outcome {
	case "win":
		stats.Wins++
	case "lose":
		stats.Losses++
	case "draw":
		stats.Draws++
	}
	if res.Score > stats.BestScore {
		stats.BestScore = res.Score
	}
}

func toPlayerStats(s models.GormPlayerStats) models.PlayerStats {
	return models.PlayerStats{
		PlayerID:   s.PlayerID,
		Name:       s.Name,
		TotalGames: s.TotalGames,
		Wins:       s.Wins,
		Losses:     s.Losses,
		Draws:      s.Draws,
		BestScore:  s.BestScore,
	}
}
