// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/wfunc/ludoserver/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现. Rooms live in models.GormRoom; the
// same connection also backs the game record service.
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(dsn string) (*GormPostgreSQL, error) {
	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold: time.Second,   // 慢SQL阈值
			LogLevel:      logger.Silent, // 日志级别
			Colorful:      false,         // 禁用彩色打印
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	// 获取通用数据库对象 sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return NewGormStore(db)
}

// NewGormStore wraps an open gorm connection and migrates the tables.
func NewGormStore(db *gorm.DB) (*GormPostgreSQL, error) {
	// 自动迁移表结构
	if err := autoMigrate(db); err != nil {
		return nil, err
	}
	return &GormPostgreSQL{db: db}, nil
}

// autoMigrate 自动迁移表结构
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GormRoom{},
		&models.GormGameRecord{},
		&models.GormPlayerStats{},
	)
}

// DB exposes the connection for services sharing it.
func (p *GormPostgreSQL) DB() *gorm.DB {
	return p.db
}

func toGormRoom(room *models.Room) models.GormRoom {
	return models.GormRoom{
		RoomID:      room.ID,
		Name:        room.Name,
		Started:     room.Started,
		PlayerCount: len(room.Players),
		Winner:      string(room.Winner),
		Version:     room.Version,
		Document:    *room,
		CreatedAt:   room.CreatedAt,
		UpdatedAt:   room.UpdatedAt,
	}
}

func (p *GormPostgreSQL) Create(ctx context.Context, room *models.Room) error {
	room.Version = 1
	row := toGormRoom(room)
	result := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "room_id"}}, DoNothing: true}).
		Create(&row)
	if err := result.Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateRoom
		}
		return err
	}
	if result.RowsAffected == 0 {
		return ErrDuplicateRoom
	}
	return nil
}

func (p *GormPostgreSQL) Load(ctx context.Context, roomID string) (*models.Room, error) {
	var row models.GormRoom
	if err := p.db.WithContext(ctx).Where("room_id = ?", roomID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	room := row.Document
	room.Version = row.Version
	return &room, nil
}

// Save 更新房间, guarded by the version column.
func (p *GormPostgreSQL) Save(ctx context.Context, room *models.Room) error {
	next := room.Clone()
	next.Version = room.Version + 1
	row := toGormRoom(next)

	result := p.db.WithContext(ctx).
		Model(&models.GormRoom{}).
		Where("room_id = ? AND version = ?", room.ID, room.Version).
		Select("name", "started", "player_count", "winner", "version", "document", "updated_at").
		Updates(&row)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := p.db.WithContext(ctx).Model(&models.GormRoom{}).Where("room_id = ?", room.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrRecordNotFound
		}
		return ErrVersionConflict
	}
	room.Version = next.Version
	return nil
}

func (p *GormPostgreSQL) Delete(ctx context.Context, roomID string) error {
	result := p.db.WithContext(ctx).Where("room_id = ?", roomID).Delete(&models.GormRoom{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (p *GormPostgreSQL) List(ctx context.Context) ([]models.RoomSummary, error) {
	var rows []models.GormRoom
	if err := p.db.WithContext(ctx).Order("created_at, room_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	list := make([]models.RoomSummary, 0, len(rows))
	for _, row := range rows {
		list = append(list, row.Document.Summary())
	}
	return list, nil
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
