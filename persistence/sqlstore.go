// persistence/sqlstore.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq" // PostgreSQL 驱动
	"github.com/pressly/goose/v3"
	"github.com/wfunc/ludoserver/models"
	"github.com/wfunc/ludoserver/persistence/migrations"
	_ "modernc.org/sqlite"
)

// Supported database/sql drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// goose keeps its dialect and filesystem in package globals.
var migrateMu sync.Mutex

// SQLStore stores room documents through database/sql, on PostgreSQL (lib/pq)
// or SQLite (modernc). Queries are written with ? placeholders and rebound for
// PostgreSQL.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(dsn string) (*SQLStore, error) {
	db, err := sql.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, err
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return openSQL(db, DriverPostgres)
}

// NewSQLite opens the SQLite database at path. ":memory:" gives a private
// in-memory database.
func NewSQLite(path string) (*SQLStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one connection, so an in-memory database is shared by every query
	db.SetMaxOpenConns(1)

	return openSQL(db, DriverSQLite)
}

func openSQL(db *sql.DB, driver string) (*SQLStore, error) {
	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrate(db, driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLStore{db: db, driver: driver}, nil
}

// migrate 初始化数据库表结构
func migrate(db *sql.DB, driver string) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	dialect := "postgres"
	if driver == DriverSQLite {
		dialect = "sqlite3"
	}

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	return goose.Up(db, ".")
}

// rebind turns ? placeholders into $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func (s *SQLStore) Create(ctx context.Context, room *models.Room) error {
	room.Version = 1
	doc, err := json.Marshal(room)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO rooms (id, name, started, player_count, winner, version, document, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`),
		room.ID, room.Name, room.Started, len(room.Players), string(room.Winner), room.Version,
		string(doc), toMillis(room.CreatedAt), toMillis(room.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicateRoom
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context, roomID string) (*models.Room, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT document FROM rooms WHERE id = ?`), roomID).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("load room: %w", err)
	}

	var room models.Room
	if err := json.Unmarshal([]byte(doc), &room); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", roomID, err)
	}
	return &room, nil
}

func (s *SQLStore) Save(ctx context.Context, room *models.Room) error {
	next := room.Clone()
	next.Version = room.Version + 1
	doc, err := json.Marshal(next)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE rooms
		    SET name = ?, started = ?, player_count = ?, winner = ?, version = ?, document = ?, updated_at = ?
		  WHERE id = ? AND version = ?`),
		next.Name, next.Started, len(next.Players), string(next.Winner), next.Version, string(doc),
		toMillis(next.UpdatedAt), room.ID, room.Version,
	)
	if err != nil {
		return fmt.Errorf("save room: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.missOrConflict(ctx, room.ID)
	}
	room.Version = next.Version
	return nil
}

// missOrConflict explains why a guarded write touched no row.
func (s *SQLStore) missOrConflict(ctx context.Context, roomID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM rooms WHERE id = ?`), roomID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRecordNotFound
	}
	if err != nil {
		return err
	}
	return ErrVersionConflict
}

func (s *SQLStore) Delete(ctx context.Context, roomID string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM rooms WHERE id = ?`), roomID)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context) ([]models.RoomSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM rooms ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	list := make([]models.RoomSummary, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var room models.Room
		if err := json.Unmarshal([]byte(doc), &room); err != nil {
			return nil, err
		}
		list = append(list, room.Summary())
	}
	return list, rows.Err()
}

// Close 关闭数据库连接
func (s *SQLStore) Close() error {
	return s.db.Close()
}
