package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddress)
	assert.Equal(t, 4, cfg.Game.MinPlayers)
	assert.Equal(t, 15*time.Second, cfg.Game.MoveTime)
	assert.Equal(t, 30*time.Minute, cfg.Game.GameDuration)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
game:
  min_players: 2
  move_time: 20s
storage:
  driver: sqlite
database:
  postgres:
    host: db.internal
    port: 5433
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("LUDO_GAME_MOVE_TIME", "45s")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Game.MinPlayers)
	assert.Equal(t, 45*time.Second, cfg.Game.MoveTime)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "host=db.internal port=5433 user=postgres password= dbname=ludo sslmode=disable", cfg.Database.Postgres.DSN())
}

func TestValidate(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	cfg.Game.MinPlayers = 5
	assert.Error(t, cfg.Validate())

	cfg.Game.MinPlayers = 2
	cfg.Storage.Driver = "cassandra"
	assert.Error(t, cfg.Validate())
}
