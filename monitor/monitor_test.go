package monitor

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/ludoserver/board"
	"github.com/wfunc/ludoserver/models"
)

func TestMonitor_Gauges(t *testing.T) {
	m := NewMonitor("ludo", prometheus.NewRegistry())

	m.SetOnlinePlayers(7)
	m.SetActiveRooms(3)
	m.SetActiveRooms(2)

	assert.Equal(t, 7.0, testutil.ToFloat64(m.metrics.OnlinePlayers))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.metrics.ActiveRooms))
}

func TestMonitor_ObserveAction(t *testing.T) {
	m := NewMonitor("ludo", prometheus.NewRegistry())

	m.ObserveAction("game:roll", time.Millisecond, nil)
	m.ObserveAction("game:roll", time.Millisecond, nil)
	m.ObserveAction("game:roll", time.Millisecond, fmt.Errorf("wrap: %w", models.ErrInvalidMove))
	m.ObserveAction("game:move", time.Millisecond, models.ErrUnauthorized)
	m.ObserveAction("game:move", time.Millisecond, errors.New("save failed"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.metrics.ActionsTotal.WithLabelValues("game:roll", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.ActionsTotal.WithLabelValues("game:roll", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.ActionsTotal.WithLabelValues("game:move", "unauthorized")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.ActionsTotal.WithLabelValues("game:move", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.metrics.ActionLatency))
	assert.EqualValues(t, 5, m.actions.Load())
}

func TestMonitor_GameFinished(t *testing.T) {
	m := NewMonitor("ludo", prometheus.NewRegistry())

	m.GameFinished(models.ColorOutcome(board.Red))
	m.GameFinished(models.ColorOutcome(board.Yellow))
	m.GameFinished(models.OutcomeDraw)
	m.GameFinished(models.OutcomeQuit)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.metrics.GamesFinished.WithLabelValues("win")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.GamesFinished.WithLabelValues("draw")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.GamesFinished.WithLabelValues("quit")))
}

func TestMonitor_Handler(t *testing.T) {
	m := NewMonitor("ludo", prometheus.NewRegistry())
	m.SetActiveRooms(4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "ludo_active_rooms 4"), string(body))
}
