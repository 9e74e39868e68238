// monitor/monitor.go
package monitor

import (
	"errors"
	"expvar"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wfunc/ludoserver/models"
	"github.com/wfunc/ludoserver/state"
)

type Metrics struct {
	OnlinePlayers prometheus.Gauge
	ActiveRooms   prometheus.Gauge
	ActionsTotal  *prometheus.CounterVec
	ActionLatency *prometheus.HistogramVec
	GamesFinished *prometheus.CounterVec
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OnlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Number of open websocket connections",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of running room actors",
		}),
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Room actions handled, by action and result",
		}, []string{"action", "result"}),
		ActionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_latency_seconds",
			Help:      "Room action processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}, []string{"action"}),
		GamesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_finished_total",
			Help:      "Finished games by outcome kind",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.OnlinePlayers,
		m.ActiveRooms,
		m.ActionsTotal,
		m.ActionLatency,
		m.GamesFinished,
	)

	return m
}

// Monitor implements room.Metrics and server.ConnectionObserver.
type Monitor struct {
	metrics   *Metrics
	gatherer  prometheus.Gatherer
	startTime time.Time
	actions   atomic.Int64
	once      sync.Once
}

// NewMonitor registers its metrics on reg and serves everything reg gathers.
func NewMonitor(namespace string, reg *prometheus.Registry) *Monitor {
	return &Monitor{
		metrics:   NewMetrics(namespace, reg),
		gatherer:  reg,
		startTime: time.Now(),
	}
}

// Handler serves the metrics in the prometheus text format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// PublishExpvar adds uptime and action counters to /debug/vars. expvar names
// are process global, so only the first call publishes.
func (m *Monitor) PublishExpvar() {
	m.once.Do(func() {
		// 添加expvar指标
		expvar.Publish("uptime", expvar.Func(func() interface{} {
			return time.Since(m.startTime).Seconds()
		}))
		expvar.Publish("actions", expvar.Func(func() interface{} {
			return m.actions.Load()
		}))
	})
}

func (m *Monitor) SetOnlinePlayers(count int) {
	m.metrics.OnlinePlayers.Set(float64(count))
}

func (m *Monitor) SetActiveRooms(count int) {
	m.metrics.ActiveRooms.Set(float64(count))
}

func (m *Monitor) ObserveAction(action string, took time.Duration, err error) {
	m.actions.Add(1)
	m.metrics.ActionsTotal.WithLabelValues(action, resultOf(err)).Inc()
	m.metrics.ActionLatency.WithLabelValues(action).Observe(took.Seconds())
}

// GameFinished counts an outcome. Color wins are counted as "win" to keep
// the label set small.
func (m *Monitor) GameFinished(outcome models.Outcome) {
	kind := string(outcome)
	if _, ok := outcome.Color(); ok {
		kind = "win"
	}
	m.metrics.GamesFinished.WithLabelValues(kind).Inc()
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, models.ErrInvalidMove),
		errors.Is(err, models.ErrGamePaused),
		errors.Is(err, models.ErrRoomConcluded),
		errors.Is(err, models.ErrGameStarted),
		errors.Is(err, models.ErrRoomFull),
		errors.Is(err, models.ErrNotInRoom),
		errors.Is(err, state.ErrTransitionNotAllowed):
		return "rejected"
	default:
		return "error"
	}
}
