// Package metrics exposes the bot's Prometheus metrics and a small HTTP server for them.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ta-trading-bot/internal/logger"
	"ta-trading-bot/internal/types"
)

type Metrics struct {
	Registry *prometheus.Registry

	CyclesTotal   *prometheus.CounterVec // labels: result=ok|error|no_balance
	StageErrors   *prometheus.CounterVec // labels: stage
	Decisions     *prometheus.CounterVec // labels: action
	OrdersTotal   *prometheus.CounterVec // labels: side
	CycleDuration prometheus.Histogram
	LastPrice     prometheus.Gauge
	Balance       *prometheus.GaugeVec // labels: asset
	CostBasis     prometheus.Gauge     // 0 when unknown

	mu        sync.RWMutex
	lastCycle time.Time
	lastError string
}

// New registers all metrics on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabot_cycles_total",
			Help: "Decision cycles run, by result",
		}, []string{"result"}),
		StageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabot_stage_errors_total",
			Help: "Failed cycles by the stage that failed",
		}, []string{"stage"}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabot_decisions_total",
			Help: "Final cycle decisions by action",
		}, []string{"action"}),
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabot_orders_filled_total",
			Help: "Filled orders by side",
		}, []string{"side"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tabot_cycle_duration_seconds",
			Help:    "Wall time of one decision cycle",
			Buckets: prometheus.DefBuckets,
		}),
		LastPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tabot_last_price",
			Help: "Latest close seen by the engine",
		}),
		Balance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tabot_balance",
			Help: "Available balance per asset after the cycle",
		}, []string{"asset"}),
		CostBasis: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tabot_cost_basis",
			Help: "Cost basis of the held position, 0 when unknown",
		}),
	}

	m.Registry.MustRegister(
		m.CyclesTotal,
		m.StageErrors,
		m.Decisions,
		m.OrdersTotal,
		m.CycleDuration,
		m.LastPrice,
		m.Balance,
		m.CostBasis,
	)
	return m
}

// ObserveResult records a successful cycle.
func (m *Metrics) ObserveResult(res *types.StepResult, took time.Duration) {
	result := "ok"
	if res.Reason == types.ReasonNoBalance {
		result = "no_balance"
	}
	m.CyclesTotal.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(took.Seconds())
	m.Decisions.WithLabelValues(string(res.Decision.Action)).Inc()
	for _, o := range res.Orders {
		if o.FilledQty > 0 {
			m.OrdersTotal.WithLabelValues(string(res.Decision.Action)).Inc()
		}
	}
	if res.Price > 0 {
		m.LastPrice.Set(res.Price)
	}
	for asset, v := range res.Balances {
		m.Balance.WithLabelValues(asset).Set(v)
	}
	if res.CostBasis != nil {
		m.CostBasis.Set(*res.CostBasis)
	} else {
		m.CostBasis.Set(0)
	}

	m.mu.Lock()
	m.lastCycle = time.Now()
	m.lastError = ""
	m.mu.Unlock()
}

// ObserveError records a failed cycle.
func (m *Metrics) ObserveError(stage string, err error, took time.Duration) {
	m.CyclesTotal.WithLabelValues("error").Inc()
	m.StageErrors.WithLabelValues(stage).Inc()
	m.CycleDuration.Observe(took.Seconds())

	m.mu.Lock()
	m.lastCycle = time.Now()
	m.lastError = err.Error()
	m.mu.Unlock()
}

type health struct {
	LastCycle time.Time `json:"last_cycle"`
	LastError string    `json:"last_error,omitempty"`
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	h := health{LastCycle: m.lastCycle, LastError: m.lastError}
	m.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if h.LastError != "" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(h)
}

// Server serves /metrics and /healthz.
type Server struct {
	srv *http.Server
}

func NewServer(addr string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", m)
	return &Server{srv: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}}
}

func (s *Server) Start(ctx context.Context) {
	go func() {
		logger.Info(ctx, "Metrics server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorWithErr(ctx, "Metrics server stopped", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) {
	if err := s.srv.Shutdown(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Metrics server shutdown", err)
	}
}
