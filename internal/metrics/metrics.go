package metrics

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/todoflow-labs/web-client/internal/cache"
	"github.com/todoflow-labs/web-client/internal/logging"
	"github.com/todoflow-labs/web-client/internal/todoapi"
)

type Metrics struct {
	registry  *prometheus.Registry
	Mutations *prometheus.CounterVec
	Fetches   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todo_client_mutations_total",
			Help: "Todo mutations sent to the backend, by operation and result.",
		}, []string{"op", "result"}),
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todo_client_query_fetches_total",
			Help: "Query fetches completed by the cache store, by query and result.",
		}, []string{"query", "result"}),
	}
	m.registry.MustRegister(m.Mutations, m.Fetches)
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveMutation counts a finished mutation.
func (m *Metrics) ObserveMutation(_ context.Context, mu todoapi.Mutation) {
	m.Mutations.WithLabelValues(string(mu.Op), result(mu.Err)).Inc()
}

// ObserveQuery counts completed fetches; wire it with cache.Store.OnChange.
func (m *Metrics) ObserveQuery(ch cache.Change) {
	if !ch.Settled {
		return
	}
	m.Fetches.WithLabelValues(queryLabel(ch.Key), result(ch.Snapshot.Err)).Inc()
}

// queryLabel keeps label cardinality bounded: per-item keys collapse.
func queryLabel(key string) string {
	name, _, _ := strings.Cut(key, "/")
	return name
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr in the background. The caller owns the
// returned server and shuts it down.
func (m *Metrics) Serve(addr string, logger *logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return srv
}
