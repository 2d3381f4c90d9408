package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	scriptStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scriptmgr",
			Subsystem: "script",
			Name:      "starts_total",
			Help:      "Number of successful script starts.",
		}, []string{"id"},
	)
	scriptStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scriptmgr",
			Subsystem: "script",
			Name:      "stops_total",
			Help:      "Number of manual script stops.",
		}, []string{"id"},
	)
	scriptCrashes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scriptmgr",
			Subsystem: "script",
			Name:      "crashes_total",
			Help:      "Number of unexpected script exits.",
		}, []string{"id"},
	)
	scriptRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scriptmgr",
			Subsystem: "script",
			Name:      "restarts_total",
			Help:      "Number of automatic restarts.",
		}, []string{"id"},
	)
	runningScripts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scriptmgr",
			Subsystem: "script",
			Name:      "running",
			Help:      "Current number of running scripts.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	collectors := []prometheus.Collector{
		scriptStarts, scriptStops, scriptCrashes, scriptRestarts, runningScripts,
	}
	for _, c := range collectors {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// RegisterDefault registers against the default prometheus registry.
func RegisterDefault() error { return Register(prometheus.DefaultRegisterer) }

// Handler exposes the default registry for scraping.
func Handler() http.Handler { return promhttp.Handler() }

func IncStart(id string)   { scriptStarts.WithLabelValues(id).Inc() }
func IncStop(id string)    { scriptStops.WithLabelValues(id).Inc() }
func IncCrash(id string)   { scriptCrashes.WithLabelValues(id).Inc() }
func IncRestart(id string) { scriptRestarts.WithLabelValues(id).Inc() }

func SetRunning(n int) { runningScripts.Set(float64(n)) }

// Forget drops per-script series when a script is removed.
func Forget(id string) {
	scriptStarts.DeleteLabelValues(id)
	scriptStops.DeleteLabelValues(id)
	scriptCrashes.DeleteLabelValues(id)
	scriptRestarts.DeleteLabelValues(id)
}
