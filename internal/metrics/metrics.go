// Package metrics exposes deployment metrics in Prometheus format.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/primev/preconf-deployer/internal/deploy"
)

const namespace = "preconf_deployer"

// Result label values.
const (
	ResultConfirmed = "confirmed"
	ResultFailed    = "failed"
	ResultSkipped   = "skipped"
	ResultSuccess   = "success"
	ResultFailure   = "failure"
)

// Metrics records deployment progress on its own registry, so one run can be
// written out as a node_exporter textfile.
type Metrics struct {
	registry *prometheus.Registry

	submissionsTotal    *prometheus.CounterVec
	deploymentsTotal    *prometheus.CounterVec
	confirmationSeconds *prometheus.HistogramVec
	runsTotal           *prometheus.CounterVec
	lastRunTimestamp    prometheus.Gauge
}

// New creates the deployment metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		submissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submissions_total",
				Help:      "Creation transactions sent, by contract",
			},
			[]string{"contract"},
		),

		deploymentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deployments_total",
				Help:      "Contract deployment outcomes",
			},
			[]string{"contract", "result"},
		),

		confirmationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "confirmation_seconds",
				Help:      "Time from submission to confirmed receipt",
				Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
			},
			[]string{"contract"},
		),

		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Deployment runs by result",
			},
			[]string{"result"},
		),

		lastRunTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last run finished",
			},
		),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Submitted implements deploy.Recorder.
func (m *Metrics) Submitted(_ context.Context, contract string, _ common.Hash) {
	m.submissionsTotal.WithLabelValues(contract).Inc()
}

// Confirmed implements deploy.Recorder.
func (m *Metrics) Confirmed(_ context.Context, contract string, _ common.Address, elapsed time.Duration) {
	m.deploymentsTotal.WithLabelValues(contract, ResultConfirmed).Inc()
	m.confirmationSeconds.WithLabelValues(contract).Observe(elapsed.Seconds())
}

// Failed implements deploy.Recorder.
func (m *Metrics) Failed(_ context.Context, contract string, err *deploy.DeploymentError) {
	result := ResultFailed
	if err.Kind == deploy.KindDependency {
		result = ResultSkipped
	}
	m.deploymentsTotal.WithLabelValues(contract, result).Inc()
}

// RunFinished counts a completed run.
func (m *Metrics) RunFinished(err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.runsTotal.WithLabelValues(result).Inc()
	m.lastRunTimestamp.SetToCurrentTime()
}

// WriteTextfile writes the registry for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

var _ deploy.Recorder = (*Metrics)(nil)
