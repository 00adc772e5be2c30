// Package metrics exposes Prometheus counters for ledger operations.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "ledger"

// Outcome labels.
const (
	OutcomeSuccess      = "success"
	OutcomeNotFound     = "not_found"
	OutcomeDuplicate    = "duplicate"
	OutcomeInsufficient = "insufficient_funds"
	OutcomeError        = "error"
)

// Recorder counts engine operations and notifications. A nil *Recorder is valid and records nothing.
type Recorder struct {
	operations    *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// NewRecorder registers the ledger counters with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Account operations by kind and outcome.",
		}, []string{"operation", "outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications sent by channel, subject and delivery result.",
		}, []string{"channel", "subject", "result"}),
	}
	reg.MustRegister(r.operations, r.notifications)
	return r
}

// Operation counts one engine operation with its outcome.
func (r *Recorder) Operation(operation, outcome string) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(operation, outcome).Inc()
}

// Notification counts one delivery attempt; a non-nil err is recorded as a failure.
func (r *Recorder) Notification(channel, subject string, err error) {
	if r == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	r.notifications.WithLabelValues(channel, subject, result).Inc()
}
