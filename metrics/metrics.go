// Package metrics instruments SNMP sessions with Prometheus counters.
//
// A *Collector is handed to a session through its options. Every method is
// safe on a nil receiver, so instrumentation stays optional:
//
//	reg := prometheus.NewRegistry()
//	m, err := metrics.New(reg)
//	if err != nil {
//		return err
//	}
//	opts := snmp.DefaultOptions()
//	opts.Metrics = m
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "netsnmp"

// Response outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeInvalid = "invalid"
)

// Option configures a Collector.
type Option func(*options)

type options struct {
	namespace   string
	constLabels prometheus.Labels
}

// WithNamespace overrides DefaultNamespace.
func WithNamespace(namespace string) Option {
	return func(o *options) { o.namespace = namespace }
}

// WithConstLabels attaches fixed labels, for example the agent address.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(o *options) { o.constLabels = labels }
}

// Collector holds the session metrics.
type Collector struct {
	requests   *prometheus.CounterVec
	responses  *prometheus.CounterVec
	retries    prometheus.Counter
	timeouts   prometheus.Counter
	sendErrors prometheus.Counter
	malformed  prometheus.Counter
	late       prometheus.Counter
	cancelled  prometheus.Counter
	inFlight   prometheus.Gauge
	roundTrip  prometheus.Histogram
}

// New creates a Collector and registers it with reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer, opts ...Option) (*Collector, error) {
	o := options{namespace: DefaultNamespace}
	for _, opt := range opts {
		opt(&o)
	}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: o.namespace, Name: name, Help: help, ConstLabels: o.constLabels,
		})
	}

	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   o.namespace,
			Name:        "requests_total",
			Help:        "SNMP requests issued, by PDU type.",
			ConstLabels: o.constLabels,
		}, []string{"pdu_type"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   o.namespace,
			Name:        "responses_total",
			Help:        "Responses matched to a pending request, by outcome.",
			ConstLabels: o.constLabels,
		}, []string{"outcome"}),
		retries:    counter("retries_total", "Requests resent after a timeout."),
		timeouts:   counter("timeouts_total", "Requests that exhausted their retries."),
		sendErrors: counter("send_errors_total", "Requests failed by the transport."),
		malformed:  counter("malformed_total", "Inbound datagrams that could not be decoded."),
		late:       counter("late_responses_total", "Responses for requests no longer pending."),
		cancelled:  counter("cancelled_total", "Requests resolved by cancellation."),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   o.namespace,
			Name:        "requests_in_flight",
			Help:        "Requests waiting for a response.",
			ConstLabels: o.constLabels,
		}),
		roundTrip: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   o.namespace,
			Name:        "round_trip_seconds",
			Help:        "Time from first send to matched response.",
			ConstLabels: o.constLabels,
			Buckets:     []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
	}

	if reg != nil {
		for _, col := range c.collectors() {
			if err := reg.Register(col); err != nil {
				return nil, fmt.Errorf("failed to register metric: %w", err)
			}
		}
	}
	return c, nil
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.requests, c.responses, c.retries, c.timeouts, c.sendErrors,
		c.malformed, c.late, c.cancelled, c.inFlight, c.roundTrip,
	}
}

// RequestSent counts a new request of the given PDU type.
func (c *Collector) RequestSent(pduType string) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(pduType).Inc()
	c.inFlight.Inc()
}

// Response counts a matched response and observes its round trip.
func (c *Collector) Response(outcome string, rtt time.Duration) {
	if c == nil {
		return
	}
	c.responses.WithLabelValues(outcome).Inc()
	c.roundTrip.Observe(rtt.Seconds())
	c.inFlight.Dec()
}

// Retry counts a resend.
func (c *Collector) Retry() {
	if c == nil {
		return
	}
	c.retries.Inc()
}

// Timeout counts a request resolved by timeout.
func (c *Collector) Timeout() {
	if c == nil {
		return
	}
	c.timeouts.Inc()
	c.inFlight.Dec()
}

// SendError counts a request resolved by a transport error.
func (c *Collector) SendError() {
	if c == nil {
		return
	}
	c.sendErrors.Inc()
	c.inFlight.Dec()
}

// Cancelled counts n requests resolved by cancellation.
func (c *Collector) Cancelled(n int) {
	if c == nil || n == 0 {
		return
	}
	c.cancelled.Add(float64(n))
	c.inFlight.Sub(float64(n))
}

// Malformed counts an undecodable inbound datagram.
func (c *Collector) Malformed() {
	if c == nil {
		return
	}
	c.malformed.Inc()
}

// LateResponse counts a response whose request is no longer pending.
func (c *Collector) LateResponse() {
	if c == nil {
		return
	}
	c.late.Inc()
}
