// Package metrics defines the prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	updatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dinner_updates_total",
			Help: "Inbound webhook updates by outcome (dropped/forbidden/malformed/handled/error/ignored).",
		},
		[]string{"outcome"},
	)

	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dinner_commands_total",
			Help: "Handled commands and button presses by name and outcome.",
		},
		[]string{"command", "outcome"},
	)

	generationLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dinner_generation_latency_ms",
			Help:    "Recipe generation latency distribution in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000, 30000},
		},
		[]string{"model", "success"},
	)

	generationTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dinner_generation_tokens",
			Help: "Prompt and completion tokens spent per model.",
		},
		[]string{"model", "kind"},
	)

	scheduledSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dinner_scheduled_sends_total",
			Help: "Scheduled trigger fires by outcome (sent/skipped/error).",
		},
		[]string{"outcome"},
	)

	upstreamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dinner_upstream_errors_total",
			Help: "Failed outbound calls per target (openai/telegram).",
		},
		[]string{"target"},
	)

	webhookRegistrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dinner_webhook_registrations_total",
			Help: "Webhook registration attempts by outcome (ok/error).",
		},
		[]string{"outcome"},
	)

	activeTriggers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dinner_active_triggers",
			Help: "Daily triggers currently registered.",
		},
	)
)

// MustRegister registers collectors with the default registry (idempotent).
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(
			updatesTotal, commandsTotal,
			generationLatencyMs, generationTokens,
			scheduledSends, upstreamErrors,
			webhookRegistrations, activeTriggers,
		)
	})
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// IncUpdate counts one inbound update by outcome.
func IncUpdate(outcome string) {
	updatesTotal.WithLabelValues(norm(outcome)).Inc()
}

// IncCommand counts one handled command or button press.
func IncCommand(command, outcome string) {
	commandsTotal.WithLabelValues(norm(command), norm(outcome)).Inc()
}

// ObserveGeneration records one chat completion call.
func ObserveGeneration(model string, promptTokens, completionTokens int64, elapsed time.Duration, success bool) {
	generationLatencyMs.WithLabelValues(norm(model), strconv.FormatBool(success)).
		Observe(float64(elapsed.Milliseconds()))
	if !success {
		return
	}
	generationTokens.WithLabelValues(norm(model), "prompt").Add(float64(promptTokens))
	generationTokens.WithLabelValues(norm(model), "completion").Add(float64(completionTokens))
}

// IncScheduledSend counts one trigger fire by outcome.
func IncScheduledSend(outcome string) {
	scheduledSends.WithLabelValues(norm(outcome)).Inc()
}

// IncUpstreamError counts one failed call to target.
func IncUpstreamError(target string) {
	upstreamErrors.WithLabelValues(norm(target)).Inc()
}

// IncWebhookRegistration counts one setWebhook attempt by outcome.
func IncWebhookRegistration(outcome string) {
	webhookRegistrations.WithLabelValues(norm(outcome)).Inc()
}

// SetActiveTriggers reports the number of registered daily triggers.
func SetActiveTriggers(n int) {
	activeTriggers.Set(float64(n))
}
