package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BillingMetrics records webhook and reconciliation outcomes.
type BillingMetrics struct {
	webhookEvents *prometheus.CounterVec
	syncRepairs   prometheus.Counter
	syncScanned   prometheus.Counter
}

// NewBillingMetrics registers the billing metrics on the provided registerer.
func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	if reg == nil {
		return &BillingMetrics{}
	}
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_webhook_events_total",
		Help: "Processed Stripe webhook events by kind and outcome.",
	}, []string{"kind", "outcome"})
	syncRepairs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billing_sync_repairs_total",
		Help: "Secondary entitlement rows repaired by the credit synchronizer.",
	})
	syncScanned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billing_sync_scanned_total",
		Help: "Entitlement rows scanned by the credit synchronizer.",
	})
	reg.MustRegister(webhookEvents, syncRepairs, syncScanned)
	return &BillingMetrics{
		webhookEvents: webhookEvents,
		syncRepairs:   syncRepairs,
		syncScanned:   syncScanned,
	}
}

// ObserveWebhookEvent counts a processed webhook event.
func (b *BillingMetrics) ObserveWebhookEvent(kind, outcome string) {
	if b == nil || b.webhookEvents == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	b.webhookEvents.WithLabelValues(kind, outcome).Inc()
}

// AddSyncRepairs counts repaired rows from a sync pass.
func (b *BillingMetrics) AddSyncRepairs(n int) {
	if b == nil || b.syncRepairs == nil || n <= 0 {
		return
	}
	b.syncRepairs.Add(float64(n))
}

// AddSyncScanned counts scanned rows from a sync pass.
func (b *BillingMetrics) AddSyncScanned(n int) {
	if b == nil || b.syncScanned == nil || n <= 0 {
		return
	}
	b.syncScanned.Add(float64(n))
}
