package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PriceResolutionTotal counts pricing tree resolutions by result.
	PriceResolutionTotal *prometheus.CounterVec
	// PriceInvariantSkips counts promotion entries discarded because they
	// priced above the node base.
	PriceInvariantSkips prometheus.Counter
	// PromoSnapshotCache counts pricing snapshot cache lookups by result.
	PromoSnapshotCache *prometheus.CounterVec
	// VoucherEvaluationTotal counts voucher eligibility checks by outcome.
	VoucherEvaluationTotal *prometheus.CounterVec
	// VoucherRedemptionTotal counts redemption attempts by result.
	VoucherRedemptionTotal *prometheus.CounterVec
	// VoucherRankLatency records voucher ranking latency in milliseconds.
	VoucherRankLatency prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PriceResolutionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_resolution_total",
			Help:      "Count of pricing tree resolutions by result.",
		}, []string{"result"})
		PriceInvariantSkips = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_invariant_skips_total",
			Help:      "Promotion entries discarded for pricing above the base.",
		})
		PromoSnapshotCache = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promo_snapshot_cache_total",
			Help:      "Pricing snapshot cache lookups by result.",
		}, []string{"result"})
		VoucherEvaluationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voucher_evaluation_total",
			Help:      "Voucher eligibility evaluations by outcome.",
		}, []string{"outcome"})
		VoucherRedemptionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voucher_redemption_total",
			Help:      "Voucher redemption attempts by result.",
		}, []string{"result"})
		VoucherRankLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "voucher_rank_duration_ms",
			Help:      "Latency for ranking eligible vouchers in milliseconds.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		})

		mustRegisterCollector(reg, PriceResolutionTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PriceResolutionTotal = v
			}
		})
		mustRegisterCollector(reg, PriceInvariantSkips, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				PriceInvariantSkips = v
			}
		})
		mustRegisterCollector(reg, PromoSnapshotCache, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PromoSnapshotCache = v
			}
		})
		mustRegisterCollector(reg, VoucherEvaluationTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				VoucherEvaluationTotal = v
			}
		})
		mustRegisterCollector(reg, VoucherRedemptionTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				VoucherRedemptionTotal = v
			}
		})
		mustRegisterCollector(reg, VoucherRankLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				VoucherRankLatency = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
