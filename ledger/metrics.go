package ledger

import (
	"math/big"

	"github.com/defistate/defistate-amm-go/fixedpoint"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of one pool ledger.
type Metrics struct {
	operations   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	swapVolume   *prometheus.CounterVec
	reserves     *prometheus.GaugeVec
	totalShares  prometheus.Gauge
	shareHolders prometheus.Gauge
}

// NewMetrics creates and registers the ledger collectors. The pool address is a
// constant label so several pools can share one registry.
func NewMetrics(reg prometheus.Registerer, pool common.Address) *Metrics {
	factory := promauto.With(reg)
	constLabels := prometheus.Labels{"pool": pool.Hex()}

	return &Metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "amm",
			Subsystem:   "ledger",
			Name:        "operations_total",
			Help:        "Ledger operations by kind and outcome.",
			ConstLabels: constLabels,
		}, []string{"op", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "amm",
			Subsystem:   "ledger",
			Name:        "operation_duration_seconds",
			Help:        "Time spent inside a mutating ledger operation, transfers included.",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"op"}),
		swapVolume: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "amm",
			Subsystem:   "ledger",
			Name:        "swap_volume_tokens_total",
			Help:        "Swap input volume in whole tokens.",
			ConstLabels: constLabels,
		}, []string{"token_in"}),
		reserves: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "amm",
			Subsystem:   "ledger",
			Name:        "reserve_tokens",
			Help:        "Current pool reserve in whole tokens.",
			ConstLabels: constLabels,
		}, []string{"token"}),
		totalShares: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "amm",
			Subsystem:   "ledger",
			Name:        "total_shares",
			Help:        "Outstanding liquidity shares in whole units.",
			ConstLabels: constLabels,
		}),
		shareHolders: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "amm",
			Subsystem:   "ledger",
			Name:        "share_holders",
			Help:        "Accounts holding a non-zero share balance.",
			ConstLabels: constLabels,
		}),
	}
}

func (m *Metrics) observe(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.operations.WithLabelValues(op, status).Inc()
}

func (m *Metrics) recordState(token1, token2 common.Address, reserve1, reserve2, totalShares *big.Int, holders int) {
	m.reserves.WithLabelValues(token1.Hex()).Set(toUnits(reserve1))
	m.reserves.WithLabelValues(token2.Hex()).Set(toUnits(reserve2))
	m.totalShares.Set(toUnits(totalShares))
	m.shareHolders.Set(float64(holders))
}

// toUnits converts a scaled amount into whole tokens. Lossy.
func toUnits(x *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(x), new(big.Float).SetInt(fixedpoint.Scale())).Float64()
	return f
}
