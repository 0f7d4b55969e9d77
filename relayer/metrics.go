package relayer

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromMetrics methods are safe to call on a nil receiver so components can run without metrics.
type PromMetrics struct {
	WalletBalance         *prometheus.GaugeVec
	BroadcastErrors       *prometheus.CounterVec
	FastTransferAllowance *prometheus.GaugeVec
	AttestationTotal      *prometheus.CounterVec
	AttestationWait       *prometheus.HistogramVec
	FeeBps                *prometheus.GaugeVec
	TransferPhases        *prometheus.CounterVec
	HandleResolutions     *prometheus.CounterVec
	PendingCheckpoints    prometheus.Gauge
}

// NewPromMetrics registers the collectors on reg without serving them.
func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {
	var (
		walletLabels         = []string{"chain", "address", "denom"}
		broadcastErrorLabels = []string{"chain", "kind"}
		allowanceLabels      = []string{"domain", "token"}
		attestationLabels    = []string{"source_domain", "status"}
		feeLabels            = []string{"source_domain", "dest_domain"}
		phaseLabels          = []string{"src_chain", "dest_chain", "phase"}
		resolutionLabels     = []string{"strategy", "result"}
	)

	m := &PromMetrics{
		WalletBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "handlepay_wallet_balance",
			Help: "The current USDC balance of the signing wallet",
		}, walletLabels),
		BroadcastErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "handlepay_broadcast_errors_total",
			Help: "The total number of failed burn, approve and mint submissions",
		}, broadcastErrorLabels),
		FastTransferAllowance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "handlepay_fast_transfer_allowance",
			Help: "Current Fast Transfer allowance for a domain (v2 only)",
		}, allowanceLabels),
		AttestationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "handlepay_attestation_total",
			Help: "Attestation classification changes: WAITING, PENDING, READY",
		}, attestationLabels),
		AttestationWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "handlepay_attestation_wait_seconds",
			Help:    "Time from first poll until the attestation was ready",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		}, []string{"source_domain"}),
		FeeBps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "handlepay_minimum_fee_bps",
			Help: "Last minimum fee quoted by Iris for a route, in basis points",
		}, feeLabels),
		TransferPhases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "handlepay_transfer_phase_total",
			Help: "Transfer phase transitions",
		}, phaseLabels),
		HandleResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "handlepay_handle_resolution_total",
			Help: "Handle lookups by strategy and result",
		}, resolutionLabels),
		PendingCheckpoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "handlepay_pending_checkpoints",
			Help: "Stored burns without a completed mint",
		}),
	}

	reg.MustRegister(
		m.WalletBalance,
		m.BroadcastErrors,
		m.FastTransferAllowance,
		m.AttestationTotal,
		m.AttestationWait,
		m.FeeBps,
		m.TransferPhases,
		m.HandleResolutions,
		m.PendingCheckpoints,
	)
	return m
}

func InitPromMetrics(address string, port int16) *PromMetrics {
	reg := prometheus.NewRegistry()
	m := NewPromMetrics(reg)

	// Expose /metrics HTTP endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		server := &http.Server{
			Addr:        fmt.Sprintf("%s:%d", address, port),
			Handler:     mux,
			ReadTimeout: 3 * time.Second,
		}
		log.Fatal(server.ListenAndServe())
	}()

	return m
}

func (m *PromMetrics) SetWalletBalance(chain, address, denom string, balance float64) {
	if m == nil {
		return
	}
	m.WalletBalance.WithLabelValues(chain, address, denom).Set(balance)
}

func (m *PromMetrics) IncBroadcastErrors(chain, kind string) {
	if m == nil {
		return
	}
	m.BroadcastErrors.WithLabelValues(chain, kind).Inc()
}

func (m *PromMetrics) SetFastTransferAllowance(domain, token string, allowance float64) {
	if m == nil {
		return
	}
	m.FastTransferAllowance.WithLabelValues(domain, token).Set(allowance)
}

func (m *PromMetrics) IncAttestation(domain, status string) {
	if m == nil {
		return
	}
	m.AttestationTotal.WithLabelValues(domain, status).Inc()
}

func (m *PromMetrics) ObserveAttestationWait(domain string, seconds float64) {
	if m == nil {
		return
	}
	m.AttestationWait.WithLabelValues(domain).Observe(seconds)
}

func (m *PromMetrics) SetFeeBps(srcDomain, destDomain string, bps float64) {
	if m == nil {
		return
	}
	m.FeeBps.WithLabelValues(srcDomain, destDomain).Set(bps)
}

func (m *PromMetrics) IncTransferPhase(srcChain, destChain, phase string) {
	if m == nil {
		return
	}
	m.TransferPhases.WithLabelValues(srcChain, destChain, phase).Inc()
}

func (m *PromMetrics) IncHandleResolution(strategy, result string) {
	if m == nil {
		return
	}
	m.HandleResolutions.WithLabelValues(strategy, result).Inc()
}

func (m *PromMetrics) SetPendingCheckpoints(n int) {
	if m == nil {
		return
	}
	m.PendingCheckpoints.Set(float64(n))
}
