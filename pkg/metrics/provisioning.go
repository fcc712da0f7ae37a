package metrics

import "github.com/prometheus/client_golang/prometheus"

// ProvisioningMetrics counts redemption and device pairing outcomes.
type ProvisioningMetrics struct {
	redemptions *prometheus.CounterVec
	activations *prometheus.CounterVec
	checkStatus *prometheus.CounterVec
	codesSwept  prometheus.Counter
}

// Outcome labels for redemption attempts.
const (
	OutcomeSuccess   = "success"
	OutcomeExpired   = "expired"
	OutcomeExhausted = "exhausted"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
)

// NewProvisioningMetrics registers the provisioning counters on the provided registerer.
func NewProvisioningMetrics(reg prometheus.Registerer) *ProvisioningMetrics {
	if reg == nil {
		return &ProvisioningMetrics{}
	}
	redemptions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "code_redemptions_total",
		Help: "Redemption attempts by outcome.",
	}, []string{"outcome"})
	activations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "device_activations_total",
		Help: "Device activation attempts by outcome.",
	}, []string{"outcome"})
	checkStatus := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "device_status_checks_total",
		Help: "Device status polls by resulting status.",
	}, []string{"status"})
	codesSwept := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "expiry_sweep_rows_total",
		Help: "Rows flipped to expired by the sweep job.",
	})
	reg.MustRegister(redemptions, activations, checkStatus, codesSwept)
	return &ProvisioningMetrics{
		redemptions: redemptions,
		activations: activations,
		checkStatus: checkStatus,
		codesSwept:  codesSwept,
	}
}

// IncRedemption counts one redemption attempt with the given outcome.
func (p *ProvisioningMetrics) IncRedemption(outcome string) {
	if p == nil || p.redemptions == nil {
		return
	}
	p.redemptions.WithLabelValues(outcome).Inc()
}

// IncActivation counts one device activation attempt with the given outcome.
func (p *ProvisioningMetrics) IncActivation(outcome string) {
	if p == nil || p.activations == nil {
		return
	}
	p.activations.WithLabelValues(outcome).Inc()
}

// IncStatusCheck counts one device status poll by resulting status.
func (p *ProvisioningMetrics) IncStatusCheck(status string) {
	if p == nil || p.checkStatus == nil {
		return
	}
	p.checkStatus.WithLabelValues(status).Inc()
}

// AddSweptRows records rows expired by the sweep job.
func (p *ProvisioningMetrics) AddSweptRows(n int64) {
	if p == nil || p.codesSwept == nil || n <= 0 {
		return
	}
	p.codesSwept.Add(float64(n))
}
