package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the custody state machine.
type Metrics struct {
	// Commands by operation and outcome (confirmed / not_found / unauthorized /
	// invalid_state / rejected / unavailable)
	CommandsTotal *prometheus.CounterVec

	// Products minted
	ProductsCreated prometheus.Counter

	// Counterfeit taints observed (first-time and repeats alike)
	CounterfeitReports prometheus.Counter
}

// New creates and registers all custody metrics.
func New() *Metrics {
	return &Metrics{
		CommandsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chaintrail_custody_commands_total",
			Help: "Total custody commands by operation and outcome",
		}, []string{"operation", "outcome"}),

		ProductsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chaintrail_products_created_total",
			Help: "Total products minted on the ledger",
		}),

		CounterfeitReports: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chaintrail_counterfeit_reports_total",
			Help: "Total counterfeit reports submitted",
		}),
	}
}

// IncrementCommand records one command outcome.
func (m *Metrics) IncrementCommand(operation, outcome string) {
	if m != nil {
		m.CommandsTotal.WithLabelValues(operation, outcome).Inc()
	}
}

// IncrementProductsCreated records a successful mint.
func (m *Metrics) IncrementProductsCreated() {
	if m != nil {
		m.ProductsCreated.Inc()
	}
}

// IncrementCounterfeitReports records a submitted report.
func (m *Metrics) IncrementCounterfeitReports() {
	if m != nil {
		m.CounterfeitReports.Inc()
	}
}
