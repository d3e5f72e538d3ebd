package gate

import "github.com/prometheus/client_golang/prometheus"

// Metrics 流水线各环节计数
type Metrics struct {
	Scans          *prometheus.CounterVec
	Commits        prometheus.Counter
	CommitFailures prometheus.Counter
	Deferred       prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Scans: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datrain_scans_total",
				Help: "Scanner invocations by normalized verdict.",
			},
			[]string{"verdict"},
		),
		Commits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "datrain_commits_total",
			Help: "Files committed into the cache.",
		}),
		CommitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "datrain_commit_failures_total",
			Help: "Commit attempts that failed and left the file for retry.",
		}),
		Deferred: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "datrain_deferred_total",
			Help: "Files deferred by the stability check.",
		}),
	}
	for _, c := range []prometheus.Collector{m.Scans, m.Commits, m.CommitFailures, m.Deferred} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
