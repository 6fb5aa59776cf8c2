package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "RightsHub IAM build information.",
		},
		[]string{"version", "commit"},
	)
)

// InitBuildInfo registers the build_info gauge once and stamps the labels.
func InitBuildInfo(version, commit string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.WithLabelValues(version, commit).Set(1)
}
