package cmd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/menofreact/whatsapp-sending-engine/pkg/msgworker"
)

var poolJobs = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wse_worker_pool_jobs_total",
	Help: "Jobs finished by the direct-send worker pool, by job name and result.",
}, []string{"job", "result"})

func observePoolJob(_ int, job msgworker.Job, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	poolJobs.WithLabelValues(job.Name, result).Inc()
}
