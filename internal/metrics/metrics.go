package metrics

import "github.com/prometheus/client_golang/prometheus"

// Label values for result-partitioned collectors.
const (
	Ok       = "ok"
	Fail     = "fail"
	Conflict = "conflict"
	Rejected = "rejected"
	Merged   = "merged"
	Binary   = "binary"
)

// Collectors for switch and merge activity.
var (
	SwitchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "version_vault_switches_total",
		Help: "Cumulative number of version switches, by result.",
	}, []string{"result"})
	MergedFilesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "version_vault_merged_files_total",
		Help: "Cumulative number of three-way merged files, by result.",
	}, []string{"result"})
	MergeRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "version_vault_merge_retries_total",
		Help: "Cumulative number of merge staging retries after an I/O failure.",
	})
	SwitchDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "version_vault_switch_duration_seconds",
		Help:    "Duration of successful version switches.",
		Buckets: prometheus.DefBuckets,
	})
)

// Collectors returns all collectors of the package, for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		SwitchesTotal,
		MergedFilesTotal,
		MergeRetriesTotal,
		SwitchDurationSeconds,
	}
}
