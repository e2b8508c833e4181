package alerting

import (
	"maps"

	"github.com/hospitalops/livemon/internal/monitoring"
)

// DefaultThresholds returns the built-in alert thresholds sent with the
// subscribe message when none are configured.
func DefaultThresholds() monitoring.Thresholds {
	return monitoring.Thresholds{
		MetricCPUUsage:        90,
		MetricMemoryUsage:     90,
		MetricDiskUsage:       85,
		MetricErrorRate:       5,
		MetricAvgResponseTime: 1000,
		MetricP95ResponseTime: 2500,
	}
}

// ResolveThresholds overlays configured values on the defaults. Metrics
// configured with a negative threshold are removed.
func ResolveThresholds(configured map[string]float64) monitoring.Thresholds {
	out := DefaultThresholds()
	maps.Copy(out, configured)
	maps.DeleteFunc(out, func(_ string, v float64) bool { return v < 0 })
	return out
}
