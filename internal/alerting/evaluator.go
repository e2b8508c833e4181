package alerting

import (
	"slices"
	"strings"

	"github.com/hospitalops/livemon/internal/monitoring"
)

// NormalizeOperator maps symbolic and long operator spellings onto the
// canonical short form. Unknown operators are returned lowercased.
func NormalizeOperator(op string) string {
	switch strings.ToLower(strings.TrimSpace(op)) {
	case ">", "gt", "greater_than":
		return monitoring.OperatorGreaterThan
	case "<", "lt", "less_than":
		return monitoring.OperatorLessThan
	case ">=", "gte", "greater_or_equal":
		return monitoring.OperatorGreaterOrEqual
	case "<=", "lte", "less_or_equal":
		return monitoring.OperatorLessOrEqual
	case "=", "==", "eq", "is":
		return monitoring.OperatorEqual
	case "!=", "neq", "is_not":
		return monitoring.OperatorNotEqual
	default:
		return strings.ToLower(strings.TrimSpace(op))
	}
}

// ConditionBreached reports whether value violates cond. Unknown operators
// never breach.
func ConditionBreached(cond monitoring.Condition, value float64) bool {
	return compareFloat(value, NormalizeOperator(cond.Operator), cond.Threshold)
}

// StillBreached reports whether an alert's condition holds for its current
// value. Alerts without a current value are assumed breached.
func StillBreached(a *monitoring.Alert) bool {
	if a.CurrentValue == nil || a.Condition.Operator == "" {
		return true
	}
	return ConditionBreached(a.Condition, *a.CurrentValue)
}

// ThresholdBreaches returns the metrics of th whose sampled value in values
// is at or above its threshold, sorted by name.
func ThresholdBreaches(th monitoring.Thresholds, values map[string]float64) []string {
	var out []string
	for name, limit := range th {
		if v, ok := values[name]; ok && v >= limit {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// SampleValues flattens resource and performance metrics into the metric
// names used by thresholds.
func SampleValues(r *monitoring.ResourceMetrics, p *monitoring.PerformanceMetrics) map[string]float64 {
	out := make(map[string]float64, 6)
	if r != nil {
		out[MetricCPUUsage] = r.CPUUsage
		out[MetricMemoryUsage] = r.MemoryUsage
		out[MetricDiskUsage] = r.DiskUsage
	}
	if p != nil {
		out[MetricErrorRate] = p.ErrorRate
		out[MetricAvgResponseTime] = p.AvgResponseTimeMs
		out[MetricP95ResponseTime] = p.P95ResponseTimeMs
	}
	return out
}

func compareFloat(value float64, operator string, threshold float64) bool {
	switch operator {
	case monitoring.OperatorGreaterThan:
		return value > threshold
	case monitoring.OperatorLessThan:
		return value < threshold
	case monitoring.OperatorGreaterOrEqual:
		return value >= threshold
	case monitoring.OperatorLessOrEqual:
		return value <= threshold
	case monitoring.OperatorEqual:
		return value == threshold
	case monitoring.OperatorNotEqual:
		return value != threshold
	default:
		return false
	}
}
