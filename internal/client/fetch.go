package client

import (
	"context"
	"fmt"
	"time"

	"github.com/hospitalops/livemon/internal/monitoring"
)

// Fetch reads the collection of kind with the given criteria. Criteria are
// ignored for kinds whose reads take none.
func Fetch(ctx context.Context, r Reader, kind monitoring.Kind, f monitoring.FilterCriteria) (any, time.Time, error) {
	switch kind {
	case monitoring.KindMonitoring:
		return wrap(r.GetMonitoring(ctx, f))
	case monitoring.KindHealth:
		return wrap(r.GetSystemHealth(ctx))
	case monitoring.KindHealthChecks:
		return wrap(r.GetHealthChecks(ctx))
	case monitoring.KindUptime:
		return wrap(r.GetUptimeMetrics(ctx, f))
	case monitoring.KindPerformance:
		return wrap(r.GetPerformanceMonitoring(ctx, f))
	case monitoring.KindResources:
		return wrap(r.GetResourceMonitoring(ctx, f))
	case monitoring.KindServices:
		return wrap(r.GetServices(ctx, f))
	case monitoring.KindEndpoints:
		return wrap(r.GetEndpoints(ctx, f))
	case monitoring.KindDependencies:
		return wrap(r.GetDependencies(ctx, f))
	case monitoring.KindAlerts:
		return wrap(r.GetAlerts(ctx, f))
	case monitoring.KindIncidents:
		return wrap(r.GetIncidents(ctx, f))
	case monitoring.KindMaintenance:
		return wrap(r.GetMaintenanceWindows(ctx))
	case monitoring.KindSLA:
		return wrap(r.GetSLAMetrics(ctx, f))
	case monitoring.KindConfiguration:
		return wrap(r.GetConfiguration(ctx))
	default:
		return nil, time.Time{}, fmt.Errorf("no remote read for kind %q: %w", kind, monitoring.ErrInvalidInput)
	}
}

// wrap erases the value type and drops the value on error so callers never
// cache a zero value.
func wrap[T any](v T, ts time.Time, err error) (any, time.Time, error) {
	if err != nil {
		return nil, time.Time{}, err
	}
	return v, ts, nil
}
