package monitoring

// Kind names a cached resource.
type Kind string

// Collection kinds, one per remote read.
const (
	KindMonitoring    Kind = "monitoring"
	KindHealth        Kind = "health"
	KindHealthChecks  Kind = "health-checks"
	KindUptime        Kind = "uptime"
	KindPerformance   Kind = "performance"
	KindResources     Kind = "resources"
	KindServices      Kind = "services"
	KindEndpoints     Kind = "endpoints"
	KindDependencies  Kind = "dependencies"
	KindAlerts        Kind = "alerts"
	KindIncidents     Kind = "incidents"
	KindMaintenance   Kind = "maintenance"
	KindSLA           Kind = "sla"
	KindConfiguration Kind = "configuration"
)

// Per-entity kinds hold single records written by push messages and
// mutations, keyed by entity id.
const (
	KindAlert    Kind = "alert"
	KindIncident Kind = "incident"
)

// PushOwnedKinds are delivered by the push channel while it is connected
// and polled only while it is not.
func PushOwnedKinds() []Kind {
	return []Kind{KindMonitoring, KindHealth, KindPerformance, KindResources, KindAlerts, KindIncidents}
}

// InventoryKinds are never pushed and refresh on the slow loop.
func InventoryKinds() []Kind {
	return []Kind{KindHealthChecks, KindUptime, KindServices, KindEndpoints, KindDependencies}
}

// SlowKinds change rarely and refresh on the slow loop.
func SlowKinds() []Kind {
	return []Kind{KindMaintenance, KindSLA, KindConfiguration}
}

// CollectionKinds returns every collection kind.
func CollectionKinds() []Kind {
	out := PushOwnedKinds()
	out = append(out, InventoryKinds()...)
	return append(out, SlowKinds()...)
}

// Filtered reports whether reads of k take filter criteria.
func (k Kind) Filtered() bool {
	switch k {
	case KindMonitoring, KindUptime, KindPerformance, KindResources, KindServices,
		KindEndpoints, KindDependencies, KindAlerts, KindIncidents, KindSLA:
		return true
	}
	return false
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	if k == KindAlert || k == KindIncident {
		return true
	}
	for _, c := range CollectionKinds() {
		if c == k {
			return true
		}
	}
	return false
}
