package statesvc

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

type serviceMetrics struct {
	Committed   *metrics.Counter
	Stale       *metrics.Counter
	LostRace    *metrics.Counter
	Unavailable *metrics.Counter
}

func newServiceMetrics() *serviceMetrics {
	name := func(result string) string {
		return fmt.Sprintf(`statesync_updates_total{result=%q}`, result)
	}

	return &serviceMetrics{
		Committed:   metrics.GetOrCreateCounter(name("committed")),
		Stale:       metrics.GetOrCreateCounter(name("stale")),
		LostRace:    metrics.GetOrCreateCounter(name("lost_race")),
		Unavailable: metrics.GetOrCreateCounter(name("store_unavailable")),
	}
}
