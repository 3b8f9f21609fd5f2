package statestore

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
	"github.com/pkg/errors"
)

type storeMetrics struct {
	GetDuration            *metrics.Histogram
	CompareAndSwapDuration *metrics.Histogram
	PreconditionFailed     *metrics.Counter
	Errors                 *metrics.Counter
}

// newStoreMetrics uses GetOrCreate, several stores of one backend may live in
// a single process (tests do that).
func newStoreMetrics(backend string) *storeMetrics {
	genMetricName := func(name string) string {
		return fmt.Sprintf(`statesync_store_%s{backend=%q}`, name, backend)
	}

	return &storeMetrics{
		GetDuration:            metrics.GetOrCreateHistogram(genMetricName("get_duration_seconds")),
		CompareAndSwapDuration: metrics.GetOrCreateHistogram(genMetricName("cas_duration_seconds")),
		PreconditionFailed:     metrics.GetOrCreateCounter(genMetricName("precondition_failed_total")),
		Errors:                 metrics.GetOrCreateCounter(genMetricName("errors_total")),
	}
}

// observe counts the outcome of a backend call and passes err through.
func (m *storeMetrics) observe(err error) error {
	switch {
	case err == nil:
	case errors.Is(err, ErrPreconditionFailed):
		m.PreconditionFailed.Inc()
	default:
		m.Errors.Inc()
	}

	return err
}
