package health

import (
	"fmt"
	"slices"
)

// Aggregate folds subs into a single status for component. The worst
// state wins: any unhealthy sub makes the aggregate unhealthy, otherwise
// any degraded sub makes it degraded. subs is copied.
func Aggregate(component string, subs []Status) Status {
	var unhealthy, degraded int
	for _, s := range subs {
		switch {
		case s.IsUnhealthy():
			unhealthy++
		case s.IsDegraded():
			degraded++
		}
	}

	var agg Status
	switch {
	case len(subs) == 0:
		agg = NewHealthy(component, "Nothing to aggregate")
	case unhealthy > 0:
		agg = NewUnhealthy(component, fmt.Sprintf("%d of %d unhealthy", unhealthy, len(subs)))
	case degraded > 0:
		agg = NewDegraded(component, fmt.Sprintf("%d of %d degraded", degraded, len(subs)))
	default:
		agg = NewHealthy(component, fmt.Sprintf("%d healthy", len(subs)))
	}
	agg.SubStatuses = slices.Clone(subs)
	return agg
}
