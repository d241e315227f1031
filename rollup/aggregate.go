package rollup

import (
	"fmt"
	"sort"

	"github.com/jeffpierce/cassandra-rollup/tree"
)

// ErrUnknownAggregate is fatal for the metric being rolled up:
// the worker logs it and continues with the next metric.
type ErrUnknownAggregate struct {
	Method tree.AggregationMethod
}

func (e *ErrUnknownAggregate) Error() string {
	return fmt.Sprintf("unknown aggregate function %q", e.Method)
}

// aggregate combines known (non-null) values per the method named in node
// metadata, grounded directly on node_handler.py's aggregate().
func aggregate(method tree.AggregationMethod, known []float64) (float64, error) {
	switch method {
	case tree.Avg, "average":
		sum := 0.0
		for _, v := range known {
			sum += v
		}
		return sum / float64(len(known)), nil
	case tree.Sum:
		sum := 0.0
		for _, v := range known {
			sum += v
		}
		return sum, nil
	case tree.Min:
		m := known[0]
		for _, v := range known[1:] {
			if v < m {
				m = v
			}
		}
		return m, nil
	case tree.Max:
		m := known[0]
		for _, v := range known[1:] {
			if v > m {
				m = v
			}
		}
		return m, nil
	case tree.Median:
		sorted := append([]float64(nil), known...)
		sort.Float64s(sorted)
		return sorted[len(sorted)/2], nil
	default:
		return 0, &ErrUnknownAggregate{Method: method}
	}
}
