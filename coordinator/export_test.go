package coordinator

import (
  "github.com/prometheus/client_golang/prometheus/testutil"
)

// PollsTotal reads the polls counter for one family and outcome.
func PollsTotal(family, outcome string) float64 {
  return testutil.ToFloat64(pollsCounter.WithLabelValues(family, outcome))
}
