package rangesource

// Refresh outcomes reported to Metrics.RecordRangeRefresh.
const (
	RefreshSuccess = "success"
	RefreshFailure = "failure"
)

// Metrics records range refresh outcomes and the size of the published set.
//
// Implementations should be safe for concurrent use.
type Metrics interface {
	RecordRangeRefresh(result string)
	SetRangeCount(family string, count int)
}

type noopMetrics struct{}

func (noopMetrics) RecordRangeRefresh(string) {}

func (noopMetrics) SetRangeCount(string, int) {}
