package stats

import (
	"github.com/DataDog/sketches-go/ddsketch"
)

// JitterEdges are the upper bounds (exclusive) of every jitter bucket but the
// last, in milliseconds. A value equal to an edge belongs to the next bucket.
var JitterEdges = []float64{5, 10, 20, 50}

// JitterLabels name the buckets delimited by JitterEdges, in severity order.
var JitterLabels = []string{"< 5ms", "5-10ms", "10-20ms", "20-50ms", "> 50ms"}

// JitterBucket is one non-empty jitter bucket.
type JitterBucket struct {
	Bucket      string   `json:"bucket"`
	Count       int64    `json:"count"`
	AvgDownload *float64 `json:"avg_download"`
}

// BucketFor returns the label of the bucket holding jitterMs.
func BucketFor(jitterMs float64) string {
	for i, edge := range JitterEdges {
		if jitterMs < edge {
			return JitterLabels[i]
		}
	}
	return JitterLabels[len(JitterEdges)]
}

// JitterQuantiles summarizes the fleet-wide jitter distribution.
// Values carry the sketch's 1% relative accuracy.
type JitterQuantiles struct {
	Count int64    `json:"count"`
	P50   *float64 `json:"p50"`
	P90   *float64 `json:"p90"`
	P95   *float64 `json:"p95"`
	P99   *float64 `json:"p99"`
}

// quantileSketch accumulates jitter samples into a DDSketch.
type quantileSketch struct {
	sketch *ddsketch.DDSketch
	count  int64
}

func newQuantileSketch() (*quantileSketch, error) {
	sketch, err := ddsketch.NewDefaultDDSketch(0.01)
	if err != nil {
		return nil, err
	}
	return &quantileSketch{sketch: sketch}, nil
}

func (q *quantileSketch) Add(v float64) {
	if v < 0 {
		return
	}
	if err := q.sketch.Add(v); err == nil {
		q.count++
	}
}

func (q *quantileSketch) Result() JitterQuantiles {
	out := JitterQuantiles{Count: q.count}
	if q.count == 0 {
		return out
	}
	at := func(p float64) *float64 {
		v, err := q.sketch.GetValueAtQuantile(p)
		if err != nil {
			return nil
		}
		return round(&v, 2)
	}
	out.P50, out.P90, out.P95, out.P99 = at(0.50), at(0.90), at(0.95), at(0.99)
	return out
}
