package metrics

import (
	"maps"
	"time"

	obserrors "github.com/target/engagement-ledger/internal/observability/errors"
	"github.com/target/engagement-ledger/internal/observability/statsd"
)

// Result values shared by every ledger metric.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Job transitions reported by the outbox runners.
const (
	TransitionCompleted = "completed"
	TransitionFailed    = "failed"
)

// JobMetric is one outbox job transition.
type JobMetric struct {
	JobType    string
	Transition string
	Result     string
	Attempt    int
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle reports a job transition to sink: a job.transition count and,
// when a duration is known, a job.duration timing under the same tags.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"job_type":   in.JobType,
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Result == ResultError {
		obserrors.Tag(tags, in.Err)
	}
	// Retries are the interesting signal for the payment runner.
	if in.Attempt > 1 {
		tags["retry"] = "true"
	}

	sink.Count("job.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags copies a tag map, dropping empty keys. It returns nil for an empty map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := maps.Clone(src)
	delete(out, "")
	return out
}
