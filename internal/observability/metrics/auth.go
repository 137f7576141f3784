package metrics

import (
	"time"

	obserrors "github.com/flagops/flaggate/internal/observability/errors"
	"github.com/flagops/flaggate/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// LoginMetric captures details about a completed login attempt.
type LoginMetric struct {
	Result   string
	Created  bool
	Duration time.Duration
	Err      error
}

// EmitLoginBegun counts a login redirect being issued.
func EmitLoginBegun(sink statsd.Sink) {
	if sink == nil {
		return
	}
	sink.Count("auth.login.begin", 1, nil)
}

// EmitLoginCompleted emits standardised login outcome metrics.
func EmitLoginCompleted(sink statsd.Sink, in LoginMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"result": in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("auth.login.complete", 1, tags)

	if in.Result == ResultSuccess && in.Created {
		sink.Count("auth.login.registered", 1, nil)
	}

	if in.Duration > 0 {
		sink.Timing("auth.login.duration", in.Duration, CloneTags(tags))
	}
}

// EmitGuardRejected counts an unauthenticated request turned away by the
// session guard.
func EmitGuardRejected(sink statsd.Sink) {
	if sink == nil {
		return
	}
	sink.Count("auth.guard.rejected", 1, nil)
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
