package audit

import "github.com/famgate/famgate/pkg/metrics"

// MetricsRecorder feeds audit records into proxy metrics. Combine with a
// LogRecorder via Tee to get both the log trail and the counters.
type MetricsRecorder struct {
	proxy metrics.ProxyMetrics
}

// NewMetricsRecorder wraps the given proxy metrics. Returns a nil Recorder
// when m is nil so the result drops out of a Tee entirely.
func NewMetricsRecorder(m metrics.ProxyMetrics) Recorder {
	if m == nil {
		return nil
	}
	return &MetricsRecorder{proxy: m}
}

func (r *MetricsRecorder) Emit(rec *Record) {
	switch rec.Event {
	case EventConnectionOpened:
		r.proxy.ConnectionOpened(rec.Protocol)
	case EventConnectionClosed:
		r.proxy.ConnectionClosed(rec.Protocol, rec.Duration)
	case EventConnectionError:
		r.proxy.ConnectionError(rec.Protocol)
	case EventOperation:
		r.proxy.ObserveOperation(rec.Protocol, rec.Operation, rec.Duration)
	case EventDangerousOperationBlocked:
		r.proxy.OperationBlocked(rec.Protocol, rec.Target)
	}
}
