package audit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	mu   sync.Mutex
	recs []*Record
}

func (c *countingRecorder) Emit(rec *Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs = append(c.recs, rec)
}

func (c *countingRecorder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.recs)
}

func TestTeeFansOut(t *testing.T) {
	a := &countingRecorder{}
	b := &countingRecorder{}

	rec := Tee(a, b)
	rec.Emit(&Record{Event: EventOperation, Protocol: "redis"})

	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
}

func TestTeeDropsNils(t *testing.T) {
	a := &countingRecorder{}

	rec := Tee(nil, a, nil)
	require.IsType(t, &countingRecorder{}, rec)

	rec.Emit(&Record{Event: EventConnectionOpened})
	assert.Equal(t, 1, a.count())
}

func TestTeeEmptyIsNop(t *testing.T) {
	rec := Tee(nil, nil)
	require.IsType(t, NopRecorder{}, rec)
	rec.Emit(&Record{Event: EventOperation})
}

type fakeProxyMetrics struct {
	mu      sync.Mutex
	opened  int
	closed  int
	errs    int
	ops     []string
	blocked []string
}

func (f *fakeProxyMetrics) ConnectionOpened(string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
}

func (f *fakeProxyMetrics) ConnectionClosed(string, time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func (f *fakeProxyMetrics) ConnectionError(string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs++
}

func (f *fakeProxyMetrics) ObserveOperation(_, operation string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, operation)
}

func (f *fakeProxyMetrics) OperationBlocked(_, pattern string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocked = append(f.blocked, pattern)
}

func TestMetricsRecorderMapsEvents(t *testing.T) {
	fake := &fakeProxyMetrics{}
	rec := NewMetricsRecorder(fake)
	require.NotNil(t, rec)

	rec.Emit(&Record{Event: EventConnectionOpened, Protocol: "postgres"})
	rec.Emit(&Record{Event: EventOperation, Protocol: "postgres", Operation: "QUERY"})
	rec.Emit(&Record{Event: EventDangerousOperationBlocked, Protocol: "postgres", Target: "DROP DATABASE"})
	rec.Emit(&Record{Event: EventConnectionError, Protocol: "postgres"})
	rec.Emit(&Record{Event: EventConnectionClosed, Protocol: "postgres", Duration: time.Second})

	assert.Equal(t, 1, fake.opened)
	assert.Equal(t, 1, fake.closed)
	assert.Equal(t, 1, fake.errs)
	assert.Equal(t, []string{"QUERY"}, fake.ops)
	assert.Equal(t, []string{"DROP DATABASE"}, fake.blocked)
}

func TestMetricsRecorderNilMetrics(t *testing.T) {
	assert.Nil(t, NewMetricsRecorder(nil))
}
