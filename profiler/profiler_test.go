package profiler

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAggregates(t *testing.T) {
	p := New(Options{})
	p.Record("blur", 3*time.Millisecond)
	p.Record("combine", time.Millisecond)
	p.Record("blur", 1*time.Millisecond)
	p.Record("blur", 2*time.Millisecond)

	ops := p.Operations()
	require.Len(t, ops, 2)

	assert.Equal(t, "blur", ops[0].Name)
	assert.Equal(t, int64(3), ops[0].Count)
	assert.Equal(t, 6*time.Millisecond, ops[0].Total)
	assert.Equal(t, 2*time.Millisecond, ops[0].Average)
	assert.Equal(t, time.Millisecond, ops[0].Min)
	assert.Equal(t, 3*time.Millisecond, ops[0].Max)

	assert.Equal(t, "combine", ops[1].Name)
}

func TestMaxSamplesWindow(t *testing.T) {
	p := New(Options{MaxSamples: 2})
	p.Record("op", 10*time.Millisecond)
	p.Record("op", 2*time.Millisecond)
	p.Record("op", 4*time.Millisecond)

	ops := p.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, int64(3), ops[0].Count)
	assert.Equal(t, 6*time.Millisecond, ops[0].Total)
	assert.Equal(t, 3*time.Millisecond, ops[0].Average)
}

func TestStartOperation(t *testing.T) {
	p := New(Options{})
	done := p.StartOperation("sleep")
	time.Sleep(time.Millisecond)
	done()

	ops := p.Operations()
	require.Len(t, ops, 1)
	assert.GreaterOrEqual(t, ops[0].Total, time.Millisecond)
}

func TestMetrics(t *testing.T) {
	p := New(Options{})
	p.RecordMetric("mpix", 2)
	p.RecordMetric("mpix", 4)
	p.RecordMetric("alpha", 1)

	m := p.Metrics()
	require.Len(t, m, 2)
	assert.Equal(t, "alpha", m[0].Name)
	assert.Equal(t, 3.0, m[1].Average)
	assert.Equal(t, 2.0, m[1].Min)
	assert.Equal(t, 4.0, m[1].Max)
}

func TestNilProfilerIsInert(t *testing.T) {
	var p *Profiler
	p.StartOperation("x")()
	p.Record("x", time.Second)
	p.RecordMetric("x", 1)
	p.Reset()
	p.Report(&bytes.Buffer{})
	assert.Nil(t, p.Operations())
	assert.Nil(t, p.Metrics())
}

func TestConcurrentRecord(t *testing.T) {
	p := New(Options{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p.Record("op", time.Microsecond)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(800), p.Operations()[0].Count)
}

func TestReportAndReset(t *testing.T) {
	p := New(Options{})
	p.Record("upload", time.Millisecond)
	p.RecordMetric("speedup", 3.5)

	var buf bytes.Buffer
	p.Report(&buf)
	assert.Contains(t, buf.String(), "upload: avg=1ms")
	assert.Contains(t, buf.String(), "speedup: avg=3.50")
	assert.Contains(t, buf.String(), "MEMORY USAGE")

	p.Reset()
	assert.Empty(t, p.Operations())
	assert.Empty(t, p.Metrics())
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.0 KB", FormatBytes(1024))
	assert.Equal(t, "1.5 MB", FormatBytes(1536*1024))
}
