package ukern

import (
	"testing"
	"time"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	if snap.TotalOps != 0 {
		t.Errorf("Expected 0 initial ops, got %d", snap.TotalOps)
	}

	m.RecordJobDispatch(1_000_000)
	m.RecordJobComplete(false)
	m.RecordResourceLoad(1024, 2_000_000, true)
	m.RecordResourceLoad(0, 500_000, false)

	snap = m.Snapshot()

	if snap.JobsDispatched != 1 {
		t.Errorf("Expected 1 job dispatched, got %d", snap.JobsDispatched)
	}
	if snap.JobsCompleted != 1 {
		t.Errorf("Expected 1 job completed, got %d", snap.JobsCompleted)
	}
	if snap.ResourceLoadsStarted != 2 {
		t.Errorf("Expected 2 resource loads started, got %d", snap.ResourceLoadsStarted)
	}
	if snap.ResourceLoadsCompleted != 1 {
		t.Errorf("Expected 1 resource load completed, got %d", snap.ResourceLoadsCompleted)
	}
	if snap.ResourceLoadsFailed != 1 {
		t.Errorf("Expected 1 resource load failed, got %d", snap.ResourceLoadsFailed)
	}
	if snap.ResourceBytesLoaded != 1024 {
		t.Errorf("Expected 1024 bytes loaded, got %d", snap.ResourceBytesLoaded)
	}

	expectedFailureRate := float64(1) / float64(2) * 100.0
	if snap.LoadFailureRate < expectedFailureRate-0.1 || snap.LoadFailureRate > expectedFailureRate+0.1 {
		t.Errorf("Expected load failure rate ~%.1f%%, got %.1f%%", expectedFailureRate, snap.LoadFailureRate)
	}
}

func TestMetricsJobRescheduling(t *testing.T) {
	m := NewMetrics()

	m.RecordJobComplete(true)
	m.RecordJobComplete(false)
	m.RecordMultiRunFanout(3)

	snap := m.Snapshot()
	if snap.JobsCompleted != 2 {
		t.Errorf("Expected 2 jobs completed, got %d", snap.JobsCompleted)
	}
	if snap.JobsRescheduled != 1 {
		t.Errorf("Expected 1 job rescheduled, got %d", snap.JobsRescheduled)
	}
	if snap.MultiRunFanout != 3 {
		t.Errorf("Expected multi-run fanout of 3, got %d", snap.MultiRunFanout)
	}
}

func TestMetricsCacheHitsAndUnloads(t *testing.T) {
	m := NewMetrics()

	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordResourceUnload()

	snap := m.Snapshot()
	if snap.ResourceCacheHits != 2 {
		t.Errorf("Expected 2 cache hits, got %d", snap.ResourceCacheHits)
	}
	if snap.ResourceUnloadsScheduled != 1 {
		t.Errorf("Expected 1 unload scheduled, got %d", snap.ResourceUnloadsScheduled)
	}
}

func TestMetricsQueueDepth(t *testing.T) {
	m := NewMetrics()

	m.RecordQueueDepth(10)
	m.RecordQueueDepth(20)
	m.RecordQueueDepth(15)

	snap := m.Snapshot()

	if snap.MaxQueueDepth != 20 {
		t.Errorf("Expected max queue depth 20, got %d", snap.MaxQueueDepth)
	}

	expectedAvg := float64(10+20+15) / 3.0
	if snap.AvgQueueDepth < expectedAvg-0.1 || snap.AvgQueueDepth > expectedAvg+0.1 {
		t.Errorf("Expected avg queue depth %.1f, got %.1f", expectedAvg, snap.AvgQueueDepth)
	}
}

func TestMetricsLatency(t *testing.T) {
	m := NewMetrics()

	m.RecordJobDispatch(1_000_000)  // 1ms
	m.RecordResourceLoad(0, 2_000_000, true) // 2ms

	snap := m.Snapshot()

	expectedAvgNs := uint64(1_500_000)
	if snap.AvgLatencyNs != expectedAvgNs {
		t.Errorf("Expected avg latency %d ns, got %d ns", expectedAvgNs, snap.AvgLatencyNs)
	}
}

func TestMetricsUptime(t *testing.T) {
	m := NewMetrics()

	time.Sleep(10 * time.Millisecond)

	snap := m.Snapshot()

	if snap.UptimeNs < 10*1000000 {
		t.Errorf("Expected uptime >= 10ms, got %d ns", snap.UptimeNs)
	}

	m.Stop()
	time.Sleep(5 * time.Millisecond)

	snap2 := m.Snapshot()

	if snap2.UptimeNs > snap.UptimeNs+2*1000000 {
		t.Errorf("Uptime increased too much after stop: %d -> %d", snap.UptimeNs, snap2.UptimeNs)
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()

	m.RecordJobComplete(false)
	m.RecordResourceLoad(1024, 1_000_000, true)
	m.RecordQueueDepth(10)

	snap := m.Snapshot()
	if snap.TotalOps == 0 {
		t.Error("Expected some operations before reset")
	}

	m.Reset()

	snap = m.Snapshot()
	if snap.TotalOps != 0 {
		t.Errorf("Expected 0 ops after reset, got %d", snap.TotalOps)
	}
	if snap.ResourceBytesLoaded != 0 {
		t.Errorf("Expected 0 bytes loaded after reset, got %d", snap.ResourceBytesLoaded)
	}
	if snap.MaxQueueDepth != 0 {
		t.Errorf("Expected 0 max queue depth after reset, got %d", snap.MaxQueueDepth)
	}
}

func TestObserver(t *testing.T) {
	observer := &NoOpObserver{}
	observer.ObserveJobDispatch(0, 1000000)
	observer.ObserveJobComplete(0, 1000000)
	observer.ObserveMultiRunFanout(3)
	observer.ObserveResourceLoad(1024, 1000000, true)
	observer.ObserveResourceUnload(true)
	observer.ObserveQueueDepth("jobqueue", 10)

	m := NewMetrics()
	metricsObserver := NewMetricsObserver(m)

	metricsObserver.ObserveJobDispatch(0, 1000000)
	metricsObserver.ObserveMultiRunFanout(3)
	metricsObserver.ObserveResourceLoad(2048, 2000000, true)

	snap := m.Snapshot()
	if snap.JobsDispatched != 1 {
		t.Errorf("Expected 1 job dispatched from observer, got %d", snap.JobsDispatched)
	}
	if snap.MultiRunFanout != 3 {
		t.Errorf("Expected 3 multi-run fanout from observer, got %d", snap.MultiRunFanout)
	}
	if snap.ResourceLoadsCompleted != 1 {
		t.Errorf("Expected 1 resource load completed from observer, got %d", snap.ResourceLoadsCompleted)
	}
	if snap.ResourceBytesLoaded != 2048 {
		t.Errorf("Expected 2048 bytes loaded from observer, got %d", snap.ResourceBytesLoaded)
	}
}

func TestMetricsRates(t *testing.T) {
	m := NewMetrics()

	startTime := time.Now()
	m.StartTime.Store(startTime.UnixNano())

	m.RecordJobComplete(false)
	m.RecordResourceLoad(2048, 2_000_000, true)

	stopTime := startTime.Add(1 * time.Second)
	m.StopTime.Store(stopTime.UnixNano())

	snap := m.Snapshot()

	if snap.JobThroughputPerSec < 0.9 || snap.JobThroughputPerSec > 1.1 {
		t.Errorf("Expected job throughput ~1.0/s, got %.2f", snap.JobThroughputPerSec)
	}
	if snap.ResourceThroughputPerSec < 0.9 || snap.ResourceThroughputPerSec > 1.1 {
		t.Errorf("Expected resource throughput ~1.0/s, got %.2f", snap.ResourceThroughputPerSec)
	}
	if snap.ResourceBandwidth < 2000 || snap.ResourceBandwidth > 2100 {
		t.Errorf("Expected resource bandwidth ~2048 B/s, got %.2f", snap.ResourceBandwidth)
	}
}

func TestMetricsHistogram(t *testing.T) {
	m := NewMetrics()

	for i := 0; i < 50; i++ {
		m.RecordJobDispatch(500_000) // 500us
	}
	for i := 0; i < 49; i++ {
		m.RecordResourceLoad(1024, 5_000_000, true) // 5ms
	}
	m.RecordResourceLoad(1024, 50_000_000, true) // 50ms (P99)

	snap := m.Snapshot()

	if snap.LatencyP50Ns < 100_000 || snap.LatencyP50Ns > 1_000_000 {
		t.Errorf("Expected P50 in 100us-1ms range, got %d ns", snap.LatencyP50Ns)
	}

	if snap.LatencyP99Ns < 5_000_000 || snap.LatencyP99Ns > 100_000_000 {
		t.Errorf("Expected P99 in 5ms-100ms range, got %d ns", snap.LatencyP99Ns)
	}

	totalInBuckets := uint64(0)
	for i := 0; i < len(snap.LatencyHistogram); i++ {
		totalInBuckets += snap.LatencyHistogram[i]
	}
	if totalInBuckets == 0 {
		t.Error("Expected histogram buckets to be populated")
	}
}
