package ukern

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the queue-wait latency histogram buckets in
// nanoseconds, from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks job-queue throughput and resource-pipeline throughput for
// a Runtime.
type Metrics struct {
	// Job queue counters.
	JobsDispatched  atomic.Uint64 // Jobs handed to a worker (AcquireNextJob)
	JobsCompleted   atomic.Uint64 // Jobs whose run function returned
	JobsRescheduled atomic.Uint64 // Jobs re-queued via RunResult_Rescheduled
	MultiRunFanout  atomic.Uint64 // Cumulative additional runs spawned by multi-run jobs

	// Resource pipeline counters.
	ResourceLoadsStarted     atomic.Uint64
	ResourceLoadsCompleted   atomic.Uint64
	ResourceLoadsFailed      atomic.Uint64
	ResourceCacheHits        atomic.Uint64 // TryLoadAsync resolved against an already-loaded unit
	ResourceUnloadsScheduled atomic.Uint64
	ResourceBytesLoaded      atomic.Uint64

	// Queue depth statistics, keyed informally by caller (job queue vs.
	// control/memory/load resource queues); each call contributes to the
	// same running aggregate, which is adequate for a high-level snapshot.
	QueueDepthTotal atomic.Uint64
	QueueDepthCount atomic.Uint64
	MaxQueueDepth   atomic.Uint32

	// Queue-wait latency: time between a job becoming ready and a worker
	// dispatching it, or between a resource load being requested and a
	// load thread picking it up.
	TotalLatencyNs atomic.Uint64
	LatencySamples atomic.Uint64

	// Latency histogram buckets (cumulative counts); bucket[i] holds the
	// count of samples with latency <= LatencyBuckets[i].
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	// Runtime lifecycle.
	StartTime atomic.Int64 // UnixNano
	StopTime  atomic.Int64 // UnixNano, 0 while running
}

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordJobDispatch records a job being handed to a worker, with the time
// it spent ready-but-unscheduled.
func (m *Metrics) RecordJobDispatch(waitNs uint64) {
	m.JobsDispatched.Add(1)
	m.recordLatency(waitNs)
}

// RecordJobComplete records a job run finishing, whether by completing or
// by being rescheduled.
func (m *Metrics) RecordJobComplete(rescheduled bool) {
	m.JobsCompleted.Add(1)
	if rescheduled {
		m.JobsRescheduled.Add(1)
	}
}

// RecordMultiRunFanout records additional concurrent runs spawned for a
// multi-run job.
func (m *Metrics) RecordMultiRunFanout(count uint64) {
	m.MultiRunFanout.Add(count)
}

// RecordResourceLoad records a load attempt completing (successfully or
// not), with the bytes transferred and the load's end-to-end latency.
func (m *Metrics) RecordResourceLoad(bytes uint64, latencyNs uint64, success bool) {
	m.ResourceLoadsStarted.Add(1)
	if success {
		m.ResourceLoadsCompleted.Add(1)
		m.ResourceBytesLoaded.Add(bytes)
	} else {
		m.ResourceLoadsFailed.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordCacheHit records TryLoadAsync resolving against an already-resident
// resource unit instead of starting a new load.
func (m *Metrics) RecordCacheHit() {
	m.ResourceCacheHits.Add(1)
}

// RecordResourceUnload records a unit being scheduled for unload via
// ReserveUnload, independent of whether the unload is later reversed by a
// cache hit.
func (m *Metrics) RecordResourceUnload() {
	m.ResourceUnloadsScheduled.Add(1)
}

// RecordQueueDepth records a queue depth sample for statistics.
func (m *Metrics) RecordQueueDepth(depth uint32) {
	m.QueueDepthTotal.Add(uint64(depth))
	m.QueueDepthCount.Add(1)

	for {
		current := m.MaxQueueDepth.Load()
		if depth <= current {
			break
		}
		if m.MaxQueueDepth.CompareAndSwap(current, depth) {
			break
		}
	}
}

// recordLatency records a latency sample and updates the histogram.
func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.LatencySamples.Add(1)

	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the runtime as stopped, freezing uptime calculations.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of Metrics.
type MetricsSnapshot struct {
	JobsDispatched  uint64
	JobsCompleted   uint64
	JobsRescheduled uint64
	MultiRunFanout  uint64

	ResourceLoadsStarted     uint64
	ResourceLoadsCompleted   uint64
	ResourceLoadsFailed      uint64
	ResourceCacheHits        uint64
	ResourceUnloadsScheduled uint64
	ResourceBytesLoaded      uint64

	AvgQueueDepth float64
	MaxQueueDepth uint32

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	JobThroughputPerSec     float64
	ResourceThroughputPerSec float64
	ResourceBandwidth       float64 // bytes/sec
	TotalOps                uint64
	LoadFailureRate         float64 // percentage
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		JobsDispatched:           m.JobsDispatched.Load(),
		JobsCompleted:            m.JobsCompleted.Load(),
		JobsRescheduled:          m.JobsRescheduled.Load(),
		MultiRunFanout:           m.MultiRunFanout.Load(),
		ResourceLoadsStarted:     m.ResourceLoadsStarted.Load(),
		ResourceLoadsCompleted:   m.ResourceLoadsCompleted.Load(),
		ResourceLoadsFailed:      m.ResourceLoadsFailed.Load(),
		ResourceCacheHits:        m.ResourceCacheHits.Load(),
		ResourceUnloadsScheduled: m.ResourceUnloadsScheduled.Load(),
		ResourceBytesLoaded:      m.ResourceBytesLoaded.Load(),
		MaxQueueDepth:            m.MaxQueueDepth.Load(),
	}

	snap.TotalOps = snap.JobsCompleted + snap.ResourceLoadsStarted

	queueDepthTotal := m.QueueDepthTotal.Load()
	queueDepthCount := m.QueueDepthCount.Load()
	if queueDepthCount > 0 {
		snap.AvgQueueDepth = float64(queueDepthTotal) / float64(queueDepthCount)
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	samples := m.LatencySamples.Load()
	if samples > 0 {
		snap.AvgLatencyNs = totalLatencyNs / samples
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.JobThroughputPerSec = float64(snap.JobsCompleted) / uptimeSeconds
		snap.ResourceThroughputPerSec = float64(snap.ResourceLoadsCompleted) / uptimeSeconds
		snap.ResourceBandwidth = float64(snap.ResourceBytesLoaded) / uptimeSeconds
	}

	if snap.ResourceLoadsStarted > 0 {
		snap.LoadFailureRate = float64(snap.ResourceLoadsFailed) / float64(snap.ResourceLoadsStarted) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if samples > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalSamples := m.LatencySamples.Load()
	if totalSamples == 0 {
		return 0
	}

	targetCount := uint64(float64(totalSamples) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes all counters, useful between test cases.
func (m *Metrics) Reset() {
	m.JobsDispatched.Store(0)
	m.JobsCompleted.Store(0)
	m.JobsRescheduled.Store(0)
	m.MultiRunFanout.Store(0)
	m.ResourceLoadsStarted.Store(0)
	m.ResourceLoadsCompleted.Store(0)
	m.ResourceLoadsFailed.Store(0)
	m.ResourceCacheHits.Store(0)
	m.ResourceUnloadsScheduled.Store(0)
	m.ResourceBytesLoaded.Store(0)
	m.QueueDepthTotal.Store(0)
	m.QueueDepthCount.Store(0)
	m.MaxQueueDepth.Store(0)
	m.TotalLatencyNs.Store(0)
	m.LatencySamples.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer lets callers plug in metrics collection without depending on the
// concrete Metrics type; interfaces.Observer is the narrower cross-package
// form of the same contract.
type Observer interface {
	ObserveJobDispatch(priority uint16, waitNs uint64)
	ObserveJobComplete(core uint16, runNs uint64)
	ObserveMultiRunFanout(count uint64)
	ObserveResourceLoad(bytes uint64, latencyNs uint64, success bool)
	ObserveResourceUnload(cacheRetained bool)
	ObserveQueueDepth(queueName string, depth uint32)
}

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveJobDispatch(uint16, uint64)        {}
func (NoOpObserver) ObserveJobComplete(uint16, uint64)        {}
func (NoOpObserver) ObserveMultiRunFanout(uint64)             {}
func (NoOpObserver) ObserveResourceLoad(uint64, uint64, bool) {}
func (NoOpObserver) ObserveResourceUnload(bool)               {}
func (NoOpObserver) ObserveQueueDepth(string, uint32)         {}

// MetricsObserver implements Observer by forwarding into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveJobDispatch(priority uint16, waitNs uint64) {
	_ = priority
	o.metrics.RecordJobDispatch(waitNs)
}

func (o *MetricsObserver) ObserveJobComplete(core uint16, runNs uint64) {
	_ = core
	_ = runNs
	o.metrics.RecordJobComplete(false)
}

func (o *MetricsObserver) ObserveMultiRunFanout(count uint64) {
	o.metrics.RecordMultiRunFanout(count)
}

func (o *MetricsObserver) ObserveResourceLoad(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordResourceLoad(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveResourceUnload(cacheRetained bool) {
	_ = cacheRetained
	o.metrics.RecordResourceUnload()
}

func (o *MetricsObserver) ObserveQueueDepth(queueName string, depth uint32) {
	_ = queueName
	o.metrics.RecordQueueDepth(depth)
}

// Compile-time interface checks.
var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
