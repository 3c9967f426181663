package memory

import (
	"math"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"bitzomax/internal/logging"
	"bitzomax/internal/metrics"
)

var log = logging.For("memory")

// Config holds memory monitor configuration.
type Config struct {
	// MemoryLimitBytes is the soft limit. 0 means use GOMEMLIMIT.
	MemoryLimitBytes int64

	// HighWaterMark is the usage ratio below which a pause is lifted.
	HighWaterMark float64

	// CriticalWaterMark is the usage ratio at which new uploads are refused.
	CriticalWaterMark float64

	CheckInterval time.Duration
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     5 * time.Second,
	}
}

// Monitor samples heap usage against the memory limit and reports when
// new memory-hungry work should be refused. Transcoded WebM output is held
// in memory until it is written, so uploads are the work it gates.
type Monitor struct {
	config   Config
	limit    int64
	stopChan chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	current  uint64
	isPaused bool
}

// NewMonitor creates a monitor. Without an explicit limit or GOMEMLIMIT it
// never pauses.
func NewMonitor(config Config) *Monitor {
	limit := config.MemoryLimitBytes
	if limit == 0 {
		if goMemLimit := debug.SetMemoryLimit(-1); goMemLimit > 0 && goMemLimit < 1<<62 {
			limit = goMemLimit
			log.Info("Memory monitor using GOMEMLIMIT: %s", formatBytes(limit))
		}
	}
	if limit == 0 {
		log.Warn("Memory monitor: no memory limit configured, upload backpressure disabled")
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultConfig().CheckInterval
	}

	return &Monitor{
		config:   config,
		limit:    limit,
		stopChan: make(chan struct{}),
	}
}

// Start begins sampling in the background.
func (m *Monitor) Start() {
	if m.limit == 0 {
		return
	}
	go m.monitorLoop()
}

// Stop ends sampling. It is safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

func (m *Monitor) monitorLoop() {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			m.observe(stats.Alloc)
		case <-m.stopChan:
			return
		}
	}
}

// observe records a heap sample. Pausing starts at the critical mark and
// lasts until usage falls below the high water mark.
func (m *Monitor) observe(alloc uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = alloc
	if m.limit <= 0 {
		return
	}

	usage := float64(alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	switch {
	case usage >= m.config.CriticalWaterMark && !m.isPaused:
		log.Warn("Memory critical (%.1f%% of limit), refusing uploads", usage*100)
		m.isPaused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryGCPauses.Inc()
		go runtime.GC()
	case usage < m.config.HighWaterMark && m.isPaused:
		log.Info("Memory recovered (%.1f%% of limit), accepting uploads", usage*100)
		m.isPaused = false
		metrics.MemoryPaused.Set(0)
	}
}

// IsPaused reports whether memory-hungry work should be refused.
func (m *Monitor) IsPaused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isPaused
}

// GetStats returns the last heap sample, the limit and their ratio.
func (m *Monitor) GetStats() (current, limit int64, usage float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	current = math.MaxInt64
	if m.current <= math.MaxInt64 {
		current = int64(m.current)
	}
	if m.limit > 0 {
		usage = float64(m.current) / float64(m.limit)
	}
	return current, m.limit, usage
}
