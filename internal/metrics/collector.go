package metrics

import (
	"os"
	"time"

	"bitzomax/internal/logging"
)

var collectorLog = logging.For("metrics")

// StatsProvider reports catalog statistics.
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current catalog statistics.
type Stats struct {
	VideosByStatus map[string]int
	PremiumVideos  int
}

// Collector periodically refreshes gauges that cannot be updated inline.
type Collector struct {
	statsProvider StatsProvider
	dbPath        string
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector. dbPath may be empty.
func NewCollector(provider StatsProvider, dbPath string, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		dbPath:        dbPath,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	c.collectDBSize()

	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()
	for status, n := range stats.VideosByStatus {
		CatalogVideosTotal.WithLabelValues(status).Set(float64(n))
	}
	CatalogPremiumVideosTotal.Set(float64(stats.PremiumVideos))
}

func (c *Collector) collectDBSize() {
	if c.dbPath == "" {
		return
	}

	files := map[string]string{
		"main": c.dbPath,
		"wal":  c.dbPath + "-wal",
		"shm":  c.dbPath + "-shm",
	}
	for label, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			if !os.IsNotExist(err) {
				collectorLog.Debug("stat %s: %v", path, err)
			}
			DBSizeBytes.WithLabelValues(label).Set(0)
			continue
		}
		DBSizeBytes.WithLabelValues(label).Set(float64(info.Size()))
	}
}
