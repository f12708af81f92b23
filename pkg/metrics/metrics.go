// Package metrics provides a metrics collection and reporting system.
// Notifier instances write their counters to Redis so operators can read them
// back with rulecheck stats.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// MetricsKeyPrefix is the Redis key prefix for notifier metrics.
	MetricsKeyPrefix = "metrics:"
	// MetricsTTL is how long metrics stay in Redis if not refreshed.
	MetricsTTL = 15 * time.Minute
	// DefaultReportInterval is the default interval for writing metrics to Redis.
	DefaultReportInterval = 30 * time.Second
)

// InstanceMetrics holds metrics for a single notifier instance.
type InstanceMetrics struct {
	Instance    string    `json:"instance"`
	StartedAt   time.Time `json:"started_at"`
	LastUpdated time.Time `json:"last_updated"`
	Status      string    `json:"status"` // "healthy" or "stale"

	// Counters (monotonically increasing since start)
	EventsReceived    uint64 `json:"events_received"`
	EventsProcessed   uint64 `json:"events_processed"`
	NotificationsSent uint64 `json:"notifications_sent"`
	ProcessingErrors  uint64 `json:"processing_errors"`

	// Latencies (averages in nanoseconds)
	AvgProcessingLatencyNs float64 `json:"avg_processing_latency_ns"`

	// Notifier-specific counters (rule_errors, threads_joined, ...)
	CustomCounters map[string]uint64 `json:"custom_counters,omitempty"`
}

// Collector collects and reports metrics for a notifier instance.
type Collector struct {
	instance       string
	redis          *redis.Client
	startedAt      time.Time
	reportInterval time.Duration

	eventsReceived    atomic.Uint64
	eventsProcessed   atomic.Uint64
	notificationsSent atomic.Uint64
	processingErrors  atomic.Uint64

	totalLatencyNs atomic.Uint64
	latencyCount   atomic.Uint64

	customMu       sync.RWMutex
	customCounters map[string]*atomic.Uint64

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewCollector creates a new metrics collector. A nil Redis client is allowed;
// counters are still kept in memory and Flush becomes a no-op.
func NewCollector(instance string, redisClient *redis.Client) *Collector {
	return &Collector{
		instance:       instance,
		redis:          redisClient,
		startedAt:      time.Now().UTC(),
		reportInterval: DefaultReportInterval,
		customCounters: make(map[string]*atomic.Uint64),
		stopCh:         make(chan struct{}),
	}
}

// SetReportInterval sets the interval for writing metrics to Redis.
func (c *Collector) SetReportInterval(interval time.Duration) {
	c.reportInterval = interval
}

// Start begins periodic reporting to Redis. Used by the long-running Kafka
// source; the Lambda source calls Flush at the end of each invocation instead.
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.Flush(context.Background()) // Final write
				return
			case <-c.stopCh:
				c.Flush(context.Background()) // Final write
				return
			case <-ticker.C:
				c.Flush(ctx)
			}
		}
	}()
}

// Stop stops periodic reporting and waits for the final write.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// RecordReceived increments the events received counter.
func (c *Collector) RecordReceived() {
	c.eventsReceived.Add(1)
}

// RecordProcessed increments the events processed counter with latency.
func (c *Collector) RecordProcessed(latency time.Duration) {
	c.eventsProcessed.Add(1)
	c.totalLatencyNs.Add(uint64(latency.Nanoseconds()))
	c.latencyCount.Add(1)
}

// RecordPublished increments the notifications sent counter.
func (c *Collector) RecordPublished() {
	c.notificationsSent.Add(1)
}

// RecordError increments the processing errors counter.
func (c *Collector) RecordError() {
	c.processingErrors.Add(1)
}

// IncrementCustom increments a custom counter by name.
func (c *Collector) IncrementCustom(name string) {
	c.AddCustom(name, 1)
}

// AddCustom adds a value to a custom counter.
func (c *Collector) AddCustom(name string, value uint64) {
	c.customMu.RLock()
	counter, exists := c.customCounters[name]
	c.customMu.RUnlock()

	if !exists {
		c.customMu.Lock()
		// Double-check after acquiring write lock
		if counter, exists = c.customCounters[name]; !exists {
			counter = &atomic.Uint64{}
			c.customCounters[name] = counter
		}
		c.customMu.Unlock()
	}
	counter.Add(value)
}

// GetSnapshot returns current metrics without writing to Redis.
func (c *Collector) GetSnapshot() *InstanceMetrics {
	var avgLatencyNs float64
	if n := c.latencyCount.Load(); n > 0 {
		avgLatencyNs = float64(c.totalLatencyNs.Load()) / float64(n)
	}

	c.customMu.RLock()
	customCounters := make(map[string]uint64, len(c.customCounters))
	for name, counter := range c.customCounters {
		customCounters[name] = counter.Load()
	}
	c.customMu.RUnlock()

	return &InstanceMetrics{
		Instance:               c.instance,
		StartedAt:              c.startedAt,
		LastUpdated:            time.Now().UTC(),
		Status:                 "healthy",
		EventsReceived:         c.eventsReceived.Load(),
		EventsProcessed:        c.eventsProcessed.Load(),
		NotificationsSent:      c.notificationsSent.Load(),
		ProcessingErrors:       c.processingErrors.Load(),
		AvgProcessingLatencyNs: avgLatencyNs,
		CustomCounters:         customCounters,
	}
}

// Flush writes current metrics to Redis. Failures are logged, never returned.
func (c *Collector) Flush(ctx context.Context) {
	if c.redis == nil {
		return
	}

	data, err := json.Marshal(c.GetSnapshot())
	if err != nil {
		slog.Error("Failed to marshal metrics", "instance", c.instance, "error", err)
		return
	}

	key := MetricsKeyPrefix + c.instance
	if err := c.redis.Set(ctx, key, data, MetricsTTL).Err(); err != nil {
		slog.Error("Failed to write metrics to Redis", "instance", c.instance, "error", err)
		return
	}

	slog.Debug("Metrics written to Redis", "instance", c.instance, "key", key)
}

// Reader reads notifier metrics from Redis.
type Reader struct {
	redis *redis.Client
}

// NewReader creates a new metrics reader.
func NewReader(redisClient *redis.Client) *Reader {
	return &Reader{redis: redisClient}
}

// GetInstanceMetrics retrieves metrics for a specific instance.
func (r *Reader) GetInstanceMetrics(ctx context.Context, instance string) (*InstanceMetrics, error) {
	key := MetricsKeyPrefix + instance
	data, err := r.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("no metrics found for instance: %s", instance)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}

	var m InstanceMetrics
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}

	if time.Since(m.LastUpdated) > DefaultReportInterval*4 {
		m.Status = "stale"
	}

	return &m, nil
}

// GetAllInstanceMetrics retrieves metrics for every instance that reported.
func (r *Reader) GetAllInstanceMetrics(ctx context.Context) (map[string]*InstanceMetrics, error) {
	result := make(map[string]*InstanceMetrics)

	iter := r.redis.Scan(ctx, 0, MetricsKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		instance := iter.Val()[len(MetricsKeyPrefix):]
		m, err := r.GetInstanceMetrics(ctx, instance)
		if err != nil {
			slog.Warn("Failed to read metrics for instance", "instance", instance, "error", err)
			continue
		}
		result[instance] = m
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list metrics keys: %w", err)
	}

	return result, nil
}
