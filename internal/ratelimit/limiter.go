package ratelimit

import (
	"sync"
	"time"
)

// LimitResult contains the result of a rate limit check
type LimitResult struct {
	Allowed    bool          // Whether the request is allowed
	RetryAfter time.Duration // Suggested wait time if not allowed
	LimitType  string        // "global" or table name
	Remaining  float64       // Remaining tokens in the relevant bucket
}

// Limiter manages rate limiting with global and per-table buckets
type Limiter struct {
	mu           sync.RWMutex
	enabled      bool
	globalBucket *Bucket
	tableBuckets map[string]*Bucket
	config       *Config
	metrics      *Metrics
}

// NewLimiter creates a new rate limiter from configuration
func NewLimiter(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l := &Limiter{
		enabled:      cfg.Enabled,
		tableBuckets: make(map[string]*Bucket),
		config:       cfg,
		metrics:      NewMetrics(),
	}

	// Create global bucket
	l.globalBucket = NewBucket(
		float64(cfg.Global.BurstSize),
		cfg.Global.RequestsPerSecond,
	)

	// Create per-table buckets
	for _, tableLimit := range cfg.Tables {
		l.tableBuckets[tableLimit.Name] = NewBucket(
			float64(tableLimit.BurstSize),
			tableLimit.RequestsPerSecond,
		)
	}

	return l
}

// Allow checks if a request for the given table is allowed
// Returns a LimitResult with the decision and metadata
func (l *Limiter) Allow(table string) *LimitResult {
	if !l.enabled {
		return &LimitResult{
			Allowed:   true,
			LimitType: "disabled",
			Remaining: -1,
		}
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	// Check global limit first
	if !l.globalBucket.TryConsume(1) {
		retryAfter := l.globalBucket.TimeToWait(1)
		l.metrics.RecordRejection("global", table)
		return &LimitResult{
			Allowed:    false,
			RetryAfter: retryAfter,
			LimitType:  "global",
			Remaining:  l.globalBucket.Tokens(),
		}
	}

	// Check table-specific limit if configured
	if tableBucket, exists := l.tableBuckets[table]; exists {
		if !tableBucket.TryConsume(1) {
			// Refund the global token since we're rejecting
			l.globalBucket.mu.Lock()
			l.globalBucket.tokens++
			if l.globalBucket.tokens > l.globalBucket.capacity {
				l.globalBucket.tokens = l.globalBucket.capacity
			}
			l.globalBucket.mu.Unlock()
			retryAfter := tableBucket.TimeToWait(1)
			l.metrics.RecordRejection(table, table)
			return &LimitResult{
				Allowed:    false,
				RetryAfter: retryAfter,
				LimitType:  table,
				Remaining:  tableBucket.Tokens(),
			}
		}
		l.metrics.RecordAllowed(table)
		return &LimitResult{
			Allowed:   true,
			LimitType: table,
			Remaining: tableBucket.Tokens(),
		}
	}

	// No table-specific limit, global check passed
	l.metrics.RecordAllowed(table)
	return &LimitResult{
		Allowed:   true,
		LimitType: "global",
		Remaining: l.globalBucket.Tokens(),
	}
}

// IsEnabled returns whether rate limiting is enabled
func (l *Limiter) IsEnabled() bool {
	return l.enabled
}

// SetEnabled enables or disables rate limiting
func (l *Limiter) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

// GetMetrics returns the current metrics
func (l *Limiter) GetMetrics() *Metrics {
	return l.metrics
}

// GetTableBucket returns the bucket for a specific table (for testing)
func (l *Limiter) GetTableBucket(table string) *Bucket {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tableBuckets[table]
}

// GetGlobalBucket returns the global bucket (for testing)
func (l *Limiter) GetGlobalBucket() *Bucket {
	return l.globalBucket
}

// Reset resets all buckets to full capacity
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.globalBucket.Reset()
	for _, bucket := range l.tableBuckets {
		bucket.Reset()
	}
}

// Stats returns current limiter statistics
type Stats struct {
	Enabled      bool               `json:"enabled"`
	GlobalTokens float64            `json:"global_tokens"`
	TableTokens  map[string]float64 `json:"table_tokens"`
}

// GetStats returns current limiter statistics
func (l *Limiter) GetStats() *Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := &Stats{
		Enabled:      l.enabled,
		GlobalTokens: l.globalBucket.Tokens(),
		TableTokens:  make(map[string]float64),
	}

	for name, bucket := range l.tableBuckets {
		stats.TableTokens[name] = bucket.Tokens()
	}

	return stats
}
