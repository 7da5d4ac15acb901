// Package ratelimit throttles MCP tool calls with per-key token buckets.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter hands out one token bucket per key. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rate    rate.Limit
	burst   int
	nowFunc func() time.Time
}

// NewLimiter returns a limiter refilling perSecond tokens per second up to
// burst. A key seen for the first time starts with a full bucket.
func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		rate:    rate.Limit(perSecond),
		burst:   burst,
		nowFunc: time.Now,
	}
}

// Allow consumes a token for key and reports whether one was available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.rate, l.burst)
		l.buckets[key] = b
	}
	now := l.nowFunc()
	l.mu.Unlock()

	return b.AllowN(now, 1)
}

// ToolLimit is the budget of one tool.
type ToolLimit struct {
	PerMinute float64
	Burst     int
}

// DefaultToolLimits are the budgets of the crowdsim MCP tools. Simulation
// tools are CPU bound and get the smallest budgets.
var DefaultToolLimits = map[string]ToolLimit{
	"crowdsim_run":      {PerMinute: 10, Burst: 3},
	"crowdsim_batch":    {PerMinute: 2, Burst: 1},
	"crowdsim_runs":     {PerMinute: 60, Burst: 10},
	"crowdsim_contacts": {PerMinute: 60, Burst: 10},
	"crowdsim_graph":    {PerMinute: 30, Burst: 5},
	"crowdsim_backup":   {PerMinute: 5, Burst: 2},
	"crowdsim_restore":  {PerMinute: 5, Burst: 2},
}

// ToolLimiters maps tool names to their rate limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters builds a limiter per entry of DefaultToolLimits.
func NewToolLimiters() ToolLimiters {
	limiters := make(ToolLimiters, len(DefaultToolLimits))
	for tool, lim := range DefaultToolLimits {
		limiters[tool] = NewLimiter(lim.PerMinute/60, lim.Burst)
	}
	return limiters
}

// CheckLimit returns an error when toolName has used up its budget.
// Tools without a limiter are never limited.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil
	}
	if !limiter.Allow(toolName) {
		return fmt.Errorf("rate limit exceeded for %s, please try again shortly", toolName)
	}
	return nil
}
