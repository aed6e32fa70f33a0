// Package metrics collects operational counters for the evaluation engine and
// reports them to Redis for centralized scraping. The sentiment_fail_open
// counter exists specifically because journal-sentiment failures are swallowed
// as "no candidate": without it, that rule could be silently disabled with no
// operator-visible signal.
package metrics

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	reportKey      = "metrics:mindlog-engine"
	reportTTL      = 2 * time.Minute
	reportInterval = 30 * time.Second
)

// Snapshot is the JSON document written to Redis on each report.
type Snapshot struct {
	ServiceName      string    `json:"service_name"`
	StartedAt        time.Time `json:"started_at"`
	LastUpdated      time.Time `json:"last_updated"`
	JobsProcessed    uint64    `json:"jobs_processed"`
	JobsFailed       uint64    `json:"jobs_failed"`
	AlertsCreated    uint64    `json:"alerts_created"`
	AlertsSuppressed uint64    `json:"alerts_suppressed"`
	BroadcastsSent   uint64    `json:"broadcasts_sent"`
	RuleErrors       uint64    `json:"rule_errors"`
	SentimentFailOpen uint64   `json:"sentiment_fail_open"`
	RiskSnapshots    uint64    `json:"risk_snapshots"`
}

// Collector accumulates counters. All methods are safe on a nil receiver so
// callers can run without metrics wired (tests, one-shot CLI evaluation).
type Collector struct {
	client    *redis.Client
	logger    zerolog.Logger
	startedAt time.Time

	jobsProcessed     atomic.Uint64
	jobsFailed        atomic.Uint64
	alertsCreated     atomic.Uint64
	alertsSuppressed  atomic.Uint64
	broadcastsSent    atomic.Uint64
	ruleErrors        atomic.Uint64
	sentimentFailOpen atomic.Uint64
	riskSnapshots     atomic.Uint64
}

func NewCollector(client *redis.Client, logger zerolog.Logger) *Collector {
	return &Collector{client: client, logger: logger, startedAt: time.Now()}
}

func (c *Collector) IncJobsProcessed() {
	if c != nil {
		c.jobsProcessed.Add(1)
	}
}

func (c *Collector) IncJobsFailed() {
	if c != nil {
		c.jobsFailed.Add(1)
	}
}

func (c *Collector) IncAlertsCreated() {
	if c != nil {
		c.alertsCreated.Add(1)
	}
}

func (c *Collector) IncAlertsSuppressed() {
	if c != nil {
		c.alertsSuppressed.Add(1)
	}
}

func (c *Collector) IncBroadcastsSent() {
	if c != nil {
		c.broadcastsSent.Add(1)
	}
}

func (c *Collector) IncRuleErrors() {
	if c != nil {
		c.ruleErrors.Add(1)
	}
}

func (c *Collector) IncSentimentFailOpen() {
	if c != nil {
		c.sentimentFailOpen.Add(1)
	}
}

func (c *Collector) IncRiskSnapshots() {
	if c != nil {
		c.riskSnapshots.Add(1)
	}
}

// Snapshot returns the current counter values.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	return Snapshot{
		ServiceName:       "mindlog-engine",
		StartedAt:         c.startedAt,
		LastUpdated:       time.Now(),
		JobsProcessed:     c.jobsProcessed.Load(),
		JobsFailed:        c.jobsFailed.Load(),
		AlertsCreated:     c.alertsCreated.Load(),
		AlertsSuppressed:  c.alertsSuppressed.Load(),
		BroadcastsSent:    c.broadcastsSent.Load(),
		RuleErrors:        c.ruleErrors.Load(),
		SentimentFailOpen: c.sentimentFailOpen.Load(),
		RiskSnapshots:     c.riskSnapshots.Load(),
	}
}

// Report writes a snapshot to Redis.
func (c *Collector) Report(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(c.Snapshot())
	if err != nil {
		return err
	}
	return c.client.Set(ctx, reportKey, data, reportTTL).Err()
}

// Run reports on an interval until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Report(ctx); err != nil {
				c.logger.Warn().Err(err).Msg("metrics report failed")
			}
		}
	}
}
